package fallback

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/local/everything2pdf/internal/ooxml"
)

const nsWordML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// extractWord reads the body paragraphs of a docx in order. Paragraphs inside
// tables are not part of the body flow and are skipped, as are blank ones.
func extractWord(path string) (*Document, error) {
	pkg, err := ooxml.Open(path)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	rc, err := pkg.Part("word/document.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	paras, err := wordParagraphs(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document body: %w", err)
	}

	doc := &Document{}
	for _, p := range paras {
		doc.paragraph(p)
	}
	return doc, nil
}

func wordParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		out      []string
		buf      strings.Builder
		tblDepth int
		pDepth   int
		inText   bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != nsWordML {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tblDepth++
			case "p":
				if tblDepth == 0 {
					if pDepth == 0 {
						buf.Reset()
					}
					pDepth++
				}
			case "t":
				inText = pDepth > 0
			case "tab":
				if pDepth > 0 {
					buf.WriteByte('\t')
				}
			case "br", "cr":
				if pDepth > 0 {
					buf.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != nsWordML {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tblDepth--
			case "p":
				if tblDepth == 0 && pDepth > 0 {
					pDepth--
					if pDepth == 0 && strings.TrimSpace(buf.String()) != "" {
						out = append(out, buf.String())
					}
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
	return out, nil
}
