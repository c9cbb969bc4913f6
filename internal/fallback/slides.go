package fallback

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/local/everything2pdf/internal/ooxml"
)

const (
	nsPresentationML = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsDrawingML      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsRelationships  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	presentationPart = "ppt/presentation.xml"
)

// extractSlides emits a "Slide N" heading per slide followed by the text of
// each top-level text shape. Group members, tables and pictures are skipped.
func extractSlides(path string) (*Document, error) {
	pkg, err := ooxml.Open(path)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	order, err := slideOrder(pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to read slide order: %w", err)
	}

	doc := &Document{}
	for i, part := range order {
		rc, err := pkg.Part(part)
		if err != nil {
			return nil, err
		}
		texts, err := slideShapeTexts(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", part, err)
		}

		doc.heading(fmt.Sprintf("Slide %d", i+1))
		for _, text := range texts {
			doc.paragraph(text)
		}
		doc.sectionBreak()
	}
	return doc, nil
}

// slideOrder follows presentation.xml's sldIdLst through its relationships.
// Packages without a usable list fall back to slide part numbering.
func slideOrder(pkg *ooxml.Package) ([]string, error) {
	var ids []string
	if rc, err := pkg.Part(presentationPart); err == nil {
		dec := xml.NewDecoder(rc)
		for {
			tok, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				rc.Close()
				return nil, err
			}
			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != "sldId" {
				continue
			}
			for _, attr := range se.Attr {
				if attr.Name.Local == "id" && attr.Name.Space == nsRelationships {
					ids = append(ids, attr.Value)
				}
			}
		}
		rc.Close()
	}

	rels, err := pkg.Relationships(presentationPart)
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, id := range ids {
		if rel, ok := rels[id]; ok {
			parts = append(parts, ooxml.ResolveTarget(presentationPart, rel.Target))
		}
	}
	if len(parts) > 0 {
		return parts, nil
	}

	for _, name := range pkg.Names() {
		if strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml") {
			parts = append(parts, name)
		}
	}
	sort.Slice(parts, func(i, j int) bool {
		return slideNumber(parts[i]) < slideNumber(parts[j])
	})
	return parts, nil
}

func slideNumber(part string) int {
	s := strings.TrimSuffix(strings.TrimPrefix(part, "ppt/slides/slide"), ".xml")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1 << 30
	}
	return n
}

// slideShapeTexts returns the text of every top-level p:sp with non-blank
// text. Paragraphs within a shape are joined by newlines.
func slideShapeTexts(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		out      []string
		paras    []string
		para     strings.Builder
		grpDepth int
		inShape  bool
		inPara   bool
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
			switch {
			case t.Name.Space == nsPresentationML && t.Name.Local == "grpSp":
				grpDepth++
			case t.Name.Space == nsPresentationML && t.Name.Local == "sp" && grpDepth == 0:
				inShape = true
				paras = paras[:0]
			case inShape && t.Name.Space == nsDrawingML && t.Name.Local == "p":
				inPara = true
				para.Reset()
			case inPara && t.Name.Space == nsDrawingML && t.Name.Local == "t":
				inText = true
			case inPara && t.Name.Space == nsDrawingML && t.Name.Local == "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch {
			case t.Name.Space == nsPresentationML && t.Name.Local == "grpSp":
				grpDepth--
			case inShape && t.Name.Space == nsPresentationML && t.Name.Local == "sp":
				inShape = false
				text := strings.Join(paras, "\n")
				if strings.TrimSpace(text) != "" {
					out = append(out, text)
				}
			case inPara && t.Name.Space == nsDrawingML && t.Name.Local == "p":
				inPara = false
				paras = append(paras, para.String())
			case t.Name.Space == nsDrawingML && t.Name.Local == "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return out, nil
}
