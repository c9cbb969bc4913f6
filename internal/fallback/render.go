package fallback

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"
)

// ErrNoContent is returned when nothing from a document could be laid out.
var ErrNoContent = errors.New("no content extracted")

const (
	pageMargin     = 50.0
	fontFamilyUTF8 = "fallback"
	fontFamilyCore = "Helvetica"

	headingSize   = 16.0
	paragraphSize = 11.0
	tableSize     = 8.0
	tableRowH     = 14.0
	tableHeaderH  = 16.0
)

var fixedCreation = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Renderer lays out an extracted Document on A4 pages.
type Renderer struct {
	fontPath string
}

// NewRenderer creates a renderer. fontPath names a Unicode TrueType font; when
// empty or unusable the core Helvetica font is used and text outside
// Windows-1252 is dropped (paragraphs) or replaced with '?' (headings, cells).
func NewRenderer(fontPath string) *Renderer {
	return &Renderer{fontPath: fontPath}
}

// FontPath returns the configured Unicode font, if any.
func (r *Renderer) FontPath() string { return r.fontPath }

type textEncoder struct {
	unicode bool
}

// strict encodes s for the active font, failing if any rune cannot be shown.
func (e textEncoder) strict(s string) (string, bool) {
	s = strings.ReplaceAll(s, "\t", "    ")
	if e.unicode {
		return s, utf8.ValidString(s)
	}
	var b strings.Builder
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			return "", false
		}
		b.WriteByte(c)
	}
	return b.String(), true
}

// lossy encodes s, substituting '?' for anything the font cannot show.
func (e textEncoder) lossy(s string) string {
	s = strings.ReplaceAll(s, "\t", "    ")
	if e.unicode {
		return strings.ToValidUTF8(s, "?")
	}
	var b strings.Builder
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Render writes doc to outPath and returns the number of blocks laid out.
// A document where every block is skipped yields ErrNoContent and no file.
func (r *Renderer) Render(doc *Document, outPath string) (int, error) {
	pdf := newFpdf()
	family, enc, ok := r.setupFont(pdf)
	if !ok {
		// a rejected font may be half registered
		pdf = newFpdf()
	}
	pdf.AddPage()

	laid := 0
	for _, b := range doc.Blocks {
		switch b.Kind {
		case BlockHeading:
			pdf.SetFont(family, "B", headingSize)
			pdf.MultiCell(0, headingSize*1.25, enc.lossy(b.Text), "", "L", false)
			pdf.Ln(headingSize * 0.5)
			laid++
		case BlockParagraph:
			text, ok := enc.strict(b.Text)
			if !ok {
				log.Debug().Int("length", len(b.Text)).Msg("skipping paragraph the font cannot show")
				continue
			}
			pdf.SetFont(family, "", paragraphSize)
			pdf.MultiCell(0, paragraphSize*1.4, text, "", "L", false)
			pdf.Ln(paragraphSize * 0.5)
			laid++
		case BlockTable:
			if len(b.Rows) == 0 {
				continue
			}
			drawTable(pdf, family, enc, b.Rows)
			laid++
		case BlockBreak:
			pdf.Ln(24)
		}
		if pdf.Err() {
			return 0, fmt.Errorf("layout failed: %w", pdf.Error())
		}
	}

	if laid == 0 {
		return 0, ErrNoContent
	}

	if err := pdf.OutputFileAndClose(outPath); err != nil {
		os.Remove(outPath)
		return 0, fmt.Errorf("failed to write PDF: %w", err)
	}
	return laid, nil
}

func newFpdf() *gofpdf.Fpdf {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		SizeStr:        "A4",
	})
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCreationDate(fixedCreation)
	pdf.SetCatalogSort(true)
	return pdf
}

// setupFont registers the Unicode font. ok is false when the font was tried
// and rejected; the core font is returned in that case and whenever no font
// is configured.
func (r *Renderer) setupFont(pdf *gofpdf.Fpdf) (family string, enc textEncoder, ok bool) {
	if r.fontPath == "" {
		return fontFamilyCore, textEncoder{}, true
	}
	data, err := os.ReadFile(r.fontPath)
	if err != nil {
		log.Warn().Err(err).Str("font", r.fontPath).Msg("unicode font unreadable, using core font")
		return fontFamilyCore, textEncoder{}, true
	}
	if !isTrueType(data) {
		log.Warn().Str("font", r.fontPath).Msg("not a TrueType font, using core font")
		return fontFamilyCore, textEncoder{}, true
	}
	if err := addUTF8Font(pdf, data); err != nil {
		log.Warn().Err(err).Str("font", r.fontPath).Msg("unicode font rejected, using core font")
		return fontFamilyCore, textEncoder{}, false
	}
	return fontFamilyUTF8, textEncoder{unicode: true}, true
}

// addUTF8Font registers data as the regular and bold face. gofpdf's TrueType
// parser panics on truncated tables, so that is reported as an error.
func addUTF8Font(pdf *gofpdf.Fpdf, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse font: %v", r)
		}
	}()
	pdf.AddUTF8FontFromBytes(fontFamilyUTF8, "", data)
	pdf.AddUTF8FontFromBytes(fontFamilyUTF8, "B", data)
	if pdf.Err() {
		return pdf.Error()
	}
	return nil
}

func isTrueType(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	switch string(data[:4]) {
	case "\x00\x01\x00\x00", "true":
		return true
	}
	return false
}

// drawTable draws a grid with a grey header band and beige body. Columns share
// the usable width equally and cell text is truncated to fit.
func drawTable(pdf *gofpdf.Fpdf, family string, enc textEncoder, rows [][]string) {
	pageW, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	colW := (pageW - 2*pageMargin) / float64(len(rows[0]))

	for i, row := range rows {
		h := tableRowH
		if i == 0 {
			h = tableHeaderH
			pdf.SetFillColor(128, 128, 128)
			pdf.SetTextColor(245, 245, 245)
			pdf.SetFont(family, "B", tableSize)
		} else {
			pdf.SetFillColor(245, 245, 220)
			pdf.SetTextColor(0, 0, 0)
			pdf.SetFont(family, "", tableSize)
		}
		if pdf.GetY()+h > pageH-bottom {
			pdf.AddPage()
		}
		for j, cell := range row {
			ln := 0
			if j == len(row)-1 {
				ln = 1
			}
			text := fitText(pdf, enc, enc.lossy(cell), colW-4)
			pdf.CellFormat(colW, h, text, "1", ln, "C", true, 0, "")
		}
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(12)
}

// fitText cuts s until it fits width. Core-font text is Windows-1252 bytes,
// not UTF-8, so it is cut per byte.
func fitText(pdf *gofpdf.Fpdf, enc textEncoder, s string, width float64) string {
	if width <= 0 {
		return ""
	}
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	const ellipsis = ".."
	if !enc.unicode {
		for n := len(s) - 1; n > 0; n-- {
			if candidate := s[:n] + ellipsis; pdf.GetStringWidth(candidate) <= width {
				return candidate
			}
		}
		return ""
	}
	runes := []rune(s)
	for n := len(runes) - 1; n > 0; n-- {
		if candidate := string(runes[:n]) + ellipsis; pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return ""
}
