package imagerender

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog/log"
)

// ErrEmptyStream is returned when asked to assemble zero pages.
var ErrEmptyStream = errors.New("no pages to assemble")

// fixedCreation keeps output bytes stable across runs.
var fixedCreation = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Assembler writes an ordered page stream as a PDF with one page per image.
// Page size in points equals the image size in pixels; DPI scaling has already
// happened at rasterization time.
type Assembler struct{}

// NewAssembler creates a page assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Write emits the PDF for pages to w.
func (a *Assembler) Write(w io.Writer, pages []PageImage) error {
	if len(pages) == 0 {
		return ErrEmptyStream
	}
	first := pages[0]
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: float64(first.Width), Ht: float64(first.Height)},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(fixedCreation)
	pdf.SetCatalogSort(true)

	for i, page := range pages {
		if page.Width <= 0 || page.Height <= 0 {
			return fmt.Errorf("page %d has no dimensions", i+1)
		}
		w, h := float64(page.Width), float64(page.Height)
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})

		name := fmt.Sprintf("page-%d", i+1)
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.Data))
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
		if pdf.Err() {
			return fmt.Errorf("failed to place page %d: %w", i+1, pdf.Error())
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// WriteFile writes the PDF to path, removing the file again if writing fails.
func (a *Assembler) WriteFile(path string, pages []PageImage) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := a.Write(f, pages); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close output: %w", err)
	}
	log.Debug().Str("output", path).Int("pages", len(pages)).Msg("assembled PDF")
	return nil
}

// Bytes returns the assembled PDF in memory.
func (a *Assembler) Bytes(pages []PageImage) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.Write(&buf, pages); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
