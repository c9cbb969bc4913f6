package imagerender

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// DefaultDPI is the rasterization resolution used when none is configured.
const DefaultDPI = 150

// Doc abstracts an open PDF document that can render pages.
type Doc interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener abstracts opening a PDF from disk or memory.
type Opener interface {
	Open(path string) (Doc, error)
	OpenMemory(data []byte) (Doc, error)
}

// fitzOpener renders through MuPDF via go-fitz.
type fitzOpener struct{}

func (fitzOpener) Open(path string) (Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (fitzOpener) OpenMemory(data []byte) (Doc, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Rasterizer renders every page of a PDF to a PageImage at a target DPI.
type Rasterizer struct {
	opener Opener
}

// NewRasterizer creates a rasterizer backed by go-fitz.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{opener: fitzOpener{}}
}

// NewRasterizerWithOpener swaps the PDF backend, mainly for tests.
func NewRasterizerWithOpener(o Opener) *Rasterizer {
	return &Rasterizer{opener: o}
}

// RasterizeFile renders all pages of the PDF at pdfPath in page order.
func (r *Rasterizer) RasterizeFile(pdfPath string, dpi int) ([]PageImage, error) {
	doc, err := r.opener.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	log.Debug().Str("pdf", pdfPath).Int("dpi", dpi).Int("pages", doc.NumPage()).Msg("rasterizing PDF")
	return renderAll(doc, dpi)
}

// RasterizeBytes renders all pages of an in-memory PDF in page order.
func (r *Rasterizer) RasterizeBytes(data []byte, dpi int) ([]PageImage, error) {
	doc, err := r.opener.OpenMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	return renderAll(doc, dpi)
}

// renderAll scales each page by dpi/72, PDF's native unit being 1/72 inch.
func renderAll(doc Doc, dpi int) ([]PageImage, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	total := doc.NumPage()
	pages := make([]PageImage, 0, total)
	for i := 0; i < total; i++ {
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}
		page, err := NewPageImage(img)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		log.Debug().
			Int("page", i+1).
			Int("width", page.Width).
			Int("height", page.Height).
			Int("png_size", len(page.Data)).
			Msg("rendered page")
		pages = append(pages, page)
	}
	return pages, nil
}
