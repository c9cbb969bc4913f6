package imagerender

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	// Registers the WebP decoder; imaging already pulls in bmp, gif, jpeg, png and tiff.
	_ "golang.org/x/image/webp"
)

// Normalizer turns a single raster image file into one page at the target DPI.
type Normalizer struct {
	assembler  *Assembler
	rasterizer *Rasterizer
}

// NewNormalizer creates a normalizer that round-trips images through a one-page PDF.
func NewNormalizer(a *Assembler, r *Rasterizer) *Normalizer {
	return &Normalizer{assembler: a, rasterizer: r}
}

// Normalize decodes the image at path and returns its page(s). The primary path
// embeds the flattened image in a one-page PDF and rasterizes it; if that fails
// the image is re-decoded, converted to RGB and scaled directly.
func (n *Normalizer) Normalize(path string, dpi int) ([]PageImage, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	pages, err := n.viaPDF(path, dpi)
	if err == nil {
		return pages, nil
	}
	log.Warn().Err(err).Str("file", path).Msg("image PDF round-trip failed; using direct conversion")

	page, ferr := n.direct(path, dpi)
	if ferr != nil {
		return nil, fmt.Errorf("image conversion failed: %v; direct conversion failed: %w", err, ferr)
	}
	return []PageImage{page}, nil
}

func (n *Normalizer) viaPDF(path string, dpi int) ([]PageImage, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	native, err := NewPageImage(Flatten(img))
	if err != nil {
		return nil, err
	}
	pdf, err := n.assembler.Bytes([]PageImage{native})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap image in PDF: %w", err)
	}
	pages, err := n.rasterizer.RasterizeBytes(pdf, dpi)
	if err != nil {
		return nil, err
	}
	if len(pages) != 1 {
		return nil, fmt.Errorf("expected 1 page, rendered %d", len(pages))
	}
	return pages, nil
}

func (n *Normalizer) direct(path string, dpi int) (PageImage, error) {
	img, err := decode(path)
	if err != nil {
		return PageImage{}, err
	}
	rgb := Flatten(img)
	b := rgb.Bounds()
	w := scale(b.Dx(), dpi)
	h := scale(b.Dy(), dpi)
	if w != b.Dx() || h != b.Dy() {
		rgb = imaging.Resize(rgb, w, h, imaging.Lanczos)
	}
	return NewPageImage(rgb)
}

func decode(path string) (image.Image, error) {
	// image.Decode yields the first frame for animated GIFs.
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Flatten composites img over opaque white, dropping transparency and palettes.
func Flatten(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}

func scale(px, dpi int) int {
	v := (px*dpi + 36) / 72
	if v < 1 {
		v = 1
	}
	return v
}
