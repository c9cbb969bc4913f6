package imagerender

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// PageImage is one rasterized output page. Data holds PNG bytes; it is never
// mutated after creation.
type PageImage struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// NewPageImage encodes img as PNG and records its pixel dimensions.
func NewPageImage(img image.Image) (PageImage, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return PageImage{}, fmt.Errorf("empty image %dx%d", bounds.Dx(), bounds.Dy())
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return PageImage{}, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return PageImage{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: "png",
	}, nil
}

// Stream is the ordered, append-only page buffer of one job.
type Stream struct {
	pages []PageImage
}

// Append adds pages at the end of the stream, preserving their order.
func (s *Stream) Append(pages ...PageImage) {
	s.pages = append(s.pages, pages...)
}

// Len returns the number of pages accumulated so far.
func (s *Stream) Len() int { return len(s.pages) }

// Pages returns the accumulated pages in insertion order.
func (s *Stream) Pages() []PageImage { return s.pages }
