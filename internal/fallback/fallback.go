package fallback

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type extractFunc func(path string) (*Document, error)

var extractors = map[Subtype]extractFunc{
	SubtypeDOCX: extractWord,
	SubtypeXLSX: extractXLSX,
	SubtypeXLS:  extractXLS,
	SubtypePPTX: extractSlides,
}

// Converter renders office files to PDF with the built-in extractors.
type Converter struct {
	caps     Capabilities
	renderer *Renderer
}

// New creates a converter that lays text out with the font at fontPath (may be empty).
func New(fontPath string) *Converter {
	return &Converter{caps: DefaultCapabilities(), renderer: NewRenderer(fontPath)}
}

// Capabilities returns the subtype table this converter honours.
func (c *Converter) Capabilities() Capabilities { return c.caps }

// Supports resolves path's subtype and reports whether it can be rendered.
func (c *Converter) Supports(path string) (Subtype, bool) {
	sub, err := Resolve(path)
	if err != nil {
		return "", false
	}
	return sub, c.caps.Available(sub)
}

// ConvertToPDF renders path into outDir/<stem>.pdf and returns the output path.
// A panic inside a parser is returned as an error.
func (c *Converter) ConvertToPDF(path, outDir string) (out string, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("file", filepath.Base(path)).Msg("fallback converter panicked")
			out, err = "", fmt.Errorf("fallback converter panic: %v", r)
		}
	}()

	sub, err := Resolve(path)
	if err != nil {
		return "", err
	}
	extract, ok := extractors[sub]
	if !ok || !c.caps.Available(sub) {
		return "", fmt.Errorf("%w: %s", ErrNoCapability, sub)
	}

	doc, err := extract(path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", sub, err)
	}
	if doc.ContentBlocks() == 0 {
		return "", ErrNoContent
	}

	base := filepath.Base(path)
	out = filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
	laid, err := c.renderer.Render(doc, out)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("file", base).
		Str("subtype", string(sub)).
		Int("blocks", laid).
		Dur("duration", time.Since(start)).
		Msg("fallback conversion successful")
	return out, nil
}
