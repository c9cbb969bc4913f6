package fallback

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/local/everything2pdf/internal/filetype"
)

// Subtype names the concrete format an extractor reads: "docx", "xls", ...
type Subtype string

const (
	SubtypeDOC  Subtype = "doc"
	SubtypeDOCX Subtype = "docx"
	SubtypeXLS  Subtype = "xls"
	SubtypeXLSX Subtype = "xlsx"
	SubtypePPT  Subtype = "ppt"
	SubtypePPTX Subtype = "pptx"
)

// ErrNoCapability is returned when no extractor can read a file's subtype.
var ErrNoCapability = errors.New("no fallback extractor for this format")

// Capabilities reports which subtypes the fallback can render. Legacy binary
// word and slide files have no extractor.
type Capabilities map[Subtype]bool

// DefaultCapabilities is the table for the extractors compiled into this package.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		SubtypeDOCX: true,
		SubtypeDOC:  false,
		SubtypeXLSX: true,
		SubtypeXLS:  true,
		SubtypePPTX: true,
		SubtypePPT:  false,
	}
}

// Available reports whether s has an extractor.
func (c Capabilities) Available(s Subtype) bool {
	return c[s]
}

// Resolve picks the subtype for path. The extension chooses the family and the
// sniffed container chooses between the zip and binary variants, so a legacy
// file renamed to .docx is still refused instead of failing mid-extraction.
func Resolve(path string) (Subtype, error) {
	family := filetype.Family(path)
	if family == filetype.FamilyNone {
		return "", fmt.Errorf("%w: %s", ErrNoCapability, filepath.Base(path))
	}

	info, err := filetype.Sniff(path)
	if err != nil {
		return "", err
	}
	container := info.Container
	if container == filetype.ContainerUnknown {
		// unreadable magic: trust the extension
		if strings.HasSuffix(strings.ToLower(path), "x") {
			container = filetype.ContainerOOXML
		} else {
			container = filetype.ContainerOLE
		}
	}

	zipped := container == filetype.ContainerOOXML
	switch family {
	case filetype.FamilyWord:
		if zipped {
			return SubtypeDOCX, nil
		}
		return SubtypeDOC, nil
	case filetype.FamilySpreadsheet:
		if zipped {
			return SubtypeXLSX, nil
		}
		return SubtypeXLS, nil
	default:
		if zipped {
			return SubtypePPTX, nil
		}
		return SubtypePPT, nil
	}
}
