package filetype

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the conversion route for an input file.
type Kind int

const (
	Unsupported Kind = iota
	Image
	Office
	PDF
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "image"
	case Office:
		return "office"
	case PDF:
		return "pdf"
	default:
		return "unsupported"
	}
}

// OfficeFamily groups office extensions by the fallback extractor that understands them.
type OfficeFamily int

const (
	FamilyNone OfficeFamily = iota
	FamilyWord
	FamilySpreadsheet
	FamilySlides
)

func (f OfficeFamily) String() string {
	switch f {
	case FamilyWord:
		return "word"
	case FamilySpreadsheet:
		return "spreadsheet"
	case FamilySlides:
		return "slides"
	default:
		return "none"
	}
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".bmp": {},
	".gif": {}, ".tiff": {}, ".tif": {}, ".webp": {},
}

var officeExtensions = map[string]OfficeFamily{
	".doc": FamilyWord, ".docx": FamilyWord,
	".xls": FamilySpreadsheet, ".xlsx": FamilySpreadsheet,
	".ppt": FamilySlides, ".pptx": FamilySlides,
}

const pdfExtension = ".pdf"

// Classify maps a path to its conversion route using only the extension (case-insensitive).
func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExtensions[ext]; ok {
		return Image
	}
	if _, ok := officeExtensions[ext]; ok {
		return Office
	}
	if ext == pdfExtension {
		return PDF
	}
	return Unsupported
}

// Family returns the office family of path, or FamilyNone for non-office extensions.
func Family(path string) OfficeFamily {
	return officeExtensions[strings.ToLower(filepath.Ext(path))]
}

// SupportedExtensions returns every recognised extension, dot included, sorted.
func SupportedExtensions() []string {
	out := make([]string, 0, len(imageExtensions)+len(officeExtensions)+1)
	for ext := range imageExtensions {
		out = append(out, ext)
	}
	for ext := range officeExtensions {
		out = append(out, ext)
	}
	out = append(out, pdfExtension)
	sort.Strings(out)
	return out
}

// Container is the physical packaging of an office file.
type Container int

const (
	ContainerUnknown Container = iota
	// ContainerOOXML is a zip package (docx, xlsx, pptx).
	ContainerOOXML
	// ContainerOLE is a compound binary file (doc, xls, ppt).
	ContainerOLE
)

func (c Container) String() string {
	switch c {
	case ContainerOOXML:
		return "ooxml"
	case ContainerOLE:
		return "ole"
	default:
		return "unknown"
	}
}

// SniffInfo is the magic-byte view of an office file.
type SniffInfo struct {
	MIMEType  string
	Container Container
}

// Sniff detects the real container of an office file from its magic bytes, so a
// renamed .doc/.docx still reaches an extractor that can read it.
func Sniff(path string) (SniffInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return SniffInfo{}, fmt.Errorf("failed to detect file type: %w", err)
	}

	info := SniffInfo{MIMEType: mtype.String()}
	switch {
	case mtype.Is("application/zip"),
		mtype.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
		mtype.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
		mtype.Is("application/vnd.openxmlformats-officedocument.presentationml.presentation"):
		info.Container = ContainerOOXML
	case mtype.Is("application/x-ole-storage"),
		mtype.Is("application/msword"),
		mtype.Is("application/vnd.ms-excel"),
		mtype.Is("application/vnd.ms-powerpoint"):
		info.Container = ContainerOLE
	}
	// Parent chain covers the OOXML/OLE subtypes mimetype reports.
	for p := mtype.Parent(); p != nil && info.Container == ContainerUnknown; p = p.Parent() {
		switch p.String() {
		case "application/zip":
			info.Container = ContainerOOXML
		case "application/x-ole-storage":
			info.Container = ContainerOLE
		}
	}

	log.Debug().Str("mime", info.MIMEType).Str("container", info.Container.String()).Str("file", path).Msg("sniffed office container")
	return info, nil
}
