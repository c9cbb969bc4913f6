package orchestrator

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Stage names the converter that failed for a file.
type Stage string

const (
	StageImage          Stage = "image"
	StageOfficePrimary  Stage = "office-primary"
	StageOfficeFallback Stage = "office-fallback"
	StagePDFRasterize   Stage = "pdf-rasterize"
)

var (
	// ErrNoFiles is returned for an empty input list.
	ErrNoFiles = errors.New("no files selected")
	// ErrNoContent is returned when every file was processed but no page was produced.
	ErrNoContent = errors.New("no convertible content")
	// ErrNoPages marks a converter that succeeded yet produced zero pages.
	ErrNoPages = errors.New("file produced no pages")
	// ErrNoOfficeSuite marks the primary office path as skipped.
	ErrNoOfficeSuite = errors.New("no office suite available")
)

// UnsupportedFormatError reports an input whose extension is not recognised.
type UnsupportedFormatError struct {
	File string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported format: " + filepath.Base(e.File)
}

// ConversionError reports a converter that could not produce pages for File.
type ConversionError struct {
	File  string
	Stage Stage
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s conversion of %s failed: %v", e.Stage, filepath.Base(e.File), e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ExternalToolError is a soft failure of the office suite. It is only
// surfaced wrapped inside a ConversionError when the fallback fails too.
type ExternalToolError struct {
	File   string
	Reason string
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("office suite failed on %s: %s", filepath.Base(e.File), e.Reason)
}

// OutputConflictError reports an output path that names one of the inputs.
type OutputConflictError struct {
	File string
}

func (e *OutputConflictError) Error() string {
	return "output would overwrite input: " + filepath.Base(e.File)
}

// AssemblyError reports a failure writing or verifying the output PDF.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string { return "failed to generate PDF: " + e.Err.Error() }

func (e *AssemblyError) Unwrap() error { return e.Err }

// Message is the short user-facing text for a job error.
func Message(err error) string {
	var (
		unsupported *UnsupportedFormatError
		conversion  *ConversionError
		assembly    *AssemblyError
		conflict    *OutputConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoFiles):
		return ErrNoFiles.Error()
	case errors.As(err, &conflict):
		return conflict.Error()
	case errors.As(err, &unsupported):
		return unsupported.Error()
	case errors.As(err, &conversion):
		return "unable to convert: " + filepath.Base(conversion.File)
	case errors.As(err, &assembly):
		return assembly.Error()
	case errors.Is(err, ErrNoContent):
		return ErrNoContent.Error()
	default:
		return "conversion failed: " + err.Error()
	}
}
