// Package everything2pdf converts images, office documents and PDFs into one
// merged PDF of rasterized pages, keeping input order.
package everything2pdf

import (
	"context"
	"sync"
	"time"

	"github.com/local/everything2pdf/internal/converter"
	"github.com/local/everything2pdf/internal/fallback"
	"github.com/local/everything2pdf/internal/filetype"
	"github.com/local/everything2pdf/internal/imagerender"
	"github.com/local/everything2pdf/internal/orchestrator"
)

// FormatKind is the conversion route chosen from a file extension.
type FormatKind = filetype.Kind

const (
	Unsupported = filetype.Unsupported
	Image       = filetype.Image
	Office      = filetype.Office
	PDF         = filetype.PDF
)

// DefaultDPI is used when a request asks for dpi <= 0.
const DefaultDPI = imagerender.DefaultDPI

type (
	// ProgressFunc receives (current, total, message) before each file and before assembly.
	ProgressFunc = orchestrator.ProgressFunc
	// Result is the outcome of Convert. Message is always set.
	Result = orchestrator.Result
	// StatusStore mirrors job progress for external pollers.
	StatusStore = orchestrator.StatusStore
)

// Options tunes a Converter. The zero value is usable.
type Options struct {
	OfficeTimeout     time.Duration
	OfficeMaxWorkers  int
	FallbackFontPaths []string
	ScratchDir        string
	ScratchMaxAge     time.Duration
	Status            StatusStore
	// Suite overrides office suite discovery; nil uses the process-wide discovery.
	Suite converter.Locator
}

// Converter runs conversion jobs. Jobs share nothing except the office suite
// discovery cache and its process limit, so one Converter may serve many
// goroutines.
type Converter struct {
	orch *orchestrator.Orchestrator
}

// New builds a Converter wired to the go-fitz rasterizer, the gofpdf
// assembler, the headless office suite and the built-in fallback.
func New(opts Options) *Converter {
	suite := opts.Suite
	if suite == nil {
		suite = converter.Default()
	}
	timeout := opts.OfficeTimeout
	if timeout <= 0 {
		timeout = converter.DefaultTimeout
	}

	assembler := imagerender.NewAssembler()
	rasterizer := imagerender.NewRasterizer()
	return &Converter{orch: orchestrator.New(orchestrator.Dependencies{
		Suite:         suite,
		Office:        converter.NewLibreOffice("", timeout, opts.OfficeMaxWorkers),
		Fallback:      fallback.New(fallback.FindFont(opts.FallbackFontPaths)),
		Images:        imagerender.NewNormalizer(assembler, rasterizer),
		PDFs:          rasterizer,
		Assembler:     assembler,
		Status:        opts.Status,
		ScratchRoot:   opts.ScratchDir,
		ScratchMaxAge: opts.ScratchMaxAge,
		OfficeTimeout: timeout,
	})}
}

// Convert merges paths, in order, into outputPath. officeSuitePath may be empty
// to use discovery; progress may be nil.
func (c *Converter) Convert(ctx context.Context, paths []string, outputPath, officeSuitePath string, dpi int, progress ProgressFunc) Result {
	return c.orch.Convert(ctx, orchestrator.Request{
		Paths:           paths,
		OutputPath:      outputPath,
		OfficeSuitePath: officeSuitePath,
		DPI:             dpi,
		Progress:        progress,
	})
}

var (
	defaultOnce      sync.Once
	defaultConverter *Converter
)

// Convert runs one job on a process-wide Converter with default options.
func Convert(paths []string, outputPath, officeSuitePath string, dpi int, progress ProgressFunc) Result {
	defaultOnce.Do(func() { defaultConverter = New(Options{}) })
	return defaultConverter.Convert(context.Background(), paths, outputPath, officeSuitePath, dpi, progress)
}

// Classify maps a path to its conversion route by extension alone.
func Classify(path string) FormatKind { return filetype.Classify(path) }

// DiscoverOfficeSuite reports the office suite found on this host. Detection
// runs once per process; later calls return the cached answer.
func DiscoverOfficeSuite() (bool, string) { return converter.DiscoverOfficeSuite() }

// SupportedExtensions lists every accepted extension, dot included, sorted.
func SupportedExtensions() []string { return filetype.SupportedExtensions() }
