package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/everything2pdf/internal/converter"
	"github.com/local/everything2pdf/internal/fallback"
	"github.com/local/everything2pdf/internal/filetype"
	"github.com/local/everything2pdf/internal/imagerender"
	"github.com/local/everything2pdf/internal/metrics"
)

// State is the job state machine position.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateAssembling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateProcessing:
		return "processing"
	case StateAssembling:
		return "assembling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ProgressFunc receives advisory progress: before file i it is called with
// (i, total, "processing: <name>") and before assembly with (total, total, "generating output").
type ProgressFunc func(current, total int, message string)

// OfficeConverter runs the external office suite.
type OfficeConverter interface {
	ConvertToPDF(ctx context.Context, job converter.Job) converter.Result
}

// FallbackConverter renders office files without the suite.
type FallbackConverter interface {
	Supports(path string) (fallback.Subtype, bool)
	ConvertToPDF(path, outDir string) (string, error)
}

// ImageNormalizer turns one image file into page images.
type ImageNormalizer interface {
	Normalize(path string, dpi int) ([]imagerender.PageImage, error)
}

// PDFRasterizer renders every page of a PDF file.
type PDFRasterizer interface {
	RasterizeFile(path string, dpi int) ([]imagerender.PageImage, error)
}

// PageAssembler writes the page stream as one PDF.
type PageAssembler interface {
	WriteFile(path string, pages []imagerender.PageImage) error
}

type Dependencies struct {
	Suite     converter.Locator
	Office    OfficeConverter
	Fallback  FallbackConverter
	Images    ImageNormalizer
	PDFs      PDFRasterizer
	Assembler PageAssembler
	// Status is optional.
	Status StatusStore

	ScratchRoot   string
	ScratchMaxAge time.Duration
	OfficeTimeout time.Duration
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// Request is one conversion job.
type Request struct {
	Paths      []string
	OutputPath string
	// OfficeSuitePath pins the suite executable; empty uses discovery.
	OfficeSuitePath string
	DPI             int
	Progress        ProgressFunc
}

// Result is the terminal outcome of a job. Scratch resources are already
// released when it is returned.
type Result struct {
	OK         bool
	Message    string
	OutputPath string
	Files      int
	Pages      int
	State      State
	JobID      string
	Err        error
}

type job struct {
	id      string
	req     Request
	dpi     int
	total   int
	scratch string
	stream  imagerender.Stream
	state   State
	start   time.Time
}

// Convert runs a job to completion. It never panics across the boundary and
// reports every failure through Result.
func (o *Orchestrator) Convert(ctx context.Context, req Request) Result {
	j := &job{
		id:    uuid.NewString(),
		req:   req,
		dpi:   req.DPI,
		total: len(req.Paths),
		start: time.Now(),
	}
	if j.dpi <= 0 {
		j.dpi = imagerender.DefaultDPI
	}

	logger := log.With().Str("job_id", j.id).Logger()
	logger.Info().Int("files", j.total).Int("dpi", j.dpi).Str("output", req.OutputPath).Msg("job started")

	pages, err := o.run(ctx, j)

	res := Result{OutputPath: req.OutputPath, Files: j.total, Pages: pages, JobID: j.id}
	if err != nil {
		j.state = StateFailed
		res.Err = err
		res.Message = Message(err)
		res.OutputPath = ""
		logger.Error().Err(err).Dur("duration", time.Since(j.start)).Msg("job failed")
		metrics.ObserveJob("failed", time.Since(j.start))
	} else {
		j.state = StateDone
		res.OK = true
		res.Message = fmt.Sprintf("converted %d files", j.total)
		logger.Info().Int("pages", pages).Dur("duration", time.Since(j.start)).Msg("job done")
		metrics.ObserveJob("done", time.Since(j.start))
		metrics.AddPages(pages)
	}
	res.State = j.state
	o.mirror(j, j.total, res.Message)

	if o.deps.ScratchMaxAge > 0 {
		CleanupScratch(o.deps.ScratchRoot, o.deps.ScratchMaxAge)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context, j *job) (int, error) {
	if j.total == 0 {
		return 0, ErrNoFiles
	}
	if in, ok := overwritesInput(j.req.OutputPath, j.req.Paths); ok {
		return 0, &OutputConflictError{File: in}
	}

	root := o.deps.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	scratch, err := os.MkdirTemp(root, scratchPattern())
	if err != nil {
		return 0, fmt.Errorf("create scratch dir: %w", err)
	}
	j.scratch = scratch
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("dir", scratch).Msg("failed to remove scratch dir")
		}
	}()

	j.state = StateProcessing
	for i, path := range j.req.Paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		o.progress(j, i, "processing: "+filepath.Base(path))

		pages, err := o.processFile(ctx, j, i, path)
		if err != nil {
			return 0, err
		}
		j.stream.Append(pages...)
	}

	if j.stream.Len() == 0 {
		return 0, ErrNoContent
	}

	j.state = StateAssembling
	o.progress(j, j.total, "generating output")
	if err := o.writeOutput(j); err != nil {
		return 0, err
	}
	return j.stream.Len(), nil
}

// processFile dispatches one input by kind and returns its pages in order.
func (o *Orchestrator) processFile(ctx context.Context, j *job, index int, path string) ([]imagerender.PageImage, error) {
	kind := filetype.Classify(path)
	logger := log.With().Str("job_id", j.id).Str("file", filepath.Base(path)).Str("kind", kind.String()).Logger()

	var (
		pages []imagerender.PageImage
		stage Stage
		err   error
	)
	switch kind {
	case filetype.Image:
		stage = StageImage
		err = recovered(func() (err error) {
			pages, err = o.deps.Images.Normalize(path, j.dpi)
			return err
		})
		metrics.IncFile(kind.String(), "normalize")
	case filetype.PDF:
		stage = StagePDFRasterize
		err = recovered(func() (err error) {
			pages, err = o.deps.PDFs.RasterizeFile(path, j.dpi)
			return err
		})
		metrics.IncFile(kind.String(), "rasterize")
	case filetype.Office:
		stage = StageOfficeFallback
		err = recovered(func() error {
			pdfPath, st, err := o.convertOffice(ctx, j, index, path)
			stage = st
			if err != nil {
				return err
			}
			stage = StagePDFRasterize
			pages, err = o.deps.PDFs.RasterizeFile(pdfPath, j.dpi)
			return err
		})
	default:
		return nil, &UnsupportedFormatError{File: path}
	}

	if err == nil && len(pages) == 0 {
		err = ErrNoPages
	}
	if err != nil {
		var conv *ConversionError
		if errors.As(err, &conv) {
			return nil, err
		}
		return nil, &ConversionError{File: path, Stage: stage, Err: err}
	}
	logger.Debug().Int("pages", len(pages)).Msg("file converted")
	return pages, nil
}

// recovered runs fn, turning a panic inside a converter into an error so it
// fails the file instead of the process.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("converter panicked")
			err = fmt.Errorf("converter panic: %v", r)
		}
	}()
	return fn()
}

// convertOffice tries the office suite, then the built-in fallback. Only a
// fallback failure is fatal; suite failures are logged and passed along.
func (o *Orchestrator) convertOffice(ctx context.Context, j *job, index int, path string) (string, Stage, error) {
	family := filetype.Family(path).String()
	logger := log.With().Str("job_id", j.id).Str("file", filepath.Base(path)).Logger()

	outDir := filepath.Join(j.scratch, strconv.Itoa(index))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", StageOfficePrimary, err
	}

	primaryErr := o.tryOfficeSuite(ctx, j, path, outDir)
	if primaryErr == nil {
		metrics.IncFile("office", "suite")
		return converter.ExpectedOutputPath(path, outDir), StageOfficePrimary, nil
	}
	logger.Warn().Err(primaryErr).Msg("office suite unavailable or failed, using fallback")

	if o.deps.Fallback == nil {
		return "", StageOfficeFallback, fmt.Errorf("%w; fallback: %w", primaryErr, fallback.ErrNoCapability)
	}
	sub, ok := o.deps.Fallback.Supports(path)
	if !ok {
		logger.Warn().Str("subtype", string(sub)).Msg("no fallback extractor for subtype")
		metrics.IncFallback(family, false)
		return "", StageOfficeFallback, fmt.Errorf("%w; fallback: %w", primaryErr, fallback.ErrNoCapability)
	}

	pdfPath, err := o.deps.Fallback.ConvertToPDF(path, outDir)
	metrics.IncFallback(family, err == nil)
	if err != nil {
		return "", StageOfficeFallback, fmt.Errorf("%w; fallback: %w", primaryErr, err)
	}
	metrics.IncFile("office", "fallback")
	return pdfPath, StageOfficeFallback, nil
}

func (o *Orchestrator) tryOfficeSuite(ctx context.Context, j *job, path, outDir string) error {
	exe := j.req.OfficeSuitePath
	if exe == "" && o.deps.Suite != nil {
		if ok, p := o.deps.Suite.Discover(); ok {
			exe = p
		}
	}
	if exe == "" || o.deps.Office == nil {
		return ErrNoOfficeSuite
	}

	res := o.deps.Office.ConvertToPDF(ctx, converter.Job{
		Executable: exe,
		InputPath:  path,
		OutputDir:  outDir,
		Timeout:    o.deps.OfficeTimeout,
	})
	if !res.Success {
		return &ExternalToolError{File: path, Reason: res.Error}
	}
	return nil
}

// overwritesInput reports the input that writing out would replace.
func overwritesInput(out string, paths []string) (string, bool) {
	if out == "" {
		return "", false
	}
	outAbs, err := filepath.Abs(out)
	if err != nil {
		outAbs = filepath.Clean(out)
	}
	outInfo, statErr := os.Stat(out)
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil && abs == outAbs {
			return p, true
		}
		if statErr != nil {
			continue
		}
		if info, err := os.Stat(p); err == nil && os.SameFile(info, outInfo) {
			return p, true
		}
	}
	return "", false
}

// writeOutput assembles into a sibling temp file, checks its page count and
// renames it over OutputPath, so a failure never leaves a partial artifact.
func (o *Orchestrator) writeOutput(j *job) error {
	out := j.req.OutputPath
	if out == "" {
		return &AssemblyError{Err: errors.New("no output path")}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return &AssemblyError{Err: err}
	}

	tmp := filepath.Join(filepath.Dir(out), "."+strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))+"-"+j.id+".pdf")
	pages := j.stream.Pages()
	if err := o.deps.Assembler.WriteFile(tmp, pages); err != nil {
		os.Remove(tmp)
		return &AssemblyError{Err: err}
	}

	n, err := PageCount(tmp)
	if err != nil {
		os.Remove(tmp)
		return &AssemblyError{Err: err}
	}
	if n != len(pages) {
		os.Remove(tmp)
		return &AssemblyError{Err: fmt.Errorf("wrote %d pages, expected %d", n, len(pages))}
	}

	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return &AssemblyError{Err: err}
	}
	return nil
}

func (o *Orchestrator) progress(j *job, current int, message string) {
	if j.req.Progress != nil {
		j.req.Progress(current, j.total, message)
	}
	o.mirror(j, current, message)
}

// mirror copies the job state to the status store, if any. Store errors do not
// affect the job.
func (o *Orchestrator) mirror(j *job, current int, message string) {
	if o.deps.Status == nil {
		return
	}
	st := Status{
		State:   j.state.String(),
		Current: current,
		Total:   j.total,
		Message: message,
		Start:   &j.start,
	}
	if j.state == StateDone || j.state == StateFailed {
		end := time.Now()
		st.End = &end
		st.Metadata = map[string]any{"output": j.req.OutputPath, "pages": j.stream.Len()}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.deps.Status.Set(ctx, j.id, st); err != nil {
		log.Debug().Err(err).Str("job_id", j.id).Msg("status update failed")
	}
}
