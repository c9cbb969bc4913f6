package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds a single headless conversion.
const DefaultTimeout = 120 * time.Second

// LibreOffice runs a headless office suite to convert documents to PDF.
type LibreOffice struct {
	executable string
	timeout    time.Duration
	semaphore  chan struct{}
	breaker    *Breaker
}

// Job represents a document conversion job
type Job struct {
	// Executable overrides the converter's default suite binary when set.
	Executable string
	InputPath  string
	OutputDir  string
	Timeout    time.Duration
}

// Result represents the result of a conversion operation. A failed Result is a
// soft failure: callers fall back to another converter.
type Result struct {
	Success    bool
	OutputPath string
	Error      string
	Duration   time.Duration
}

// NewLibreOffice creates a converter for the suite at executable (may be empty
// when every Job names its own). maxWorkers bounds concurrent suite processes
// across jobs.
func NewLibreOffice(executable string, timeout time.Duration, maxWorkers int) *LibreOffice {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &LibreOffice{
		executable: executable,
		timeout:    timeout,
		semaphore:  make(chan struct{}, maxWorkers),
		breaker:    NewBreaker(0, 0, 0),
	}
}

// WithBreaker replaces the timeout breaker.
func (l *LibreOffice) WithBreaker(b *Breaker) *LibreOffice {
	l.breaker = b
	return l
}

// Executable returns the suite binary this converter invokes.
func (l *LibreOffice) Executable() string { return l.executable }

// ConvertToPDF converts a document to PDF format
func (l *LibreOffice) ConvertToPDF(ctx context.Context, job Job) Result {
	startTime := time.Now()

	executable := job.Executable
	if executable == "" {
		executable = l.executable
	}
	if executable == "" {
		return Result{Error: "no office suite executable", Duration: time.Since(startTime)}
	}

	if !l.breaker.Allow() {
		return Result{Error: "office suite cooling down after repeated timeouts", Duration: time.Since(startTime)}
	}

	// Acquire semaphore to limit concurrent conversions
	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return Result{Error: fmt.Sprintf("conversion not started: %v", ctx.Err()), Duration: time.Since(startTime)}
	}
	defer func() { <-l.semaphore }()

	log.Info().Str("input", job.InputPath).Str("outdir", job.OutputDir).Msg("starting office conversion")

	if err := validateInput(job.InputPath); err != nil {
		return Result{
			Error:    fmt.Sprintf("input validation failed: %v", err),
			Duration: time.Since(startTime),
		}
	}

	// Unique profile directory so parallel suite processes do not fight over the profile lock
	profileDir := filepath.Join(job.OutputDir, fmt.Sprintf("office_profile_%s", uuid.New().String()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return Result{
			Error:    fmt.Sprintf("failed to create profile directory: %v", err),
			Duration: time.Since(startTime),
		}
	}
	defer os.RemoveAll(profileDir)

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(
		runCtx,
		executable,
		"-env:UserInstallation="+profileURL(profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", job.OutputDir,
		job.InputPath,
	)
	// soffice forks soffice.bin; stop waiting on its pipes shortly after a kill
	cmd.WaitDelay = 5 * time.Second
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("office suite command")

	output, err := cmd.CombinedOutput()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		l.breaker.Timeout()
		return Result{
			Error:    fmt.Sprintf("conversion timeout after %v", timeout),
			Duration: time.Since(startTime),
		}
	}
	if err != nil {
		return Result{
			Error:    fmt.Sprintf("conversion failed: %v: %s", err, strings.TrimSpace(string(output))),
			Duration: time.Since(startTime),
		}
	}

	expected := ExpectedOutputPath(job.InputPath, job.OutputDir)
	if _, err := os.Stat(expected); err != nil {
		return Result{
			Error:    fmt.Sprintf("output file not created: %v", err),
			Duration: time.Since(startTime),
		}
	}

	l.breaker.Success()
	log.Info().Str("output", expected).Dur("duration", time.Since(startTime)).Msg("office conversion successful")

	return Result{
		Success:    true,
		OutputPath: expected,
		Duration:   time.Since(startTime),
	}
}

// validateInput checks if the input file is readable
func validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}

	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("file not readable: %w", err)
	}
	file.Close()

	return nil
}

// ExpectedOutputPath is where the suite writes its PDF: same base name, .pdf, in outputDir.
func ExpectedOutputPath(inputPath, outputDir string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+".pdf")
}

func profileURL(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return "file://" + abs
}
