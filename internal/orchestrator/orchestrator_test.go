package orchestrator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/everything2pdf/internal/converter"
	"github.com/local/everything2pdf/internal/fallback"
	"github.com/local/everything2pdf/internal/imagerender"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

// writePDF creates a PDF whose pages have the given sizes in points.
func writePDF(t *testing.T, path string, sizes ...[2]float64) string {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i, s := range sizes {
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: s[0], Ht: s[1]})
		pdf.Text(10, 20, string(rune('A'+i)))
	}
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func pageSizes(t *testing.T, path string) [][2]int {
	t.Helper()
	doc, err := fitz.New(path)
	require.NoError(t, err)
	defer doc.Close()
	var out [][2]int
	for i := 0; i < doc.NumPage(); i++ {
		b, err := doc.Bound(i)
		require.NoError(t, err)
		out = append(out, [2]int{b.Dx(), b.Dy()})
	}
	return out
}

func assertSize(t *testing.T, want, got [2]int) {
	t.Helper()
	assert.InDelta(t, want[0], got[0], 2, "width")
	assert.InDelta(t, want[1], got[1], 2, "height")
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch root should be empty")
}

type fakeOffice struct {
	mu    sync.Mutex
	calls []converter.Job
	fn    func(job converter.Job) converter.Result
}

func (f *fakeOffice) ConvertToPDF(_ context.Context, job converter.Job) converter.Result {
	f.mu.Lock()
	f.calls = append(f.calls, job)
	f.mu.Unlock()
	return f.fn(job)
}

type fakeFallback struct {
	supports bool
	calls    int
	fn       func(path, outDir string) (string, error)
}

func (f *fakeFallback) Supports(string) (fallback.Subtype, bool) { return fallback.SubtypeDOCX, f.supports }

func (f *fakeFallback) ConvertToPDF(path, outDir string) (string, error) {
	f.calls++
	return f.fn(path, outDir)
}

type countingAssembler struct {
	inner *imagerender.Assembler
	calls int
}

func (c *countingAssembler) WriteFile(path string, pages []imagerender.PageImage) error {
	c.calls++
	return c.inner.WriteFile(path, pages)
}

type recordingStatus struct {
	mu     sync.Mutex
	states []Status
}

func (r *recordingStatus) Set(_ context.Context, _ string, st Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
	return nil
}

type emptyRasterizer struct{}

func (emptyRasterizer) RasterizeFile(string, int) ([]imagerender.PageImage, error) { return nil, nil }

func testDeps(scratch string) Dependencies {
	assembler := imagerender.NewAssembler()
	rasterizer := imagerender.NewRasterizer()
	return Dependencies{
		Suite:       converter.Static(""),
		Office:      converter.NewLibreOffice("", time.Minute, 1),
		Fallback:    fallback.New(""),
		Images:      imagerender.NewNormalizer(assembler, rasterizer),
		PDFs:        rasterizer,
		Assembler:   assembler,
		ScratchRoot: scratch,
	}
}

func TestConvert_NoFiles(t *testing.T) {
	scratch := t.TempDir()
	res := New(testDeps(scratch)).Convert(context.Background(), Request{OutputPath: filepath.Join(t.TempDir(), "out.pdf")})

	assert.False(t, res.OK)
	assert.Equal(t, "no files selected", res.Message)
	assert.ErrorIs(t, res.Err, ErrNoFiles)
	assert.Equal(t, StateFailed, res.State)
	assertEmptyDir(t, scratch)
}

func TestConvert_ImageAndPDF(t *testing.T) {
	in := t.TempDir()
	scratch := t.TempDir()
	out := filepath.Join(t.TempDir(), "merged.pdf")

	a := writePNG(t, in, "a.png", 100, 100)
	b := writePDF(t, filepath.Join(in, "b.pdf"), [2]float64{144, 72}, [2]float64{72, 144})

	res := New(testDeps(scratch)).Convert(context.Background(), Request{Paths: []string{a, b}, OutputPath: out, DPI: 150})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "converted 2 files", res.Message)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, out, res.OutputPath)
	assert.Equal(t, StateDone, res.State)

	sizes := pageSizes(t, out)
	require.Len(t, sizes, 3)
	assertSize(t, [2]int{208, 208}, sizes[0])
	assertSize(t, [2]int{300, 150}, sizes[1])
	assertSize(t, [2]int{150, 300}, sizes[2])

	assertEmptyDir(t, scratch)
	n, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestConvert_OrderAcrossFiles(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.pdf")

	first := writePDF(t, filepath.Join(in, "first.pdf"), [2]float64{72, 100}, [2]float64{72, 200})
	second := writePDF(t, filepath.Join(in, "second.pdf"), [2]float64{72, 300})
	img := writePNG(t, in, "wide.png", 40, 10)

	res := New(testDeps(t.TempDir())).Convert(context.Background(), Request{Paths: []string{second, first, img}, OutputPath: out, DPI: 72})
	require.True(t, res.OK, res.Message)

	sizes := pageSizes(t, out)
	require.Len(t, sizes, 4)
	assertSize(t, [2]int{72, 300}, sizes[0])
	assertSize(t, [2]int{72, 100}, sizes[1])
	assertSize(t, [2]int{72, 200}, sizes[2])
	assertSize(t, [2]int{40, 10}, sizes[3])
}

func TestConvert_Idempotent(t *testing.T) {
	in := t.TempDir()
	paths := []string{
		writePNG(t, in, "x.png", 30, 60),
		writePDF(t, filepath.Join(in, "y.pdf"), [2]float64{100, 50}),
	}
	o := New(testDeps(t.TempDir()))

	out1 := filepath.Join(t.TempDir(), "one.pdf")
	out2 := filepath.Join(t.TempDir(), "two.pdf")
	require.True(t, o.Convert(context.Background(), Request{Paths: paths, OutputPath: out1, DPI: 96}).OK)
	require.True(t, o.Convert(context.Background(), Request{Paths: paths, OutputPath: out2, DPI: 96}).OK)

	assert.Equal(t, pageSizes(t, out1), pageSizes(t, out2))
}

func TestConvert_UnsupportedAbortsJob(t *testing.T) {
	in := t.TempDir()
	scratch := t.TempDir()
	outDir := t.TempDir()
	out := filepath.Join(outDir, "out.pdf")

	good := writePNG(t, in, "ok.png", 10, 10)
	bad := filepath.Join(in, "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("hi"), 0o644))

	res := New(testDeps(scratch)).Convert(context.Background(), Request{Paths: []string{good, bad}, OutputPath: out})
	assert.False(t, res.OK)
	assert.Equal(t, "unsupported format: notes.txt", res.Message)
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, res.Err, &unsupported)
	assert.NoFileExists(t, out)
	assertEmptyDir(t, outDir)
	assertEmptyDir(t, scratch)
}

func TestConvert_LegacyOfficeWithoutSuite(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.pdf")
	doc := filepath.Join(in, "old.doc")
	header := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	require.NoError(t, os.WriteFile(doc, append(header, make([]byte, 1024)...), 0o644))

	deps := testDeps(t.TempDir())
	asm := &countingAssembler{inner: imagerender.NewAssembler()}
	deps.Assembler = asm

	res := New(deps).Convert(context.Background(), Request{Paths: []string{doc}, OutputPath: out})
	assert.False(t, res.OK)
	assert.Equal(t, "unable to convert: old.doc", res.Message)
	assert.ErrorIs(t, res.Err, fallback.ErrNoCapability)
	assert.ErrorIs(t, res.Err, ErrNoOfficeSuite)

	var conv *ConversionError
	require.ErrorAs(t, res.Err, &conv)
	assert.Equal(t, StageOfficeFallback, conv.Stage)
	assert.Zero(t, asm.calls)
	assert.NoFileExists(t, out)
}

func TestConvert_OfficeSuiteSuccess(t *testing.T) {
	in := t.TempDir()
	doc := filepath.Join(in, "report.docx")
	require.NoError(t, os.WriteFile(doc, []byte("placeholder"), 0o644))

	office := &fakeOffice{fn: func(job converter.Job) converter.Result {
		out := converter.ExpectedOutputPath(job.InputPath, job.OutputDir)
		writePDF(t, out, [2]float64{72, 72}, [2]float64{144, 144})
		return converter.Result{Success: true, OutputPath: out}
	}}
	fb := &fakeFallback{supports: true}

	deps := testDeps(t.TempDir())
	deps.Suite = converter.Static("/opt/office/soffice")
	deps.Office = office
	deps.Fallback = fb

	out := filepath.Join(t.TempDir(), "out.pdf")
	res := New(deps).Convert(context.Background(), Request{Paths: []string{doc}, OutputPath: out, DPI: 72})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, 2, res.Pages)
	require.Len(t, office.calls, 1)
	assert.Equal(t, "/opt/office/soffice", office.calls[0].Executable)
	assert.Zero(t, fb.calls)
}

func TestConvert_RequestSuitePathOverridesDiscovery(t *testing.T) {
	in := t.TempDir()
	doc := filepath.Join(in, "deck.pptx")
	require.NoError(t, os.WriteFile(doc, []byte("placeholder"), 0o644))

	office := &fakeOffice{fn: func(job converter.Job) converter.Result {
		out := converter.ExpectedOutputPath(job.InputPath, job.OutputDir)
		writePDF(t, out, [2]float64{72, 72})
		return converter.Result{Success: true, OutputPath: out}
	}}
	deps := testDeps(t.TempDir())
	deps.Office = office

	res := New(deps).Convert(context.Background(), Request{
		Paths:           []string{doc},
		OutputPath:      filepath.Join(t.TempDir(), "out.pdf"),
		OfficeSuitePath: "/custom/soffice",
	})
	require.True(t, res.OK, res.Message)
	require.Len(t, office.calls, 1)
	assert.Equal(t, "/custom/soffice", office.calls[0].Executable)
}

func TestConvert_SuiteFailureFallsBack(t *testing.T) {
	in := t.TempDir()
	doc := filepath.Join(in, "letter.docx")
	require.NoError(t, os.WriteFile(doc, []byte("placeholder"), 0o644))

	office := &fakeOffice{fn: func(converter.Job) converter.Result {
		return converter.Result{Error: "conversion timeout after 2m0s"}
	}}
	fb := &fakeFallback{supports: true, fn: func(path, outDir string) (string, error) {
		return writePDF(t, filepath.Join(outDir, "letter.pdf"), [2]float64{595, 842}), nil
	}}

	deps := testDeps(t.TempDir())
	deps.Suite = converter.Static("/opt/office/soffice")
	deps.Office = office
	deps.Fallback = fb

	res := New(deps).Convert(context.Background(), Request{Paths: []string{doc}, OutputPath: filepath.Join(t.TempDir(), "out.pdf"), DPI: 72})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, 1, res.Pages)
	assert.Len(t, office.calls, 1)
	assert.Equal(t, 1, fb.calls)
}

func TestConvert_FallbackFailureSurfacesBoth(t *testing.T) {
	in := t.TempDir()
	doc := filepath.Join(in, "letter.docx")
	require.NoError(t, os.WriteFile(doc, []byte("placeholder"), 0o644))

	deps := testDeps(t.TempDir())
	deps.Suite = converter.Static("/opt/office/soffice")
	deps.Office = &fakeOffice{fn: func(converter.Job) converter.Result {
		return converter.Result{Error: "conversion failed: exit status 1"}
	}}
	deps.Fallback = &fakeFallback{supports: true, fn: func(string, string) (string, error) {
		return "", fallback.ErrNoContent
	}}

	res := New(deps).Convert(context.Background(), Request{Paths: []string{doc}, OutputPath: filepath.Join(t.TempDir(), "out.pdf")})
	assert.False(t, res.OK)
	assert.Equal(t, "unable to convert: letter.docx", res.Message)
	assert.ErrorIs(t, res.Err, fallback.ErrNoContent)

	var tool *ExternalToolError
	require.ErrorAs(t, res.Err, &tool)
	assert.Contains(t, tool.Reason, "exit status 1")
}

func TestConvert_FallbackRendersDocx(t *testing.T) {
	in := t.TempDir()
	scratch := t.TempDir()
	doc := filepath.Join(in, "memo.docx")
	writeDocx(t, doc, "Quarterly numbers", "Second paragraph")

	res := New(testDeps(scratch)).Convert(context.Background(), Request{Paths: []string{doc}, OutputPath: filepath.Join(t.TempDir(), "out.pdf"), DPI: 72})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, 1, res.Pages)
	assertEmptyDir(t, scratch)
}

func TestConvert_ZeroPageFileFails(t *testing.T) {
	in := t.TempDir()
	pdf := writePDF(t, filepath.Join(in, "x.pdf"), [2]float64{72, 72})

	deps := testDeps(t.TempDir())
	deps.PDFs = emptyRasterizer{}

	res := New(deps).Convert(context.Background(), Request{Paths: []string{pdf}, OutputPath: filepath.Join(t.TempDir(), "out.pdf")})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, ErrNoPages)
	assert.Equal(t, "unable to convert: x.pdf", res.Message)
}

func TestConvert_CorruptImage(t *testing.T) {
	in := t.TempDir()
	bad := filepath.Join(in, "broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not a jpeg"), 0o644))

	res := New(testDeps(t.TempDir())).Convert(context.Background(), Request{Paths: []string{bad}, OutputPath: filepath.Join(t.TempDir(), "out.pdf")})
	assert.False(t, res.OK)
	assert.Equal(t, "unable to convert: broken.jpg", res.Message)

	var conv *ConversionError
	require.ErrorAs(t, res.Err, &conv)
	assert.Equal(t, StageImage, conv.Stage)
}

func TestConvert_AssemblyFailureLeavesNoOutput(t *testing.T) {
	in := t.TempDir()
	img := writePNG(t, in, "a.png", 10, 10)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	out := filepath.Join(blocker, "out.pdf")

	res := New(testDeps(t.TempDir())).Convert(context.Background(), Request{Paths: []string{img}, OutputPath: out})
	assert.False(t, res.OK)
	var asm *AssemblyError
	require.ErrorAs(t, res.Err, &asm)
	assert.Contains(t, res.Message, "failed to generate PDF: ")
	assert.Empty(t, res.OutputPath)
}

func TestConvert_ReplacesExistingOutput(t *testing.T) {
	in := t.TempDir()
	outDir := t.TempDir()
	out := filepath.Join(outDir, "out.pdf")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

	res := New(testDeps(t.TempDir())).Convert(context.Background(), Request{Paths: []string{writePNG(t, in, "a.png", 20, 20)}, OutputPath: out, DPI: 72})
	require.True(t, res.OK, res.Message)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, pageSizes(t, out), 1)
}

func TestConvert_ProgressEvents(t *testing.T) {
	in := t.TempDir()
	a := writePNG(t, in, "a.png", 10, 10)
	b := writePDF(t, filepath.Join(in, "b.pdf"), [2]float64{72, 72})

	type event struct {
		current, total int
		message        string
	}
	var events []event
	status := &recordingStatus{}
	deps := testDeps(t.TempDir())
	deps.Status = status

	res := New(deps).Convert(context.Background(), Request{
		Paths:      []string{a, b},
		OutputPath: filepath.Join(t.TempDir(), "out.pdf"),
		Progress: func(current, total int, message string) {
			events = append(events, event{current, total, message})
		},
	})
	require.True(t, res.OK, res.Message)

	assert.Equal(t, []event{
		{0, 2, "processing: a.png"},
		{1, 2, "processing: b.pdf"},
		{2, 2, "generating output"},
	}, events)

	require.Len(t, status.states, 4)
	assert.Equal(t, "processing", status.states[0].State)
	assert.Equal(t, "assembling", status.states[2].State)
	last := status.states[3]
	assert.Equal(t, "done", last.State)
	assert.Equal(t, "converted 2 files", last.Message)
	assert.NotNil(t, last.End)
	assert.Equal(t, 2, last.Metadata["pages"])
}

func TestConvert_CancelledContext(t *testing.T) {
	in := t.TempDir()
	scratch := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(testDeps(scratch)).Convert(ctx, Request{Paths: []string{writePNG(t, in, "a.png", 5, 5)}, OutputPath: filepath.Join(t.TempDir(), "out.pdf")})
	assert.False(t, res.OK)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assertEmptyDir(t, scratch)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "assembling", StateAssembling.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}

type panickingNormalizer struct{}

func (panickingNormalizer) Normalize(string, int) ([]imagerender.PageImage, error) {
	panic("decoder bug")
}

func TestConvert_ConverterPanicFailsFile(t *testing.T) {
	in := t.TempDir()
	img := writePNG(t, in, "a.png", 10, 10)
	out := filepath.Join(t.TempDir(), "out.pdf")
	scratch := t.TempDir()

	deps := testDeps(scratch)
	deps.Images = panickingNormalizer{}

	res := New(deps).Convert(context.Background(), Request{Paths: []string{img}, OutputPath: out})
	assert.False(t, res.OK)
	assert.Equal(t, "unable to convert: a.png", res.Message)

	var conv *ConversionError
	require.ErrorAs(t, res.Err, &conv)
	assert.Equal(t, StageImage, conv.Stage)
	assert.Contains(t, conv.Err.Error(), "converter panic")
	assert.NoFileExists(t, out)
	assertEmptyDir(t, scratch)
}

func TestConvert_BrokenLegacySpreadsheet(t *testing.T) {
	in := t.TempDir()
	bad := filepath.Join(in, "bad.xls")
	writeBrokenXLS(t, bad)
	out := filepath.Join(t.TempDir(), "out.pdf")
	scratch := t.TempDir()

	res := New(testDeps(scratch)).Convert(context.Background(), Request{Paths: []string{bad}, OutputPath: out})
	assert.False(t, res.OK)
	assert.Equal(t, "unable to convert: bad.xls", res.Message)

	var conv *ConversionError
	require.ErrorAs(t, res.Err, &conv)
	assert.Equal(t, StageOfficeFallback, conv.Stage)
	assert.Contains(t, res.Err.Error(), "read compound file")
	assert.NoFileExists(t, out)
	assertEmptyDir(t, scratch)
}

func TestConvert_OutputNamesInput(t *testing.T) {
	in := t.TempDir()
	src := writePDF(t, filepath.Join(in, "in.pdf"), [2]float64{72, 72})
	before, err := os.ReadFile(src)
	require.NoError(t, err)
	scratch := t.TempDir()

	res := New(testDeps(scratch)).Convert(context.Background(), Request{
		Paths:      []string{src},
		OutputPath: filepath.Join(in, ".", "in.pdf"),
	})
	assert.False(t, res.OK)
	assert.Equal(t, "output would overwrite input: in.pdf", res.Message)
	var conflict *OutputConflictError
	assert.ErrorAs(t, res.Err, &conflict)

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assertEmptyDir(t, scratch)
}
