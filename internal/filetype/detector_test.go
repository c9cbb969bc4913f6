package filetype

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"photo.JPG":          Image,
		"scan.jpeg":          Image,
		"a/b/c.png":          Image,
		"x.bmp":              Image,
		"anim.gif":           Image,
		"fax.TIFF":           Image,
		"fax.tif":            Image,
		"pic.webp":           Image,
		"report.doc":         Office,
		"report.DOCX":        Office,
		"book.xls":           Office,
		"book.xlsx":          Office,
		"deck.ppt":           Office,
		"deck.pptx":          Office,
		"paper.PDF":          PDF,
		"notes.txt":          Unsupported,
		"archive.zip":        Unsupported,
		"noextension":        Unsupported,
		"trailing.pdf.bak":   Unsupported,
		"/tmp/dir.pdf/x.odt": Unsupported,
	}
	for path, want := range cases {
		assert.Equal(t, want, Classify(path), path)
	}
}

func TestFamily(t *testing.T) {
	assert.Equal(t, FamilyWord, Family("a.doc"))
	assert.Equal(t, FamilyWord, Family("a.DocX"))
	assert.Equal(t, FamilySpreadsheet, Family("a.xls"))
	assert.Equal(t, FamilySlides, Family("a.pptx"))
	assert.Equal(t, FamilyNone, Family("a.pdf"))
}

func TestSupportedExtensions(t *testing.T) {
	exts := SupportedExtensions()
	assert.Len(t, exts, 15)
	assert.True(t, sort.StringsAreSorted(exts))
	assert.Contains(t, exts, ".pdf")
	assert.Contains(t, exts, ".webp")
	assert.Contains(t, exts, ".pptx")
	for _, ext := range exts {
		assert.NotEqual(t, Unsupported, Classify("file"+ext), ext)
	}
}

func TestSniff_Zip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renamed.doc")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<w:document/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	info, err := Sniff(path)
	require.NoError(t, err)
	assert.Equal(t, ContainerOOXML, info.Container)
}

func TestSniff_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.xls")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o644))

	info, err := Sniff(path)
	require.NoError(t, err)
	assert.Equal(t, ContainerUnknown, info.Container)
}

func TestSniff_Missing(t *testing.T) {
	_, err := Sniff(filepath.Join(t.TempDir(), "missing.docx"))
	assert.Error(t, err)
}
