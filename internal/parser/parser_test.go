package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/pkg/types"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// fakePDF serves page texts from a slice; nil entries fail, and the page
// numbered panicPage panics
type fakePDF struct {
	pages     []*string
	panicPage int
}

func (f *fakePDF) NumPage() int { return len(f.pages) }

func (f *fakePDF) PageText(num int) (string, error) {
	if num == f.panicPage {
		panic("broken content stream")
	}
	if f.pages[num-1] == nil {
		return "", errors.New("bad font")
	}
	return *f.pages[num-1], nil
}

func strPtr(s string) *string { return &s }

func newWithFakePDF(doc pdfDocument) *Parser {
	p := New()
	p.openPDF = func([]byte) (pdfDocument, error) { return doc, nil }
	return p
}

func TestNew(t *testing.T) {
	p := New()
	assert.Equal(t, DefaultPageSize, p.PageSize())

	p = New(WithPageSize(10))
	assert.Equal(t, 10, p.PageSize())

	p = New(WithPageSize(0))
	assert.Equal(t, DefaultPageSize, p.PageSize())
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.pdf"))
	assert.True(t, IsSupported("/x/B.PDF"))
	assert.True(t, IsSupported("notes.md"))
	assert.True(t, IsSupported("notes.txt"))
	assert.False(t, IsSupported("sheet.docx"))
	assert.False(t, IsSupported("Makefile"))
	assert.Equal(t, []string{".md", ".pdf", ".txt"}, SupportedExtensions())
}

func TestParse_Text(t *testing.T) {
	path := writeFile(t, "a.txt", []byte("  Hello world.  "))

	pages, err := New().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello world."}, pages)
}

func TestParse_TextWindows(t *testing.T) {
	// 25 characters with a window of 10 gives 3 pages
	content := "aaaaaaaaa bbbbbbbbb ccccc"
	path := writeFile(t, "a.md", []byte(content))

	pages, err := New(WithPageSize(10)).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaaa", "bbbbbbbbb", "ccccc"}, pages)
}

func TestParse_TextWindowsCountRunes(t *testing.T) {
	content := strings.Repeat("é", 15)
	path := writeFile(t, "a.txt", []byte(content))

	pages, err := New(WithPageSize(10)).Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, strings.Repeat("é", 10), pages[0])
	assert.Equal(t, strings.Repeat("é", 5), pages[1])
}

func TestParse_InvalidUTF8Dropped(t *testing.T) {
	content := []byte("ok\xff\xfe text")
	path := writeFile(t, "a.txt", content)

	pages, err := New().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok text"}, pages)
}

func TestParse_EmptyText(t *testing.T) {
	for _, content := range []string{"", "\xff\xfe"} {
		path := writeFile(t, "empty.txt", []byte(content))
		pages, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		assert.Empty(t, pages)
	}
}

func TestParse_WhitespaceOnlyText(t *testing.T) {
	for _, name := range []string{"blank.txt", "blank.md"} {
		path := writeFile(t, name, []byte("   \n\n  "))
		pages, err := New().Parse(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, []string{""}, pages, name)
	}
}

func TestParse_Unsupported(t *testing.T) {
	path := writeFile(t, "a.docx", []byte("x"))

	_, err := New().Parse(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrUnsupportedType)
	assert.True(t, types.IsValidation(err))
}

func TestParse_MissingFile(t *testing.T) {
	for _, name := range []string{"missing.pdf", "missing.xlsx"} {
		_, err := New().Parse(context.Background(), filepath.Join(t.TempDir(), name))
		assert.ErrorIs(t, err, types.ErrNotFound, name)
		assert.NotErrorIs(t, err, types.ErrUnsupportedType, name)
	}
}

func TestParse_CancelledContext(t *testing.T) {
	path := writeFile(t, "a.txt", []byte("text"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Parse(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_GarbagePDF(t *testing.T) {
	path := writeFile(t, "bad.pdf", []byte("this is not a pdf at all"))

	_, err := New().Parse(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrExtraction)
}

func TestParse_PDFPageFailures(t *testing.T) {
	doc := &fakePDF{
		pages:     []*string{strPtr("  first page  "), nil, strPtr("third"), strPtr("fourth")},
		panicPage: 4,
	}
	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4"))

	pages, err := newWithFakePDF(doc).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first page", "", "third", ""}, pages)
}

func TestParse_PDFAllPagesFail(t *testing.T) {
	doc := &fakePDF{pages: []*string{nil, nil, nil}}
	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4"))

	pages, err := newWithFakePDF(doc).Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "", ""}, pages)
}

func TestParse_PDFOpenError(t *testing.T) {
	p := New()
	p.openPDF = func([]byte) (pdfDocument, error) { return nil, errors.New("encrypted") }
	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4"))

	_, err := p.Parse(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrExtraction)
}

// buildPDF writes a minimal PDF with one text line per page
func buildPDF(lines ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	n := len(lines)
	fontObj := 3 + 2*n

	kids := make([]string, n)
	for i := range lines {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, line := range lines {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			fontObj, 4+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", line)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestParse_PDF(t *testing.T) {
	path := writeFile(t, "two.pdf", buildPDF("Hello page one", "Second page"))

	pages, err := New().Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0], "Hello")
	assert.Contains(t, pages[1], "Second")
}
