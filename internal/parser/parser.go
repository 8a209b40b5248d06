package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/docindex-mcp/pkg/types"
)

// DefaultPageSize is the window size, in characters, used to split plain
// text into page-equivalents
const DefaultPageSize = 3000

// Supported extensions, lowercase with leading dot
const (
	ExtPDF      = ".pdf"
	ExtText     = ".txt"
	ExtMarkdown = ".md"
)

var supported = map[string]bool{
	ExtPDF:      true,
	ExtText:     true,
	ExtMarkdown: true,
}

// Parser extracts ordered page texts from source documents
type Parser struct {
	pageSize int
	openPDF  func(content []byte) (pdfDocument, error)
}

// Option configures a Parser
type Option func(*Parser)

// WithPageSize sets the plain-text window size in characters
func WithPageSize(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// New creates a new Parser instance
func New(opts ...Option) *Parser {
	p := &Parser{
		pageSize: DefaultPageSize,
		openPDF:  openLedongthuc,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PageSize returns the configured plain-text window size
func (p *Parser) PageSize() int {
	return p.pageSize
}

// SupportedExtensions returns the handled extensions in sorted order
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supported))
	for ext := range supported {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsSupported reports whether path has a handled extension
func IsSupported(path string) bool {
	return supported[strings.ToLower(filepath.Ext(path))]
}

// Parse returns the page texts of the document at path. An empty slice is
// a valid result for an empty source.
func (p *Parser) Parse(ctx context.Context, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, types.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", types.ErrExtraction, path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !supported[ext] {
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedType, ext)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", types.ErrExtraction, path, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch ext {
	case ExtPDF:
		return p.parsePDF(ctx, path, content)
	default:
		return p.parseText(path, content), nil
	}
}
