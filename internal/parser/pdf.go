package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/pkg/types"
)

var errNullPage = errors.New("page object is null")

// pdfDocument is the page-level view of a PDF the parser needs
type pdfDocument interface {
	NumPage() int
	PageText(num int) (string, error)
}

type ledongthucDocument struct {
	reader *pdf.Reader
}

func (d ledongthucDocument) NumPage() int {
	return d.reader.NumPage()
}

func (d ledongthucDocument) PageText(num int) (string, error) {
	page := d.reader.Page(num)
	if page.V.IsNull() {
		return "", errNullPage
	}
	return page.GetPlainText(make(map[string]*pdf.Font))
}

func openLedongthuc(content []byte) (doc pdfDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	return ledongthucDocument{reader: reader}, nil
}

// pageText extracts one page, converting a library panic into an error
func pageText(doc pdfDocument, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return doc.PageText(num)
}

// parsePDF yields one entry per source page. A page that cannot be
// extracted becomes "" so page numbering stays aligned with the source.
func (p *Parser) parsePDF(ctx context.Context, path string, content []byte) ([]string, error) {
	doc, err := p.openPDF(content)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf %s: %v", types.ErrExtraction, path, err)
	}

	n := doc.NumPage()
	pages := make([]string, 0, n)
	failed := 0
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(doc, i)
		if err != nil {
			failed++
			logger.Warn("failed to extract pdf page", "path", path, "page", i, "error", err)
			text = ""
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	if failed > 0 {
		logger.Warn("pdf extracted with page failures", "path", path, "pages", n, "failed", failed)
	}
	return pages, nil
}
