package parser

import (
	"strings"

	"github.com/dshills/docindex-mcp/internal/logger"
)

// parseText slices decoded text into fixed windows of pageSize characters.
// Invalid UTF-8 sequences are dropped.
func (p *Parser) parseText(path string, content []byte) []string {
	text := strings.ToValidUTF8(string(content), "")
	if text == "" {
		logger.Warn("document has no text content", "path", path)
		return []string{}
	}

	runes := []rune(text)
	pages := make([]string, 0, len(runes)/p.pageSize+1)
	for start := 0; start < len(runes); start += p.pageSize {
		end := start + p.pageSize
		if end > len(runes) {
			end = len(runes)
		}
		pages = append(pages, strings.TrimSpace(string(runes[start:end])))
	}
	return pages
}
