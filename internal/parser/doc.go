// Package parser extracts page texts from PDF, plain-text and markdown
// documents.
//
// PDF files yield one entry per source page. A page that fails to extract
// becomes an empty string and is logged; it never fails the document.
// Plain text and markdown have no pages, so their decoded text is cut into
// fixed windows of PageSize characters.
//
// # Basic Usage
//
//	p := parser.New(parser.WithPageSize(3000))
//	pages, err := p.Parse(ctx, "/data/manuals/guide.pdf")
//	if err != nil {
//	    if errors.Is(err, types.ErrUnsupportedType) {
//	        // skip file
//	    }
//	    return err
//	}
//	for i, text := range pages {
//	    fmt.Printf("page %d: %d chars\n", i+1, len(text))
//	}
//
// # Errors
//
//   - types.ErrNotFound: the file does not exist
//   - types.ErrUnsupportedType: the extension is not .pdf, .txt or .md
//   - types.ErrExtraction: the file could not be read or is not a PDF
package parser
