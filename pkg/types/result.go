package types

// SearchResult represents a single search hit with relevance information
type SearchResult struct {
	// Identification
	ID   string // chunk id for vector hits, "page:<id>" for keyword hits
	Rank int    // Position in result set (1-based)

	// Scoring
	RelevanceScore float64

	// Metadata
	Document *DocumentInfo
	Content  string
	Source   string // "vector", "keyword" or "hybrid"
}

// DocumentInfo locates a search hit inside its source document
type DocumentInfo struct {
	Path      string
	Filename  string
	PageNum   int
	StartChar int
	EndChar   int
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.RelevanceScore < 0 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Document == nil || sr.Document.Path == "" {
		return ErrMissingDocumentPath
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
