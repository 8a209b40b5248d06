package types

import "errors"

// Pipeline error taxonomy. Components wrap these with fmt.Errorf("...: %w").
var (
	// ErrNotFound is returned when a source file or record does not exist
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed input such as bad chunk parameters
	ErrValidation = errors.New("validation failed")
	// ErrUnsupportedType is returned for file extensions the parser cannot handle
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrExtraction is returned when text extraction fails for a whole file
	ErrExtraction = errors.New("text extraction failed")
	// ErrStore is returned when a metadata or vector store write fails
	ErrStore = errors.New("store operation failed")
	// ErrEmbedding is returned when the embedding provider fails
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndexingInProgress is returned when a scan is already running for a base
	ErrIndexingInProgress = errors.New("indexing already in progress")
)

// Search result errors
var (
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingDocumentPath   = errors.New("document path is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
)

// IsValidation reports whether err is a validation-class failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUnsupportedType)
}
