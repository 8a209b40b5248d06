package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting document and page metadata
// of one knowledge base
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, path string) (*Document, error)
	GetDocumentByID(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	MarkIndexed(ctx context.Context, id int64, totalPages int, indexedAt time.Time) error
	DeleteDocument(ctx context.Context, id int64) error

	// Page operations
	ReplacePages(ctx context.Context, documentID int64, pages []string) error
	ListPages(ctx context.Context, documentID int64) ([]*Page, error)
	SearchPages(ctx context.Context, query string, limit int) ([]PageResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*BaseStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Document represents one indexed source file
type Document struct {
	ID        int64
	Filename  string
	Path      string // Absolute path, unique within a base
	BaseName  string
	FileHash  string
	IndexedAt time.Time

	// TotalPages is nil until the document has been fully indexed
	TotalPages *int
}

// Indexed reports whether the last indexing run for the document completed
func (d *Document) Indexed() bool {
	return d.TotalPages != nil
}

// Page represents one page-equivalent slice of a document's text
type Page struct {
	ID         int64
	DocumentID int64
	PageNum    int // 1-based
	Content    string
	CharCount  int
}

// PageResult is a full-text search hit on a page
type PageResult struct {
	PageID       int64
	DocumentID   int64
	DocumentPath string
	Filename     string
	PageNum      int
	Content      string
	BM25Score    float64
}

// BaseStatus contains statistics about one knowledge base
type BaseStatus struct {
	BaseName        string
	DocumentsCount  int
	PendingCount    int // documents whose last run did not finish
	PagesCount      int
	TotalChars      int64
	LastIndexedAt   time.Time
	DatabaseSizeMB  float64
	SchemaVersion   string
	DatabaseHealthy bool
	FTSIndexesBuilt bool
}
