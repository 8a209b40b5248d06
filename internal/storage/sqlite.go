package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/dshills/docindex-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrNestedTx is returned when BeginTx is called on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db       *sql.DB
	path     string
	baseName string
}

// OpenDB opens a SQLite database with appropriate settings using the driver
// selected at build time
func OpenDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens (creating if needed) the metadata database of the
// named base at dbPath and brings its schema up to date
func NewSQLiteStorage(dbPath, baseName string) (*SQLiteStorage, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", types.ErrStore, err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to apply migrations: %v", types.ErrStore, err)
	}

	return &SQLiteStorage{db: db, path: dbPath, baseName: baseName}, nil
}

// BaseName returns the knowledge base this store belongs to
func (s *SQLiteStorage) BaseName() string {
	return s.baseName
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", types.ErrStore, err)
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Document operations

const documentColumns = `id, filename, path, base_name, file_hash, indexed_at, total_pages`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var totalPages sql.NullInt64
	err := row.Scan(&doc.ID, &doc.Filename, &doc.Path, &doc.BaseName,
		&doc.FileHash, &doc.IndexedAt, &totalPages)
	if err != nil {
		return nil, err
	}
	if totalPages.Valid {
		n := int(totalPages.Int64)
		doc.TotalPages = &n
	}
	return &doc, nil
}

// upsertDocumentWithQuerier inserts or updates the document row keyed by
// (base_name, path) and writes the resulting id back into doc
func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	if doc.Path == "" {
		return fmt.Errorf("%w: document path is required", types.ErrValidation)
	}
	if doc.BaseName == "" {
		doc.BaseName = s.baseName
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO documents (filename, path, base_name, total_pages, file_hash, indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(base_name, path) DO UPDATE SET
			filename = excluded.filename,
			total_pages = excluded.total_pages,
			file_hash = excluded.file_hash,
			indexed_at = excluded.indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	var totalPages interface{}
	if doc.TotalPages != nil {
		totalPages = *doc.TotalPages
	}
	now := time.Now().UTC()
	err := q.QueryRowContext(ctx, query,
		doc.Filename, doc.Path, doc.BaseName, totalPages,
		doc.FileHash, doc.IndexedAt, now, now).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert document: %v", types.ErrStore, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

// getDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, path string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE base_name = ? AND path = ?`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, s.baseName, path))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get document: %v", types.ErrStore, err)
	}
	return doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, path string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), path)
}

// getDocumentByIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentByIDWithQuerier(ctx context.Context, q querier, id int64) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get document: %v", types.ErrStore, err)
	}
	return doc, nil
}

func (s *SQLiteStorage) GetDocumentByID(ctx context.Context, id int64) (*Document, error) {
	return s.getDocumentByIDWithQuerier(ctx, s.querier(), id)
}

// listDocumentsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE base_name = ? ORDER BY path`
	rows, err := q.QueryContext(ctx, query, s.baseName)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list documents: %v", types.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan document: %v", types.ErrStore, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// markIndexedWithQuerier records a completed indexing run
func (s *SQLiteStorage) markIndexedWithQuerier(ctx context.Context, q querier, id int64, totalPages int, indexedAt time.Time) error {
	if totalPages < 0 {
		return fmt.Errorf("%w: total pages must be non-negative", types.ErrValidation)
	}
	query := `
		UPDATE documents
		SET total_pages = ?, indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query, totalPages, indexedAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: failed to mark document indexed: %v", types.ErrStore, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) MarkIndexed(ctx context.Context, id int64, totalPages int, indexedAt time.Time) error {
	return s.markIndexedWithQuerier(ctx, s.querier(), id, totalPages, indexedAt)
}

// deleteDocumentWithQuerier removes a document; its pages cascade
func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete document: %v", types.ErrStore, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id int64) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), id)
}

// Page operations

// replacePagesWithQuerier deletes every page of the document and inserts
// the given contents as pages 1..n
func (s *SQLiteStorage) replacePagesWithQuerier(ctx context.Context, q querier, documentID int64, pages []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM pages WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("%w: failed to clear pages: %v", types.ErrStore, err)
	}

	query := `INSERT INTO pages (document_id, page_num, content, char_count) VALUES (?, ?, ?, ?)`
	for i, content := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, query, documentID, i+1, content, utf8.RuneCountInString(content))
		if err != nil {
			return fmt.Errorf("%w: failed to insert page %d: %v", types.ErrStore, i+1, err)
		}
	}
	return nil
}

// ReplacePages runs the replacement in its own transaction so readers never
// observe a partially rewritten page set
func (s *SQLiteStorage) ReplacePages(ctx context.Context, documentID int64, pages []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", types.ErrStore, err)
	}
	if err := s.replacePagesWithQuerier(ctx, tx, documentID, pages); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// listPagesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listPagesWithQuerier(ctx context.Context, q querier, documentID int64) ([]*Page, error) {
	query := `
		SELECT id, document_id, page_num, content, char_count
		FROM pages
		WHERE document_id = ?
		ORDER BY page_num
	`
	rows, err := q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list pages: %v", types.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	pages := make([]*Page, 0)
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PageNum, &p.Content, &p.CharCount); err != nil {
			return nil, fmt.Errorf("%w: failed to scan page: %v", types.ErrStore, err)
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

func (s *SQLiteStorage) ListPages(ctx context.Context, documentID int64) ([]*Page, error) {
	return s.listPagesWithQuerier(ctx, s.querier(), documentID)
}

// searchPagesWithQuerier runs a BM25-ranked full-text query over page content
func (s *SQLiteStorage) searchPagesWithQuerier(ctx context.Context, q querier, query string, limit int) ([]PageResult, error) {
	match := sanitizeFTSQuery(query)
	if match == "" {
		return []PageResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// bm25() is negative in FTS5; lower is a better match.
	sqlQuery := `
		SELECT p.id, p.document_id, d.path, d.filename, p.page_num, p.content, bm25(pages_fts) AS score
		FROM pages_fts
		JOIN pages p ON p.id = pages_fts.rowid
		JOIN documents d ON d.id = p.document_id
		WHERE pages_fts MATCH ? AND d.base_name = ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, sqlQuery, match, s.baseName, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: full-text search failed: %v", types.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]PageResult, 0)
	for rows.Next() {
		var r PageResult
		if err := rows.Scan(&r.PageID, &r.DocumentID, &r.DocumentPath, &r.Filename,
			&r.PageNum, &r.Content, &r.BM25Score); err != nil {
			return nil, fmt.Errorf("%w: failed to scan search result: %v", types.ErrStore, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStorage) SearchPages(ctx context.Context, query string, limit int) ([]PageResult, error) {
	return s.searchPagesWithQuerier(ctx, s.querier(), query, limit)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*BaseStatus, error) {
	status := &BaseStatus{BaseName: s.baseName}

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN total_pages IS NULL THEN 1 ELSE 0 END), 0)
		FROM documents WHERE base_name = ?
	`, s.baseName).Scan(&status.DocumentsCount, &status.PendingCount)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count documents: %v", types.ErrStore, err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(p.char_count), 0)
		FROM pages p
		JOIN documents d ON d.id = p.document_id
		WHERE d.base_name = ?
	`, s.baseName).Scan(&status.PagesCount, &status.TotalChars)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count pages: %v", types.ErrStore, err)
	}

	// MAX() loses the column type, so read the newest row instead
	var last sql.NullTime
	err = q.QueryRowContext(ctx, `
		SELECT indexed_at FROM documents
		WHERE base_name = ? AND total_pages IS NOT NULL
		ORDER BY indexed_at DESC LIMIT 1
	`, s.baseName).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("%w: failed to read last indexed time: %v", types.ErrStore, err)
	}
	if last.Valid {
		status.LastIndexedAt = last.Time
	}

	version, err := currentSchemaVersion(ctx, q)
	if err == nil {
		status.SchemaVersion = version.String()
	}

	var ftsTable string
	err = q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='pages_fts'").Scan(&ftsTable)
	status.FTSIndexesBuilt = err == nil

	// Calculate database size
	var pageCount, pageSize int64
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}
	if s.path != "" && s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil && status.DatabaseSizeMB == 0 {
			status.DatabaseSizeMB = float64(info.Size()) / (1024 * 1024)
		}
	}

	status.DatabaseHealthy = true
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*BaseStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction implementations delegate to the storage helpers with the
// transaction as querier

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, path string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) GetDocumentByID(ctx context.Context, id int64) (*Document, error) {
	return t.storage.getDocumentByIDWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) MarkIndexed(ctx context.Context, id int64, totalPages int, indexedAt time.Time) error {
	return t.storage.markIndexedWithQuerier(ctx, t.querier(), id, totalPages, indexedAt)
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, id int64) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ReplacePages(ctx context.Context, documentID int64, pages []string) error {
	return t.storage.replacePagesWithQuerier(ctx, t.querier(), documentID, pages)
}

func (t *sqliteTx) ListPages(ctx context.Context, documentID int64) ([]*Page, error) {
	return t.storage.listPagesWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) SearchPages(ctx context.Context, query string, limit int) ([]PageResult, error) {
	return t.storage.searchPagesWithQuerier(ctx, t.querier(), query, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*BaseStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, ErrNestedTx
}
