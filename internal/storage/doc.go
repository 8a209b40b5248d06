// Package storage provides SQLite-based persistence for knowledge base
// metadata: which documents are indexed, with which content hash, and the
// extracted text of each of their pages.
//
// Each knowledge base owns one database file at
// <data_dir>/<base>/cache.db. A Pool keeps one open handle per base.
//
// # Database Schema
//
// Tables:
//   - documents: one row per source file, unique on (base_name, path).
//     total_pages is NULL while an indexing run is in flight or after it
//     failed, so an incomplete document is never treated as unchanged.
//   - pages: page-equivalent text slices, replaced wholesale on re-index
//   - pages_fts: FTS5 index over page content, kept in sync by triggers
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("data/bases/manuals/cache.db", "manuals")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Transactions
//
// The document row and its pages are written in one transaction:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	doc := &storage.Document{Path: path, Filename: name, FileHash: hash}
//	if err := tx.UpsertDocument(ctx, doc); err != nil {
//	    return err
//	}
//	if err := tx.ReplacePages(ctx, doc.ID, pages); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// The connection pool holds a single connection. Do not call methods on the
// store itself while a transaction from it is open.
//
// # Full-Text Search
//
//	results, err := store.SearchPages(ctx, "warranty period", 10)
//
// Query terms are quoted before matching, so FTS5 operators in user input
// are treated as plain words.
//
// # Build Tags
//
// Pure Go build (default):
//
//   - Uses modernc.org/sqlite
//
//     CGO_ENABLED=0 go build ./...
//
// CGO build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3, which needs sqlite_fts5 for pages_fts
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
package storage
