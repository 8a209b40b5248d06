package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// VectorsFile is the local vector database filename inside a base directory
const VectorsFile = "vectors.db"

const vectorSchema = `
CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    dimension INTEGER NOT NULL,
    distance TEXT NOT NULL DEFAULT 'Cosine',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS points (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    document_path TEXT NOT NULL,
    vector BLOB NOT NULL,
    payload TEXT NOT NULL,
    FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_points_collection_path ON points(collection, document_path);
`

// vectorDB is one open vectors.db
type vectorDB struct {
	db *sql.DB
}

func (v *vectorDB) Close() error {
	return v.db.Close()
}

// SQLiteStore keeps each base's vectors in <data_dir>/<base>/vectors.db and
// searches them with an in-process cosine scan
type SQLiteStore struct {
	pool *storage.Pool[*vectorDB]
}

// NewSQLiteStore creates a local store rooted at dataDir. Databases are
// opened lazily per base.
func NewSQLiteStore(dataDir string) *SQLiteStore {
	return &SQLiteStore{
		pool: storage.NewPool(func(base string) (*vectorDB, error) {
			dir := filepath.Join(dataDir, base)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: failed to create base directory: %v", types.ErrStore, err)
			}
			return openVectorDB(filepath.Join(dir, VectorsFile))
		}),
	}
}

func openVectorDB(path string) (*vectorDB, error) {
	db, err := storage.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open vector database: %v", types.ErrStore, err)
	}
	if _, err := db.Exec(vectorSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to create vector schema: %v", types.ErrStore, err)
	}
	return &vectorDB{db: db}, nil
}

func (s *SQLiteStore) handle(base string) (*sql.DB, error) {
	v, err := s.pool.Get(base)
	if err != nil {
		return nil, err
	}
	return v.db, nil
}

// collectionDim returns the collection's dimension, or ErrNotFound
func collectionDim(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}, base string) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, base).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("collection %s: %w", base, types.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read collection: %v", types.ErrStore, err)
	}
	return dim, nil
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, base string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", types.ErrValidation, dim)
	}
	db, err := s.handle(base)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, base, dim)
	if err != nil {
		return fmt.Errorf("%w: failed to create collection: %v", types.ErrStore, err)
	}

	existing, err := collectionDim(ctx, db, base)
	if err != nil {
		return err
	}
	if existing != dim {
		return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
			types.ErrValidation, base, existing, dim)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, base string, points []Point) ([]string, error) {
	ids := make([]string, len(points))
	if len(points) == 0 {
		return ids, nil
	}
	db, err := s.handle(base)
	if err != nil {
		return nil, err
	}

	dim, err := collectionDim(ctx, db, base)
	if err != nil {
		return nil, err
	}
	if err := validatePoints(points, dim); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", types.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (id, collection, document_path, vector, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection = excluded.collection,
			document_path = excluded.document_path,
			vector = excluded.vector,
			payload = excluded.payload
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare upsert: %v", types.ErrStore, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %v", types.ErrStore, err)
		}
		_, err = stmt.ExecContext(ctx, p.ID, base, p.Payload.DocumentPath, serializeVector(p.Vector), string(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to upsert point %s: %v", types.ErrStore, p.ID, err)
		}
		ids[i] = p.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit upsert: %v", types.ErrStore, err)
	}
	return ids, nil
}

func (s *SQLiteStore) DeleteByDocumentPath(ctx context.Context, base, path string) error {
	db, err := s.handle(base)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`DELETE FROM points WHERE collection = ? AND document_path = ?`, base, path)
	if err != nil {
		return fmt.Errorf("%w: failed to delete points for %s: %v", types.ErrStore, path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.Debug("deleted vectors", "base", base, "path", path, "count", n)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, base string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	db, err := s.handle(base)
	if err != nil {
		return err
	}
	query := `DELETE FROM points WHERE collection = ? AND id IN (` + placeholders(len(ids)) + `)`
	if _, err := db.ExecContext(ctx, query, idArgs(base, ids)...); err != nil {
		return fmt.Errorf("%w: failed to delete points: %v", types.ErrStore, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, base string, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return []Point{}, nil
	}
	db, err := s.handle(base)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, vector, payload FROM points WHERE collection = ? AND id IN (` + placeholders(len(ids)) + `)`
	rows, err := db.QueryContext(ctx, query, idArgs(base, ids)...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get points: %v", types.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]Point, len(ids))
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		found[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStore, err)
	}

	// Preserve request order
	points := make([]Point, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			points = append(points, p)
			delete(found, id)
		}
	}
	return points, nil
}

func (s *SQLiteStore) Search(ctx context.Context, base string, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	db, err := s.handle(base)
	if err != nil {
		return nil, err
	}
	dim, err := collectionDim(ctx, db, base)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query dimension %d, collection expects %d", types.ErrValidation, len(vector), dim)
	}

	query := `SELECT id, vector, payload FROM points WHERE collection = ?`
	args := []interface{}{base}
	if filter != nil && filter.DocumentPath != "" {
		query += ` AND document_path = ?`
		args = append(args, filter.DocumentPath)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search failed: %v", types.ErrStore, err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]ScoredPoint, 0)
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		if len(p.Vector) != dim {
			continue // Dimension mismatch, skip
		}
		score := cosineSimilarity(vector, p.Vector)
		if filter != nil && filter.MinScore > 0 && score < filter.MinScore {
			continue
		}
		p.Vector = nil
		hits = append(hits, ScoredPoint{Point: p, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStore, err)
	}

	sortScored(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *SQLiteStore) Count(ctx context.Context, base string) (int, error) {
	db, err := s.handle(base)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE collection = ?`, base).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count points: %v", types.ErrStore, err)
	}
	return n, nil
}

// Close closes every open base database
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func scanPoint(rows *sql.Rows) (Point, error) {
	var p Point
	var blob []byte
	var payload string
	if err := rows.Scan(&p.ID, &blob, &payload); err != nil {
		return p, fmt.Errorf("%w: failed to scan point: %v", types.ErrStore, err)
	}
	p.Vector = deserializeVector(blob)
	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return p, fmt.Errorf("%w: corrupt payload for %s: %v", types.ErrStore, p.ID, err)
	}
	return p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(base string, ids []string) []interface{} {
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, base)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
