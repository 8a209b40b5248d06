// Package vectorstore persists chunk embeddings per knowledge base and
// answers cosine-similarity queries over them.
//
// Two backends implement Store: a local SQLite file per base (default) and
// a Qdrant server reached over its REST API. Both are addressed by base
// name; the Qdrant backend uses the base name as the collection name.
package vectorstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// Backend names accepted by NewFromConfig
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Point is one stored vector with its chunk payload
type Point struct {
	ID      string
	Vector  []float32
	Payload types.Chunk
}

// ScoredPoint is a search hit. Vector is not populated.
type ScoredPoint struct {
	Point
	Score float64
}

// Filter narrows a search
type Filter struct {
	// DocumentPath restricts hits to one document when non-empty
	DocumentPath string
	// MinScore drops hits below this cosine similarity
	MinScore float64
}

// Store is the vector store contract used by the indexer and searcher
type Store interface {
	// EnsureCollection creates the base's collection if missing. An existing
	// collection with another dimension is a validation error.
	EnsureCollection(ctx context.Context, base string, dim int) error

	// Upsert inserts or replaces points and returns their ids in input order
	Upsert(ctx context.Context, base string, points []Point) ([]string, error)

	// DeleteByDocumentPath removes every point whose payload document_path
	// equals path
	DeleteByDocumentPath(ctx context.Context, base, path string) error

	// Delete removes points by id
	Delete(ctx context.Context, base string, ids []string) error

	// Get returns the points with the given ids; missing ids are omitted
	Get(ctx context.Context, base string, ids []string) ([]Point, error)

	// Search returns up to limit points ordered by descending cosine similarity
	Search(ctx context.Context, base string, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error)

	// Count returns the number of points in the base's collection
	Count(ctx context.Context, base string) (int, error)

	Close() error
}

// NewFromConfig builds the backend named by cfg.VectorStore.Backend
func NewFromConfig(cfg *config.Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.VectorStore.Backend))
	switch backend {
	case "", BackendSQLite:
		return NewSQLiteStore(cfg.DataDir), nil
	case BackendQdrant:
		q := cfg.VectorStore.Qdrant
		return NewQdrantStore(QdrantConfig{
			URL:     q.URL,
			APIKey:  q.APIKey,
			Timeout: time.Duration(q.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", types.ErrValidation, cfg.VectorStore.Backend)
	}
}

func validatePoints(points []Point, dim int) error {
	for i := range points {
		p := &points[i]
		if p.ID == "" {
			return fmt.Errorf("%w: point %d has no id", types.ErrValidation, i)
		}
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has dimension %d, collection expects %d",
				types.ErrValidation, p.ID, len(p.Vector), dim)
		}
		if p.Payload.Text == "" {
			return fmt.Errorf("%w: point %s has no text payload", types.ErrValidation, p.ID)
		}
		if p.Payload.ID != p.ID {
			return fmt.Errorf("%w: point %s carries payload id %q", types.ErrValidation, p.ID, p.Payload.ID)
		}
		if err := p.Payload.Validate(); err != nil {
			return fmt.Errorf("%w: point %s: %v", types.ErrValidation, p.ID, err)
		}
	}
	return nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortScored sorts hits by score descending, ties broken by id
func sortScored(hits []ScoredPoint) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
