package searcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docindex-mcp/internal/embedder"
	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/parser"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/vectorstore"
	"github.com/dshills/docindex-mcp/pkg/types"
)

const (
	cookingText = "Bread needs flour, water and yeast. Knead the dough for ten minutes. " +
		"Let the dough rise in a warm kitchen."
	spaceText = "Rockets reach orbit using staged propulsion. Satellites circle the planet. " +
		"The kitchen on the station is small."
)

// failingEmbedder fails every query embedding
type failingEmbedder struct {
	embedder.Embedder
}

func (f failingEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return nil, errors.New("provider unavailable")
}

type searchEnv struct {
	dataDir  string
	pool     *storage.Pool[storage.Storage]
	vectors  *vectorstore.SQLiteStore
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *Searcher
	paths    map[string]string
}

// setupTestSearcher indexes the cooking and space documents into base "kb"
func setupTestSearcher(t *testing.T, opts Options) *searchEnv {
	t.Helper()

	dataDir := t.TempDir()
	pool := storage.NewPool(storage.OpenBase(dataDir))
	vectors := vectorstore.NewSQLiteStore(dataDir)
	t.Cleanup(func() {
		_ = pool.Close()
		_ = vectors.Close()
	})

	emb, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	opts.DataDir = dataDir
	s := NewSearcher(pool, vectors, emb, opts)

	idx, err := indexer.New(pool, vectors, emb, parser.New(), &indexer.Config{
		DataDir:   dataDir,
		ChunkSize: 12,
		OnIndexed: s.InvalidateBase,
	})
	require.NoError(t, err)

	env := &searchEnv{
		dataDir:  dataDir,
		pool:     pool,
		vectors:  vectors,
		embedder: emb,
		indexer:  idx,
		searcher: s,
		paths:    make(map[string]string),
	}

	dir := idx.DocumentsDir("kb")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range map[string]string{"cooking.txt": cookingText, "space.md": spaceText} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		env.paths[name] = path
	}

	result, err := idx.ScanFolder(context.Background(), "kb", nil)
	require.NoError(t, err)
	require.Len(t, result.Documents, 2)
	return env
}

func assertRanked(t *testing.T, results []types.SearchResult) {
	t.Helper()
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.NoError(t, r.Validate())
		if i > 0 {
			assert.LessOrEqual(t, r.RelevanceScore, results[i-1].RelevanceScore)
		}
	}
}

func TestNewSearcher(t *testing.T) {
	s := NewSearcher(nil, nil, nil, Options{})
	assert.NotNil(t, s.cache)

	disabled := NewSearcher(nil, nil, nil, Options{CacheSize: -1})
	assert.Nil(t, disabled.cache)
	assert.Zero(t, disabled.CacheLen())

	_, err := s.Search(context.Background(), SearchRequest{Base: "kb", Query: "x"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSearch_Keyword(t *testing.T) {
	env := setupTestSearcher(t, Options{})

	resp, err := env.searcher.Search(context.Background(), SearchRequest{
		Base:  "kb",
		Query: "yeast",
		Mode:  SearchModeKeyword,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	r := resp.Results[0]
	assert.Equal(t, "cooking.txt", r.Document.Filename)
	assert.Equal(t, 1, r.Document.PageNum)
	assert.Equal(t, string(SearchModeKeyword), r.Source)
	assert.True(t, strings.HasPrefix(r.ID, "page:"))
	assert.Greater(t, r.RelevanceScore, 0.0)
	assert.Contains(t, r.Content, "yeast")

	assert.Equal(t, SearchModeKeyword, resp.SearchMode)
	assert.Equal(t, 1, resp.TextResults)
	assert.Zero(t, resp.VectorResults)
	assertRanked(t, resp.Results)
}

func TestSearch_Vector(t *testing.T) {
	env := setupTestSearcher(t, Options{})

	resp, err := env.searcher.Search(context.Background(), SearchRequest{
		Base:  "kb",
		Query: "knead the bread dough with yeast",
		Mode:  SearchModeVector,
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, "cooking.txt", top.Document.Filename)
	assert.Equal(t, string(SearchModeVector), top.Source)
	assert.Equal(t, env.paths["cooking.txt"], top.Document.Path)
	assert.NotEmpty(t, top.ID)
	assertRanked(t, resp.Results)
}

func TestSearch_Hybrid(t *testing.T) {
	env := setupTestSearcher(t, Options{})

	resp, err := env.searcher.Search(context.Background(), SearchRequest{
		Base:  "kb",
		Query: "dough kitchen",
	})
	require.NoError(t, err)

	assert.Equal(t, SearchModeHybrid, resp.SearchMode)
	require.Len(t, resp.Results, 2, "one result per page")
	assert.Equal(t, "cooking.txt", resp.Results[0].Document.Filename)
	for _, r := range resp.Results {
		assert.Equal(t, string(SearchModeHybrid), r.Source)
	}
	assert.Positive(t, resp.VectorResults)
	assert.Equal(t, 2, resp.TextResults)
	assertRanked(t, resp.Results)
}

func TestSearch_DocumentFilter(t *testing.T) {
	env := setupTestSearcher(t, Options{})
	ctx := context.Background()

	for _, mode := range []SearchMode{SearchModeKeyword, SearchModeVector, SearchModeHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			resp, err := env.searcher.Search(ctx, SearchRequest{
				Base:         "kb",
				Query:        "kitchen",
				Mode:         mode,
				DocumentPath: env.paths["space.md"],
			})
			require.NoError(t, err)
			require.NotEmpty(t, resp.Results)
			for _, r := range resp.Results {
				assert.Equal(t, "space.md", r.Document.Filename)
			}
		})
	}
}

func TestSearch_Limit(t *testing.T) {
	env := setupTestSearcher(t, Options{})

	resp, err := env.searcher.Search(context.Background(), SearchRequest{
		Base:  "kb",
		Query: "the dough kitchen planet",
		Mode:  SearchModeVector,
		Limit: 1,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestSearch_Validation(t *testing.T) {
	env := setupTestSearcher(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  SearchRequest
		want error
	}{
		{"empty query", SearchRequest{Base: "kb", Query: "   "}, types.ErrValidation},
		{"bad mode", SearchRequest{Base: "kb", Query: "x", Mode: "fuzzy"}, types.ErrValidation},
		{"bad base", SearchRequest{Base: "../etc", Query: "x"}, types.ErrValidation},
		{"unknown base", SearchRequest{Base: "missing", Query: "x"}, types.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.searcher.Search(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSearch_BaseWithoutVectors(t *testing.T) {
	env := setupTestSearcher(t, Options{})
	require.NoError(t, os.MkdirAll(filepath.Join(env.dataDir, "empty"), 0o755))

	for _, mode := range []SearchMode{SearchModeVector, SearchModeHybrid, SearchModeKeyword} {
		resp, err := env.searcher.Search(context.Background(), SearchRequest{Base: "empty", Query: "dough", Mode: mode})
		require.NoError(t, err, mode)
		assert.Empty(t, resp.Results, mode)
	}
}

func TestSearch_HybridSurvivesEmbeddingFailure(t *testing.T) {
	env := setupTestSearcher(t, Options{})
	s := NewSearcher(env.pool, env.vectors, failingEmbedder{env.embedder}, Options{DataDir: env.dataDir})

	resp, err := s.Search(context.Background(), SearchRequest{Base: "kb", Query: "yeast"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "cooking.txt", resp.Results[0].Document.Filename)
	assert.Zero(t, resp.VectorResults)

	_, err = s.Search(context.Background(), SearchRequest{Base: "kb", Query: "yeast", Mode: SearchModeVector})
	assert.Error(t, err)
}

func TestSearch_Cache(t *testing.T) {
	env := setupTestSearcher(t, Options{})
	ctx := context.Background()
	req := SearchRequest{Base: "kb", Query: "yeast", Mode: SearchModeKeyword, UseCache: true}

	first, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, env.searcher.CacheLen())

	second, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)

	// Mutating a returned response does not leak into the cache
	second.Results[0].Document.Filename = "changed"
	third, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "cooking.txt", third.Results[0].Document.Filename)

	// Without UseCache the cache is bypassed
	uncached, err := env.searcher.Search(ctx, SearchRequest{Base: "kb", Query: "yeast", Mode: SearchModeKeyword})
	require.NoError(t, err)
	assert.False(t, uncached.CacheHit)
}

func TestSearch_CacheInvalidatedByIndexing(t *testing.T) {
	env := setupTestSearcher(t, Options{})
	ctx := context.Background()
	req := SearchRequest{Base: "kb", Query: "yeast", Mode: SearchModeKeyword, UseCache: true}

	_, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, env.searcher.CacheLen())

	env.searcher.InvalidateBase("other", "")
	assert.Equal(t, 1, env.searcher.CacheLen())

	path := env.paths["space.md"]
	require.NoError(t, os.WriteFile(path, []byte(spaceText+" Astronauts bake bread with yeast."), 0o644))
	_, err = env.indexer.IndexFile(ctx, "kb", path, nil)
	require.NoError(t, err)
	assert.Zero(t, env.searcher.CacheLen())

	resp, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Len(t, resp.Results, 2)
}

func TestSearch_CacheExpires(t *testing.T) {
	env := setupTestSearcher(t, Options{CacheTTL: 50 * time.Millisecond})
	ctx := context.Background()
	req := SearchRequest{Base: "kb", Query: "yeast", Mode: SearchModeKeyword, UseCache: true}

	_, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	resp, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestParseMode(t *testing.T) {
	tests := map[string]SearchMode{
		"":         SearchModeHybrid,
		"hybrid":   SearchModeHybrid,
		" Vector ": SearchModeVector,
		"KEYWORD":  SearchModeKeyword,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("semantic")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestApplyRRF(t *testing.T) {
	chunk := func(id, path string, page int, text string, score float64) vectorstore.ScoredPoint {
		return vectorstore.ScoredPoint{
			Point: vectorstore.Point{ID: id, Payload: types.Chunk{
				ID: id, DocumentPath: path, Filename: filepath.Base(path), PageNum: page, Text: text,
			}},
			Score: score,
		}
	}
	vectorHits := []vectorstore.ScoredPoint{
		chunk("c1", "/a.pdf", 2, "best chunk", 0.9),
		chunk("c2", "/a.pdf", 2, "second chunk same page", 0.8),
		chunk("c3", "/b.pdf", 1, "other doc", 0.7),
	}
	pageHits := []storage.PageResult{
		{PageID: 7, DocumentPath: "/b.pdf", Filename: "b.pdf", PageNum: 1, Content: "page b1", BM25Score: -3},
		{PageID: 8, DocumentPath: "/a.pdf", Filename: "a.pdf", PageNum: 5, Content: "page a5", BM25Score: -1},
	}

	results := applyRRF(vectorHits, pageHits, 60)
	require.Len(t, results, 3)

	// b.pdf p1 is in both lists: 1/62 + 1/61
	assert.Equal(t, "/b.pdf", results[0].Document.Path)
	assert.InDelta(t, 1.0/62+1.0/61, results[0].RelevanceScore, 1e-12)
	assert.Equal(t, "other doc", results[0].Content, "chunk text wins over the page snippet")
	assert.Equal(t, "c3", results[0].ID)

	// a.pdf p2 counts once despite two chunks
	assert.Equal(t, 2, results[1].Document.PageNum)
	assert.InDelta(t, 1.0/61, results[1].RelevanceScore, 1e-12)
	assert.Equal(t, "best chunk", results[1].Content)

	assert.Equal(t, "page:8", results[2].ID)
	assert.InDelta(t, 1.0/62, results[2].RelevanceScore, 1e-12)

	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, "hybrid", r.Source)
	}

	assert.Empty(t, applyRRF(nil, nil, 0))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("  short  ", 10))
	assert.Equal(t, "ééé...", snippet("éééééé", 3))
}

func TestCopySearchResponse(t *testing.T) {
	assert.Nil(t, copySearchResponse(nil))

	src := &SearchResponse{
		Results:      []types.SearchResult{{ID: "1", Rank: 1, Document: &types.DocumentInfo{Path: "/a"}}},
		TotalResults: 1,
	}
	dst := copySearchResponse(src)
	dst.Results[0].Document.Path = "/b"
	dst.Results[0].ID = "2"

	assert.Equal(t, "/a", src.Results[0].Document.Path)
	assert.Equal(t, "1", src.Results[0].ID)
	assert.Equal(t, 1, dst.TotalResults)
}

func TestDropInvalid(t *testing.T) {
	doc := &types.DocumentInfo{Path: "/a.txt", Filename: "a.txt", PageNum: 1}
	results := []types.SearchResult{
		{ID: "c1", Rank: 1, RelevanceScore: 0.9, Document: doc, Content: "first"},
		{ID: "c2", Rank: 2, RelevanceScore: 0.8, Document: &types.DocumentInfo{}, Content: "no path"},
		{ID: "c3", Rank: 3, RelevanceScore: 0.7, Document: doc, Content: ""},
		{ID: "c4", Rank: 4, RelevanceScore: 1.5, Document: doc, Content: "out of range"},
		{ID: "c5", Rank: 5, RelevanceScore: 0.4, Document: doc, Content: "last"},
	}

	kept := dropInvalid("kb", results)
	require.Len(t, kept, 2)
	assert.Equal(t, "c1", kept[0].ID)
	assert.Equal(t, "c5", kept[1].ID)
	assertRanked(t, kept)
}

func TestApplyRRF_ScoresStayInRange(t *testing.T) {
	vectorHits := []vectorstore.ScoredPoint{{
		Point: vectorstore.Point{ID: "c1", Payload: types.Chunk{
			ID: "c1", DocumentPath: "/a.pdf", Filename: "a.pdf", PageNum: 1, Text: "chunk",
		}},
		Score: 0.9,
	}}
	pageHits := []storage.PageResult{
		{PageID: 1, DocumentPath: "/a.pdf", Filename: "a.pdf", PageNum: 1, Content: "page", BM25Score: -2},
	}

	for _, k := range []float64{-1, 0, 0.25, 1, 60} {
		results := applyRRF(vectorHits, pageHits, k)
		require.Len(t, results, 1)
		assert.NoError(t, results[0].Validate(), "k=%v", k)
	}
}
