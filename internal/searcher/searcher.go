package searcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/embedder"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/telemetry"
	"github.com/dshills/docindex-mcp/internal/vectorstore"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25 with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 page search only
)

const (
	DefaultLimit       = 10
	MaxLimit           = 100
	DefaultRRFConstant = 60
	DefaultCacheSize   = 1000
	DefaultCacheTTL    = time.Hour

	// maxSnippetRunes bounds the page text returned for keyword hits
	maxSnippetRunes = 600
)

// ParseMode maps a user-supplied mode name to a SearchMode. Empty selects
// hybrid.
func ParseMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchModeHybrid:
		return SearchModeHybrid, nil
	case SearchModeVector:
		return SearchModeVector, nil
	case SearchModeKeyword:
		return SearchModeKeyword, nil
	default:
		return "", fmt.Errorf("%w: unsupported search mode %q", types.ErrValidation, s)
	}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Base         string
	Query        string
	Limit        int
	Mode         SearchMode
	DocumentPath string  // restrict hits to one document
	MinScore     float64 // vector hits below this similarity are dropped
	UseCache     bool
	RRFConstant  float64 // k value for Reciprocal Rank Fusion (default 60)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// MetadataPool hands out the metadata store of a base
type MetadataPool interface {
	Get(base string) (storage.Storage, error)
}

// Options configures a Searcher
type Options struct {
	DataDir   string
	CacheSize int           // 0 selects DefaultCacheSize, negative disables caching
	CacheTTL  time.Duration // 0 selects DefaultCacheTTL
}

// cacheKey identifies a cached response; Base drives invalidation
type cacheKey struct {
	Base         string
	Query        string
	Mode         SearchMode
	Limit        int
	DocumentPath string
	MinScore     float64
	RRFConstant  float64
}

// Searcher answers queries against indexed knowledge bases
type Searcher struct {
	meta     MetadataPool
	vectors  vectorstore.Store
	embedder embedder.Embedder
	dataDir  string
	cache    *expirable.LRU[cacheKey, *SearchResponse]
}

// NewSearcher creates a new Searcher instance
func NewSearcher(meta MetadataPool, vectors vectorstore.Store, emb embedder.Embedder, opts Options) *Searcher {
	s := &Searcher{
		meta:     meta,
		vectors:  vectors,
		embedder: emb,
		dataDir:  opts.DataDir,
	}

	size := opts.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if size > 0 {
		s.cache = expirable.NewLRU[cacheKey, *SearchResponse](size, nil, ttl)
	}
	return s
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "searcher.Search", trace.WithAttributes(
		attribute.String("base", req.Base),
		attribute.String("mode", string(req.Mode)),
		attribute.Int("limit", req.Limit),
	))
	defer span.End()

	key := requestKey(req)
	if req.UseCache && s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			response := copySearchResponse(cached)
			response.CacheHit = true
			response.Duration = time.Since(startTime)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return response, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	response.Results = dropInvalid(req.Base, response.Results)
	response.TotalResults = len(response.Results)
	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode
	span.SetAttributes(attribute.Int("results", response.TotalResults))

	if req.UseCache && s.cache != nil && len(response.Results) > 0 {
		s.cache.Add(key, copySearchResponse(response))
	}

	logger.Debug("search complete",
		"base", req.Base,
		"mode", req.Mode,
		"results", response.TotalResults,
		"duration", response.Duration.String())
	return response, nil
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	vectorHits []vectorstore.ScoredPoint
	pageHits   []storage.PageResult
	err        error
}

// runVectorSearch executes vector search in a goroutine
func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, limit int, resultChan chan<- searchResult) {
	var res searchResult
	res.vectorHits, res.err = s.searchVectors(ctx, req, limit)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runTextSearch executes page search in a goroutine
func (s *Searcher) runTextSearch(ctx context.Context, req SearchRequest, limit int, resultChan chan<- searchResult) {
	var res searchResult
	res.pageHits, res.err = s.searchPages(ctx, req, limit)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// hybridSearch fuses vector and BM25 hits per page using Reciprocal Rank
// Fusion
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go s.runVectorSearch(ctx, req, req.Limit*2, vectorChan)
	go s.runTextSearch(ctx, req, req.Limit*2, textChan)

	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// One side may fail
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}
	if vectorRes.err != nil {
		logger.Warn("vector search failed, using keyword hits only", "base", req.Base, "error", vectorRes.err)
	}
	if textRes.err != nil {
		logger.Warn("keyword search failed, using vector hits only", "base", req.Base, "error", textRes.err)
	}

	results := applyRRF(vectorRes.vectorHits, textRes.pageHits, req.RRFConstant)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorRes.vectorHits),
		TextResults:   len(textRes.pageHits),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.searchVectors(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = vectorResult(hit)
		results[i].Rank = i + 1
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(hits),
	}, nil
}

// keywordSearch performs only BM25 page search
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	hits, err := s.searchPages(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = pageResult(hit)
		results[i].Rank = i + 1
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(hits),
	}, nil
}

// searchVectors embeds the query and searches the base's collection. A base
// without a collection has no vector hits.
func (s *Searcher) searchVectors(ctx context.Context, req SearchRequest, limit int) ([]vectorstore.ScoredPoint, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	filter := &vectorstore.Filter{DocumentPath: req.DocumentPath, MinScore: req.MinScore}
	hits, err := s.vectors.Search(ctx, req.Base, embedding.Vector, limit, filter)
	if errors.Is(err, types.ErrNotFound) {
		return []vectorstore.ScoredPoint{}, nil
	}
	return hits, err
}

// searchPages runs the full-text query. A document filter is applied after
// ranking, so more rows are requested.
func (s *Searcher) searchPages(ctx context.Context, req SearchRequest, limit int) ([]storage.PageResult, error) {
	store, err := s.meta.Get(req.Base)
	if err != nil {
		return nil, err
	}

	fetch := limit
	if req.DocumentPath != "" {
		fetch = limit * 4
	}
	hits, err := store.SearchPages(ctx, req.Query, fetch)
	if err != nil {
		return nil, err
	}
	if req.DocumentPath == "" {
		return hits, nil
	}

	filtered := hits[:0]
	for _, h := range hits {
		if h.DocumentPath == req.DocumentPath {
			filtered = append(filtered, h)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// pageKey identifies one page across both result kinds
type pageKey struct {
	path    string
	pageNum int
}

// fused accumulates the RRF score of one page
type fused struct {
	result   types.SearchResult
	score    float64
	hasChunk bool
}

// applyRRF combines vector and page hits per page.
// RRF formula: RRF(d) = Σ 1/(k + rank(d)). A page keeps the text of its best
// ranked chunk when it has one, otherwise a snippet of the page.
func applyRRF(vectorHits []vectorstore.ScoredPoint, pageHits []storage.PageResult, k float64) []types.SearchResult {
	// A page scores at most 2/(k+1), which stays within [0,1] for k >= 1
	if k < 1 {
		k = DefaultRRFConstant
	}

	pages := make(map[pageKey]*fused)
	order := make([]pageKey, 0)

	entry := func(key pageKey, init types.SearchResult) *fused {
		f, ok := pages[key]
		if !ok {
			f = &fused{result: init}
			pages[key] = f
			order = append(order, key)
		}
		return f
	}

	// Only the best chunk of a page contributes, so a page with many
	// matching chunks is not over-counted.
	rank := 0
	for _, hit := range vectorHits {
		key := pageKey{hit.Payload.DocumentPath, hit.Payload.PageNum}
		if f, ok := pages[key]; ok && f.hasChunk {
			continue
		}
		rank++
		f := entry(key, vectorResult(hit))
		f.hasChunk = true
		f.score += 1.0 / (k + float64(rank))
	}

	for i, hit := range pageHits {
		key := pageKey{hit.DocumentPath, hit.PageNum}
		f := entry(key, pageResult(hit))
		f.score += 1.0 / (k + float64(i+1))
	}

	results := make([]types.SearchResult, 0, len(order))
	for _, key := range order {
		f := pages[key]
		r := f.result
		r.RelevanceScore = f.score
		r.Source = string(SearchModeHybrid)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// dropInvalid removes results that fail validation, such as foreign points
// in a shared collection, and renumbers the rest
func dropInvalid(base string, results []types.SearchResult) []types.SearchResult {
	kept := results[:0]
	for _, r := range results {
		if err := r.Validate(); err != nil {
			logger.Warn("dropping invalid search result", "base", base, "id", r.ID, "error", err)
			continue
		}
		kept = append(kept, r)
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}
	return kept
}

func vectorResult(hit vectorstore.ScoredPoint) types.SearchResult {
	c := hit.Payload
	return types.SearchResult{
		ID:             hit.ID,
		RelevanceScore: clampScore(hit.Score),
		Document: &types.DocumentInfo{
			Path:      c.DocumentPath,
			Filename:  c.Filename,
			PageNum:   c.PageNum,
			StartChar: c.StartChar,
			EndChar:   c.EndChar,
		},
		Content: c.Text,
		Source:  string(SearchModeVector),
	}
}

func pageResult(hit storage.PageResult) types.SearchResult {
	content := snippet(hit.Content, maxSnippetRunes)
	return types.SearchResult{
		ID:             fmt.Sprintf("page:%d", hit.PageID),
		RelevanceScore: storage.NormalizeBM25(hit.BM25Score),
		Document: &types.DocumentInfo{
			Path:     hit.DocumentPath,
			Filename: hit.Filename,
			PageNum:  hit.PageNum,
			EndChar:  utf8.RuneCountInString(content),
		},
		Content: content,
		Source:  string(SearchModeKeyword),
	}
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}

// snippet truncates text to at most n runes
func snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "..."
}

// validateRequest applies defaults and rejects malformed requests
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if s.embedder == nil || s.vectors == nil || s.meta == nil {
		return fmt.Errorf("%w: searcher not initialized", types.ErrValidation)
	}

	if err := config.ValidateBaseName(req.Base); err != nil {
		return err
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrValidation)
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode

	if req.RRFConstant <= 0 {
		req.RRFConstant = DefaultRRFConstant
	}

	if req.DocumentPath != "" {
		abs, err := filepath.Abs(req.DocumentPath)
		if err != nil {
			return fmt.Errorf("%w: invalid document path: %v", types.ErrValidation, err)
		}
		req.DocumentPath = filepath.Clean(abs)
	}

	if s.dataDir != "" {
		if _, err := os.Stat(filepath.Join(s.dataDir, req.Base)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("knowledge base %s: %w", req.Base, types.ErrNotFound)
			}
			return err
		}
	}
	return nil
}

func requestKey(req SearchRequest) cacheKey {
	return cacheKey{
		Base:         req.Base,
		Query:        req.Query,
		Mode:         req.Mode,
		Limit:        req.Limit,
		DocumentPath: req.DocumentPath,
		MinScore:     req.MinScore,
		RRFConstant:  req.RRFConstant,
	}
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, result := range src.Results {
		dst.Results[i] = result
		// DocumentInfo holds only primitive fields
		if result.Document != nil {
			info := *result.Document
			dst.Results[i].Document = &info
		}
	}
	return &dst
}

// InvalidateBase removes cached responses for one base. It matches the
// indexer's OnIndexed hook.
func (s *Searcher) InvalidateBase(base, _ string) {
	if s.cache == nil {
		return
	}
	for _, key := range s.cache.Keys() {
		if key.Base == base {
			s.cache.Remove(key)
		}
	}
}

// InvalidateCache removes every cached response
func (s *Searcher) InvalidateCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}
