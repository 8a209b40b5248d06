package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/docindex-mcp/internal/chunker"
	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/embedder"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/telemetry"
	"github.com/dshills/docindex-mcp/internal/vectorstore"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// Milestone fractions of a single file run
const (
	fracStart     = 0.0
	fracHashed    = 0.05
	fracParse     = 0.2
	fracClear     = 0.35
	fracStore     = 0.45
	fracChunk     = 0.55
	fracEmbed     = 0.7
	fracVectors   = 0.85
	fracNoContent = 0.9
	fracDone      = 1.0
)

// MetadataPool hands out the metadata store of a base
type MetadataPool interface {
	Get(base string) (storage.Storage, error)
}

// DocumentParser extracts ordered page texts from a file
type DocumentParser interface {
	Parse(ctx context.Context, path string) ([]string, error)
}

// Config contains configuration for the indexer
type Config struct {
	DataDir        string
	ChunkSize      int
	Overlap        int
	EmbedBatchSize int // chunks per embedding call, capped at embedder.MaxBatchSize
	Workers        int // files indexed concurrently by ScanFolder
	SupportedOnly  bool
	Metrics        *telemetry.Metrics
	// OnIndexed runs after a document's vectors changed
	OnIndexed func(base, path string)
}

// NewConfig derives the indexer configuration from the application config
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		DataDir:        cfg.DataDir,
		ChunkSize:      cfg.Chunking.ChunkSize,
		Overlap:        cfg.Chunking.Overlap,
		EmbedBatchSize: cfg.Embedding.BatchSize,
		Workers:        cfg.Workers,
		SupportedOnly:  cfg.SupportedOnly,
	}
}

// Indexer coordinates the pipeline: hash -> parse -> pages -> chunk -> embed -> vectors
type Indexer struct {
	meta     MetadataPool
	vectors  vectorstore.Store
	embedder embedder.Embedder
	parser   DocumentParser
	chunker  *chunker.Chunker
	cfg      Config

	paths     *pathLocks
	scanLocks sync.Map // base -> *IndexLock
}

// New creates an Indexer. Chunk parameters are validated up front.
func New(meta MetadataPool, vectors vectorstore.Store, emb embedder.Embedder, parser DocumentParser, cfg *Config) (*Indexer, error) {
	if meta == nil || vectors == nil || emb == nil || parser == nil {
		return nil, fmt.Errorf("%w: indexer requires metadata, vector, embedder and parser collaborators", types.ErrValidation)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if c.ChunkSize == 0 {
		c.ChunkSize = chunker.DefaultChunkSize
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = embedder.DefaultBatchSize
	}
	if c.EmbedBatchSize > embedder.MaxBatchSize {
		c.EmbedBatchSize = embedder.MaxBatchSize
	}
	if c.Workers < 1 {
		c.Workers = 1
	}

	ch := chunker.New(chunker.WithChunkSize(c.ChunkSize), chunker.WithOverlap(c.Overlap))
	if err := ch.Validate(); err != nil {
		return nil, err
	}

	return &Indexer{
		meta:     meta,
		vectors:  vectors,
		embedder: emb,
		parser:   parser,
		chunker:  ch,
		cfg:      c,
		paths:    newPathLocks(),
	}, nil
}

// IndexFile indexes one file into base and returns its document record.
// Unchanged files that finished a previous run are skipped without parsing.
func (idx *Indexer) IndexFile(ctx context.Context, base, path string, progress ProgressFunc) (*storage.Document, error) {
	doc, _, err := idx.indexFile(ctx, base, path, progress)
	return doc, err
}

func (idx *Indexer) indexFile(ctx context.Context, base, path string, progress ProgressFunc) (doc *storage.Document, skipped bool, err error) {
	if err := config.ValidateBaseName(base); err != nil {
		return nil, false, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: invalid path %q: %v", types.ErrValidation, path, err)
	}
	abs = filepath.Clean(abs)
	name := filepath.Base(abs)

	ctx, span := telemetry.Tracer().Start(ctx, "indexer.IndexFile", trace.WithAttributes(
		attribute.String("base", base),
		attribute.String("path", abs),
	))
	start := time.Now()
	defer func() {
		outcome := telemetry.OutcomeIndexed
		switch {
		case err != nil:
			outcome = telemetry.OutcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case skipped:
			outcome = telemetry.OutcomeSkipped
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		idx.cfg.Metrics.RecordDocument(ctx, base, outcome, time.Since(start).Seconds())
		span.End()
	}()

	unlock, err := idx.paths.Lock(ctx, base+"\x00"+abs)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	progress.report(fmt.Sprintf("Starting indexing for %s", name), fracStart)

	store, err := idx.meta.Get(base)
	if err != nil {
		return nil, false, err
	}

	hash, err := HashFile(abs)
	if err != nil {
		return nil, false, err
	}
	progress.report("Computed file hash", fracHashed)

	existing, err := store.GetDocument(ctx, abs)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil && existing.FileHash == hash && existing.Indexed() {
		logger.Debug("document unchanged", "base", base, "path", abs)
		progress.report(fmt.Sprintf("No changes detected for %s. Skipping.", name), fracDone)
		return existing, true, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	progress.report("Parsing document", fracParse)
	pages, err := idx.parser.Parse(ctx, abs)
	if err != nil {
		return nil, false, err
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	doc = &storage.Document{
		Filename:  name,
		Path:      abs,
		BaseName:  base,
		FileHash:  hash,
		IndexedAt: time.Now().UTC(),
	}
	if err := idx.storeDocument(ctx, store, doc, pages, progress); err != nil {
		return nil, false, err
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	progress.report("Chunking content", fracChunk)
	chunks := idx.buildChunks(doc, pages)
	span.SetAttributes(attribute.Int("pages", len(pages)), attribute.Int("chunks", len(chunks)))

	if err := idx.vectors.EnsureCollection(ctx, base, idx.embedder.Dimension()); err != nil {
		return nil, false, err
	}

	if len(chunks) == 0 {
		progress.report("No content available for embeddings", fracNoContent)
		if err := idx.vectors.DeleteByDocumentPath(ctx, base, abs); err != nil {
			return nil, false, err
		}
	} else {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		progress.report("Generating embeddings", fracEmbed)
		vectors, err := idx.embed(ctx, chunks, progress)
		if err != nil {
			return nil, false, err
		}

		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		progress.report("Updating vector store", fracVectors)
		if err := idx.syncVectors(ctx, base, abs, chunks, vectors); err != nil {
			return nil, false, err
		}
		idx.cfg.Metrics.RecordChunks(ctx, base, len(chunks))
	}

	// Final page count is written only once vectors match the pages
	if err := store.MarkIndexed(ctx, doc.ID, len(pages), doc.IndexedAt); err != nil {
		return nil, false, err
	}
	total := len(pages)
	doc.TotalPages = &total

	if idx.cfg.OnIndexed != nil {
		idx.cfg.OnIndexed(base, abs)
	}

	logger.Info("document indexed",
		"base", base,
		"path", abs,
		"pages", total,
		"chunks", len(chunks),
		"duration", time.Since(start).Round(time.Millisecond).String())
	progress.report("Indexing complete", fracDone)
	return doc, false, nil
}

// RemoveFile drops a document, its pages and its vectors from base. A path
// that was never indexed is not an error.
func (idx *Indexer) RemoveFile(ctx context.Context, base, path string) error {
	if err := config.ValidateBaseName(base); err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: invalid path %q: %v", types.ErrValidation, path, err)
	}
	abs = filepath.Clean(abs)

	unlock, err := idx.paths.Lock(ctx, base+"\x00"+abs)
	if err != nil {
		return err
	}
	defer unlock()

	store, err := idx.meta.Get(base)
	if err != nil {
		return err
	}
	doc, err := store.GetDocument(ctx, abs)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	// Vectors first, so a failure leaves the document row for a retry
	if err := idx.vectors.DeleteByDocumentPath(ctx, base, abs); err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}
	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}

	if idx.cfg.OnIndexed != nil {
		idx.cfg.OnIndexed(base, abs)
	}
	logger.Info("document removed", "base", base, "path", abs)
	return nil
}

// storeDocument upserts the document with an unknown page count and
// replaces its pages in one transaction
func (idx *Indexer) storeDocument(ctx context.Context, store storage.Storage, doc *storage.Document, pages []string, progress ProgressFunc) error {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	progress.report("Clearing previous pages", fracClear)
	doc.TotalPages = nil
	if err := tx.UpsertDocument(ctx, doc); err != nil {
		return err
	}

	progress.report("Storing pages", fracStore)
	if err := tx.ReplacePages(ctx, doc.ID, pages); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit pages: %v", types.ErrStore, err)
	}
	return nil
}

// buildChunks chunks every page. seq counts non-empty chunks across the
// whole document and drives the chunk id.
func (idx *Indexer) buildChunks(doc *storage.Document, pages []string) []types.Chunk {
	var chunks []types.Chunk
	seq := 0
	for i, page := range pages {
		pageNum := i + 1
		for _, c := range idx.chunker.Chunk(page) {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			chunks = append(chunks, types.Chunk{
				ID:             types.ChunkID(doc.ID, pageNum, seq),
				Key:            types.ChunkKey(doc.ID, pageNum, seq),
				DocumentID:     doc.ID,
				DocumentPath:   doc.Path,
				Filename:       doc.Filename,
				PageNum:        pageNum,
				ChunkIndex:     seq,
				PageChunkIndex: c.Index,
				StartChar:      c.StartChar,
				EndChar:        c.EndChar,
				TokenCount:     c.TokenCount,
				Text:           c.Text,
			})
			seq++
		}
	}
	return chunks
}

// embed generates one vector per chunk in batches and verifies count and
// dimension of every response
func (idx *Indexer) embed(ctx context.Context, chunks []types.Chunk, progress ProgressFunc) ([][]float32, error) {
	dim := idx.embedder.Dimension()
	batchSize := idx.cfg.EmbedBatchSize
	batches := (len(chunks) + batchSize - 1) / batchSize
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(chunks))

		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = chunks[start+i].Text
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, types.ErrEmbedding) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", types.ErrEmbedding, len(resp.Embeddings), len(texts))
		}
		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Vector) != dim {
				return nil, fmt.Errorf("%w: chunk %s has wrong embedding dimension, expected %d",
					types.ErrEmbedding, chunks[start+i].Key, dim)
			}
			vectors = append(vectors, emb.Vector)
		}

		if batches > 1 {
			done := start/batchSize + 1
			progress.report(fmt.Sprintf("Embedded %d/%d batches", done, batches),
				fracEmbed+(fracVectors-fracEmbed)*float64(done)/float64(batches))
		}
	}
	return vectors, nil
}

// syncVectors removes every vector previously written for path, then
// writes the new set
func (idx *Indexer) syncVectors(ctx context.Context, base, path string, chunks []types.Chunk, vectors [][]float32) error {
	if err := idx.vectors.DeleteByDocumentPath(ctx, base, path); err != nil {
		return err
	}

	points := make([]vectorstore.Point, len(chunks))
	for i := range chunks {
		points[i] = vectorstore.Point{
			ID:      chunks[i].ID,
			Vector:  vectors[i],
			Payload: chunks[i],
		}
	}

	ids, err := idx.vectors.Upsert(ctx, base, points)
	if err != nil {
		return err
	}
	if len(ids) != len(points) {
		return fmt.Errorf("%w: vector store confirmed %d of %d points", types.ErrStore, len(ids), len(points))
	}
	return nil
}
