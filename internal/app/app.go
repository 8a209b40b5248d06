// Package app wires configuration, stores, the embedder, the indexer and the
// searcher into one service shared by the CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/embedder"
	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/parser"
	"github.com/dshills/docindex-mcp/internal/searcher"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/telemetry"
	"github.com/dshills/docindex-mcp/internal/vectorstore"
	"github.com/dshills/docindex-mcp/pkg/types"
)

const (
	// Name is the service name reported to MCP clients and telemetry
	Name = "docindex-mcp"
)

// Build information, set with -ldflags "-X"
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// App owns every long-lived component
type App struct {
	Config    *config.Config
	Meta      *storage.Pool[storage.Storage]
	Vectors   vectorstore.Store
	Embedders *embedder.Registry
	Embedder  embedder.Embedder
	Indexer   *indexer.Indexer
	Searcher  *searcher.Searcher
	Metrics   *telemetry.Metrics

	shutdownTracer func(context.Context) error
}

// Option customizes New
type Option func(*options)

type options struct {
	vectors  vectorstore.Store
	embedder embedder.Embedder
}

// WithVectorStore replaces the configured vector backend
func WithVectorStore(s vectorstore.Store) Option {
	return func(o *options) { o.vectors = s }
}

// WithEmbedder replaces the configured embedding provider
func WithEmbedder(e embedder.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// New builds the service from cfg
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	shutdown, err := telemetry.InitTracer(ctx, Name, Version, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:         cfg,
		Meta:           storage.NewPool(storage.OpenBase(cfg.DataDir)),
		Embedders:      embedder.NewRegistry(),
		Metrics:        metrics,
		shutdownTracer: shutdown,
	}

	a.Vectors = o.vectors
	if a.Vectors == nil {
		if a.Vectors, err = vectorstore.NewFromConfig(cfg); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	a.Embedder = o.embedder
	if a.Embedder == nil {
		if a.Embedder, err = a.Embedders.Get(cfg.Embedding); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	// The same embedder serves indexing and queries, so both share its cache
	a.Searcher = searcher.NewSearcher(a.Meta, a.Vectors, a.Embedder, searcher.Options{DataDir: cfg.DataDir})

	idxCfg := indexer.NewConfig(cfg)
	idxCfg.Metrics = metrics
	idxCfg.OnIndexed = a.Searcher.InvalidateBase
	a.Indexer, err = indexer.New(a.Meta, a.Vectors, a.Embedder,
		parser.New(parser.WithPageSize(cfg.Chunking.PageSize)), idxCfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	logger.Info("service initialized",
		"data_dir", cfg.DataDir,
		"embedding_provider", a.Embedder.Provider(),
		"embedding_model", a.Embedder.Model(),
		"vector_backend", cfg.VectorStore.Backend,
		"sqlite_driver", storage.DriverName)
	return a, nil
}

// Close releases stores, embedders and the tracer
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Meta != nil {
		errs = append(errs, a.Meta.Close())
	}
	if a.Vectors != nil {
		errs = append(errs, a.Vectors.Close())
	}
	if a.Embedders != nil {
		errs = append(errs, a.Embedders.Close())
	}
	if a.shutdownTracer != nil {
		errs = append(errs, a.shutdownTracer(ctx))
	}
	return errors.Join(errs...)
}

// ResolveBase returns base, or the configured default when base is empty
func (a *App) ResolveBase(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = a.Config.DefaultBase
	}
	if err := config.ValidateBaseName(base); err != nil {
		return "", err
	}
	return base, nil
}

// ListBases returns the knowledge bases under the data directory in name
// order
func (a *App) ListBases() ([]string, error) {
	entries, err := os.ReadDir(a.Config.DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	bases := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || config.ValidateBaseName(e.Name()) != nil {
			continue
		}
		bases = append(bases, e.Name())
	}
	sort.Strings(bases)
	return bases, nil
}

// Status describes one knowledge base
type Status struct {
	*storage.BaseStatus
	VectorCount       int
	DocumentsDir      string
	FilesInFolder     int
	EmbeddingProvider string
	EmbeddingModel    string
	Dimension         int
	VectorBackend     string
}

// Status reports counts and health for base. An unknown base is
// types.ErrNotFound.
func (a *App) Status(ctx context.Context, base string) (*Status, error) {
	base, err := a.ResolveBase(base)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(a.Config.BaseDir(base)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("knowledge base %s: %w", base, types.ErrNotFound)
		}
		return nil, err
	}

	store, err := a.Meta.Get(base)
	if err != nil {
		return nil, err
	}
	baseStatus, err := store.GetStatus(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		BaseStatus:        baseStatus,
		DocumentsDir:      a.Indexer.DocumentsDir(base),
		EmbeddingProvider: a.Embedder.Provider(),
		EmbeddingModel:    a.Embedder.Model(),
		Dimension:         a.Embedder.Dimension(),
		VectorBackend:     a.Config.VectorStore.Backend,
	}

	count, err := a.Vectors.Count(ctx, base)
	switch {
	case err == nil:
		status.VectorCount = count
	case errors.Is(err, types.ErrNotFound):
		// No collection yet
	default:
		return nil, err
	}

	if entries, err := os.ReadDir(status.DocumentsDir); err == nil {
		for _, e := range entries {
			if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
				status.FilesInFolder++
			}
		}
	}
	return status, nil
}

// ImportFile copies src into the base's documents folder and returns the
// destination path. An existing file with the same name is replaced.
func (a *App) ImportFile(base, src string) (string, error) {
	base, err := a.ResolveBase(base)
	if err != nil {
		return "", err
	}
	if !parser.IsSupported(src) {
		return "", fmt.Errorf("%w: %s", types.ErrUnsupportedType, filepath.Ext(src))
	}

	dir := a.Indexer.DocumentsDir(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create documents directory: %w", err)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", types.ErrNotFound, src)
		}
		return "", err
	}

	dst := filepath.Join(dir, filepath.Base(src))

	// Hidden temp name so a concurrent scan never sees a partial file
	tmp, err := os.CreateTemp(dir, ".import-*")
	if err != nil {
		return "", err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return dst, nil
}
