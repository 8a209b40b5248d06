package embedder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/logger"
)

// Registry shares one Embedder per provider configuration across the
// process. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	embedders map[string]Embedder
	closed    bool
	factory   func(config.EmbeddingConfig) (Embedder, error)
}

// NewRegistry creates an empty registry that builds embedders with New
func NewRegistry() *Registry {
	return &Registry{
		embedders: make(map[string]Embedder),
		factory:   New,
	}
}

// registryKey identifies configurations that produce interchangeable vectors
func registryKey(cfg config.EmbeddingConfig) string {
	return fmt.Sprintf("%s|%s|%s|%d", DetectProvider(cfg), cfg.Model, cfg.BaseURL, cfg.Dimension)
}

// Get returns the shared embedder for cfg, constructing it on first use
func (r *Registry) Get(cfg config.EmbeddingConfig) (Embedder, error) {
	key := registryKey(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if emb, ok := r.embedders[key]; ok {
		return emb, nil
	}

	emb, err := r.factory(cfg)
	if err != nil {
		return nil, err
	}
	r.embedders[key] = emb
	logger.Debug("embedder created", "provider", emb.Provider(), "model", emb.Model(), "dimension", emb.Dimension())
	return emb, nil
}

// Len returns the number of live embedders
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.embedders)
}

// Close closes every embedder. Later Get calls return ErrRegistryClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for key, emb := range r.embedders {
		if err := emb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder %s: %w", key, err))
		}
	}
	r.embedders = nil
	return errors.Join(errs...)
}
