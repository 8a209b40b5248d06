package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dshills/docindex-mcp/internal/config"
)

// New creates an embedder from the embedding section of the configuration.
// An empty provider name is resolved with DetectProvider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize >= 0 {
		cache = NewCache(cfg.CacheSize)
	}

	opts := Options{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		BaseURL:           cfg.BaseURL,
		Dimension:         cfg.Dimension,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxAttempts:       cfg.MaxAttempts,
		Timeout:           time.Duration(cfg.TimeoutSecs) * time.Second,
		Cache:             cache,
	}

	provider := DetectProvider(cfg)
	switch provider {
	case ProviderJina:
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv(config.EnvJinaAPIKey)
		}
		return NewJinaProvider(opts)
	case ProviderOpenAI:
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv(config.EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(opts)
	case ProviderLocal:
		if cfg.Dimension > 0 && cfg.Dimension != LocalDimension {
			return nil, fmt.Errorf("%w: local provider has fixed dimension %d", ErrUnsupportedModel, LocalDimension)
		}
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider New would use. An explicit name wins;
// otherwise an available API key selects jina, then openai, and local is the
// fallback.
func DetectProvider(cfg config.EmbeddingConfig) string {
	if provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider != "" {
		return provider
	}

	if os.Getenv(config.EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(config.EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
