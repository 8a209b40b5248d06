package embedder

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hash-v1"

	// Dimensions
	JinaDimension        = 1024
	OpenAIDimension      = 1536
	OpenAILargeDimension = 3072
	LocalDimension       = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000
	DefaultTimeout   = 30 * time.Second

	// Backoff curve used when MaxAttempts > 1
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Options configures a provider. Zero values select defaults.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	// Dimension requests a vector size from providers that support it and
	// is verified against every response
	Dimension int
	// RequestsPerSecond paces remote calls; 0 means unpaced
	RequestsPerSecond float64
	// MaxAttempts is the number of tries per remote call; 0 or 1 means no retry
	MaxAttempts int
	Timeout     time.Duration
	Cache       *Cache
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o Options) limiter() *rate.Limiter {
	if o.RequestsPerSecond <= 0 {
		return nil
	}
	burst := int(math.Ceil(o.RequestsPerSecond))
	return rate.NewLimiter(rate.Limit(o.RequestsPerSecond), burst)
}

func (o Options) retry() RetryConfig {
	cfg := DefaultRetryConfig()
	if o.MaxAttempts > 1 {
		cfg.MaxAttempts = o.MaxAttempts
	}
	return cfg
}

// callFunc performs one remote request for texts and returns vectors in
// input order
type callFunc func(ctx context.Context, texts []string, model string) ([][]float32, error)

// remote holds what the HTTP-backed providers share: the cache lookup,
// pacing, retry and response verification around a single call
type remote struct {
	provider string
	model    string
	dim      int
	cache    *Cache
	limiter  *rate.Limiter
	retry    RetryConfig
	call     callFunc
}

func newRemote(provider, model string, dim int, opts Options, call callFunc) remote {
	return remote{
		provider: provider,
		model:    model,
		dim:      dim,
		cache:    opts.Cache,
		limiter:  opts.limiter(),
		retry:    opts.retry(),
		call:     call,
	}
}

func (r *remote) generateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := r.generateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (r *remote) generateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = r.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	var texts []string
	for i, text := range req.Texts {
		if r.cache != nil {
			if emb, ok := r.cache.Get(cacheKey(r.provider, model, text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
		texts = append(texts, text)
	}

	if len(texts) > 0 {
		vectors, err := retryWithBackoff(ctx, r.retry, func() ([][]float32, error) {
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			return r.call(ctx, texts, model)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, r.provider, err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts",
				ErrProviderFailed, r.provider, len(vectors), len(texts))
		}

		for j, vec := range vectors {
			if len(vec) == 0 || (r.dim > 0 && len(vec) != r.dim) {
				return nil, fmt.Errorf("%w: %s returned dimension %d, expected %d",
					ErrProviderFailed, r.provider, len(vec), r.dim)
			}
			text := texts[j]
			emb := &Embedding{
				Vector:    vec,
				Dimension: len(vec),
				Provider:  r.provider,
				Model:     model,
				Hash:      ComputeHash(text),
			}
			embeddings[missing[j]] = emb
			if r.cache != nil {
				r.cache.Set(cacheKey(r.provider, model, text), emb)
			}
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   r.provider,
		Model:      model,
	}, nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
