package embedder

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var localWordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// trigramWeight scales character trigram features relative to whole words
const trigramWeight = 0.5

// LocalProvider embeds text offline by hashing word and character-trigram
// features into a fixed-size signed vector. Texts sharing vocabulary land
// close in cosine space; no model download or network access is needed.
type LocalProvider struct {
	model string
	dim   int
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		dim:   LocalDimension,
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	key := cacheKey(ProviderLocal, l.model, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.embed(req.Text),
		Dimension: l.dim,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      ComputeHash(req.Text),
	}

	if l.cache != nil {
		l.cache.Set(key, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

// embed computes the feature-hashed vector. The sign bit of each hash
// spreads collisions around zero.
func (l *LocalProvider) embed(text string) []float32 {
	vector := make([]float32, l.dim)
	add := func(feature string, weight float32) {
		h := xxhash.Sum64String(feature)
		idx := int(h % uint64(l.dim))
		if h&(1<<63) != 0 {
			weight = -weight
		}
		vector[idx] += weight
	}

	words := localWordPattern.FindAllString(strings.ToLower(text), -1)
	for _, w := range words {
		add("w:"+w, 1)
		padded := []rune(" " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			add("t:"+string(padded[i:i+3]), trigramWeight)
		}
	}
	if len(words) == 0 {
		// Punctuation-only text still gets a stable non-zero vector
		add("raw:"+text, 1)
	}

	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int {
	return l.dim
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
