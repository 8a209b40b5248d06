package embedder

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Embedder with the go-openai client. BaseURL
// points it at any OpenAI-compatible embeddings server.
type OpenAIProvider struct {
	remote
	client     *openai.Client
	httpClient *http.Client
	dimensions int // sent only when set explicitly
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(opts Options) (*OpenAIProvider, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai requires an API key", ErrNoProviderEnabled)
	}

	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = OpenAIDimension
		if model == string(openai.LargeEmbedding3) {
			dim = OpenAILargeDimension
		}
	}

	httpClient := &http.Client{Timeout: opts.timeout()}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = httpClient

	o := &OpenAIProvider{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
		dimensions: opts.Dimension,
	}
	o.remote = newRemote(ProviderOpenAI, model, dim, opts, o.callAPI)
	return o, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return o.generateEmbedding(ctx, req)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return o.generateBatch(ctx, req)
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(model),
		Input:      texts,
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("response index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dim
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
