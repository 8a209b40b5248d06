package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultJinaURL is the Jina AI embeddings endpoint
const DefaultJinaURL = "https://api.jina.ai/v1/embeddings"

// JinaProvider implements Embedder using the Jina AI REST API
type JinaProvider struct {
	remote
	apiKey     string
	url        string
	dimensions int // sent only when set explicitly
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(opts Options) (*JinaProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: jina requires an API key", ErrNoProviderEnabled)
	}

	model := opts.Model
	if model == "" {
		model = DefaultJinaModel
	}
	dim := opts.Dimension
	if dim <= 0 {
		dim = JinaDimension
	}
	url := opts.BaseURL
	if url == "" {
		url = DefaultJinaURL
	}

	j := &JinaProvider{
		apiKey:     opts.APIKey,
		url:        strings.TrimRight(url, "/"),
		dimensions: opts.Dimension,
		httpClient: &http.Client{
			Timeout: opts.timeout(),
		},
	}
	j.remote = newRemote(ProviderJina, model, dim, opts, j.callAPI)
	return j, nil
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return j.generateEmbedding(ctx, req)
}

func (j *JinaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return j.generateBatch(ctx, req)
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}
	if j.dimensions > 0 {
		reqBody["dimensions"] = j.dimensions
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(apiResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("response index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

func (j *JinaProvider) Dimension() int {
	return j.dim
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}
