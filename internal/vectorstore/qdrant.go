package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dshills/docindex-mcp/pkg/types"
)

// QdrantConfig configures the Qdrant REST client
type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// QdrantStore is a REST client to a Qdrant server. Each base maps to a
// collection of the same name using cosine distance.
type QdrantStore struct {
	url    string
	apiKey string
	client *http.Client
}

// errHTTPNotFound marks a 404 from Qdrant
var errHTTPNotFound = fmt.Errorf("qdrant: %w", types.ErrNotFound)

// NewQdrantStore creates a Qdrant-backed store
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is required", types.ErrValidation)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type qdrantPoint struct {
	ID      string          `json:"id"`
	Vector  []float32       `json:"vector,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Score   float64         `json:"score,omitempty"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func pathFilter(path string) *qdrantFilter {
	c := qdrantCondition{Key: "document_path"}
	c.Match.Value = path
	return &qdrantFilter{Must: []qdrantCondition{c}}
}

func (s *QdrantStore) collectionURL(base string, suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, url.PathEscape(base), suffix)
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, base string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", types.ErrValidation, dim)
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(base, ""), nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				types.ErrValidation, base, size, dim)
		}
		return nil
	case errors.Is(err, errHTTPNotFound):
		// create below
	default:
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(base, ""), body, nil)
}

func (s *QdrantStore) Upsert(ctx context.Context, base string, points []Point) ([]string, error) {
	ids := make([]string, len(points))
	if len(points) == 0 {
		return ids, nil
	}
	if err := validatePoints(points, len(points[0].Vector)); err != nil {
		return nil, err
	}

	wire := make([]qdrantPoint, len(points))
	for i, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %v", types.ErrStore, err)
		}
		wire[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: payload}
		ids[i] = p.ID
	}

	body := map[string]any{"points": wire}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(base, "/points?wait=true"), body, nil); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *QdrantStore) DeleteByDocumentPath(ctx context.Context, base, path string) error {
	body := map[string]any{"filter": pathFilter(path)}
	err := s.do(ctx, http.MethodPost, s.collectionURL(base, "/points/delete?wait=true"), body, nil)
	if errors.Is(err, errHTTPNotFound) {
		return nil
	}
	return err
}

func (s *QdrantStore) Delete(ctx context.Context, base string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return s.do(ctx, http.MethodPost, s.collectionURL(base, "/points/delete?wait=true"), body, nil)
}

func (s *QdrantStore) Get(ctx context.Context, base string, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return []Point{}, nil
	}
	body := map[string]any{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(base, "/points"), body, &resp); err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(resp.Result))
	for _, r := range resp.Result {
		p, err := r.toPoint()
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *QdrantStore) Search(ctx context.Context, base string, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		if filter.DocumentPath != "" {
			body["filter"] = pathFilter(filter.DocumentPath)
		}
		if filter.MinScore > 0 {
			body["score_threshold"] = filter.MinScore
		}
	}

	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(base, "/points/search"), body, &resp); err != nil {
		return nil, err
	}

	hits := make([]ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		p, err := r.toPoint()
		if err != nil {
			return nil, err
		}
		hits = append(hits, ScoredPoint{Point: p, Score: r.Score})
	}
	return hits, nil
}

func (s *QdrantStore) Count(ctx context.Context, base string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{"exact": true}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(base, "/points/count"), body, &resp); err != nil {
		if errors.Is(err, errHTTPNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close releases idle connections
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (p qdrantPoint) toPoint() (Point, error) {
	out := Point{ID: p.ID, Vector: p.Vector}
	if len(p.Payload) > 0 {
		if err := json.Unmarshal(p.Payload, &out.Payload); err != nil {
			return out, fmt.Errorf("%w: corrupt payload for %s: %v", types.ErrStore, p.ID, err)
		}
	}
	return out, nil
}

// do sends a JSON request and decodes the JSON response into out when non-nil
func (s *QdrantStore) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", types.ErrStore, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", types.ErrStore, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s: %v", types.ErrStore, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", errHTTPNotFound, method, url)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: qdrant %s %s failed: %s: %s",
			types.ErrStore, method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode qdrant response: %v", types.ErrStore, err)
		}
	}
	return nil
}
