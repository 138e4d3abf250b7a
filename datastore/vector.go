package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/source"
)

// QdrantConfig configures QdrantSearcher's connection to a Qdrant
// collection. Grounded on rag/qdrant_store.go's QdrantConfig, trimmed to
// the search-only fields the Vector Lane needs — this package never
// writes to the store, so upsert/collection-management knobs are
// dropped rather than carried unused.
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
	Timeout    time.Duration

	// PayloadURLField and PayloadTitleField name the payload keys
	// holding the fields a Source needs; defaults are "url" and
	// "title" when left blank.
	PayloadURLField     string
	PayloadTitleField   string
	PayloadSnippetField string
}

// QdrantSearcher implements lane.VectorSearcher against Qdrant's REST
// search endpoint. It is a fresh, minimal client rather than a wrapper
// around rag.QdrantStore: that type's Search returns rag.VectorSearchResult,
// built around a rag.Document type this package does not import, so
// wrapping it would mean guessing at a cross-package contract instead of
// reading one off a confirmed interface.
type QdrantSearcher struct {
	cfg     QdrantConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewQdrantSearcher creates a QdrantSearcher.
func NewQdrantSearcher(cfg QdrantConfig, logger *zap.Logger) *QdrantSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PayloadURLField == "" {
		cfg.PayloadURLField = "url"
	}
	if cfg.PayloadTitleField == "" {
		cfg.PayloadTitleField = "title"
	}
	if cfg.PayloadSnippetField == "" {
		cfg.PayloadSnippetField = "snippet"
	}

	return &QdrantSearcher{
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "qdrant_searcher")),
	}
}

func (s *QdrantSearcher) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

// Search satisfies lane.VectorSearcher.
func (s *QdrantSearcher) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]source.Source, error) {
	if topK <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	reqBody := struct {
		Vector      []float64 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
	}{
		Vector:      queryEmbedding,
		Limit:       topK,
		WithPayload: true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, url.PathEscape(s.cfg.Collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant search failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var decoded struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	out := make([]source.Source, 0, len(decoded.Result))
	for _, r := range decoded.Result {
		src := source.Source{
			ID:         fmt.Sprint(r.ID),
			Score:      r.Score,
			OriginLane: source.LaneVector,
			Metadata:   r.Payload,
		}
		if r.Payload != nil {
			if v, ok := r.Payload[s.cfg.PayloadURLField].(string); ok {
				src.URL = v
			}
			if v, ok := r.Payload[s.cfg.PayloadTitleField].(string); ok {
				src.Title = v
			}
			if v, ok := r.Payload[s.cfg.PayloadSnippetField].(string); ok {
				src.Snippet = v
			}
		}
		out = append(out, src.Truncated())
	}

	s.logger.Debug("qdrant search completed", zap.Int("hits", len(out)))
	return out, nil
}
