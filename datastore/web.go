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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/internal/cache"
	"github.com/sourcelane/gateway/source"
)

// MeilisearchConfig configures MeilisearchSearcher's calls to a
// Meilisearch index. Grounded on llm/tools/web_search.go's
// WebSearchProvider DI interface — that file ships the interface and a
// WebSearchOptions/WebSearchResult shape but no concrete backend — and
// matches the MEILISEARCH_URL/MEILISEARCH_MASTER_KEY endpoint spec.md §6
// already enumerates for the Web Lane's datastore.
type MeilisearchConfig struct {
	BaseURL   string
	MasterKey string
	Index     string
	Timeout   time.Duration

	// TitleField, URLField, and ContentField name the document attributes
	// holding the fields a Source needs; defaults are "title", "url", and
	// "content" when left blank.
	TitleField   string
	URLField     string
	ContentField string
}

// MeilisearchSearcher performs web search via a Meilisearch index's REST
// search endpoint. Its Search method matches lane.SearchFunc's signature
// so it plugs directly into lane.NewWebLane.
type MeilisearchSearcher struct {
	cfg     MeilisearchConfig
	client  *http.Client
	logger  *zap.Logger
	baseURL string
}

// NewMeilisearchSearcher creates a MeilisearchSearcher.
func NewMeilisearchSearcher(cfg MeilisearchConfig, logger *zap.Logger) *MeilisearchSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TitleField == "" {
		cfg.TitleField = "title"
	}
	if cfg.URLField == "" {
		cfg.URLField = "url"
	}
	if cfg.ContentField == "" {
		cfg.ContentField = "content"
	}
	return &MeilisearchSearcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "meilisearch_searcher")),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
	}
}

// Search satisfies lane.SearchFunc.
func (s *MeilisearchSearcher) Search(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if strings.TrimSpace(s.cfg.Index) == "" {
		return nil, fmt.Errorf("meilisearch index is required")
	}

	reqBody := struct {
		Q     string `json:"q"`
		Limit int    `json:"limit"`
	}{Q: query, Limit: maxResults}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/indexes/%s/search", s.baseURL, url.PathEscape(s.cfg.Index))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.MasterKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.MasterKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("meilisearch search failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var decoded struct {
		Hits []map[string]any `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	out := make([]source.Source, 0, len(decoded.Hits))
	for i, hit := range decoded.Hits {
		src := source.Source{OriginLane: source.LaneWeb, Score: rankScore(i, len(decoded.Hits))}
		if v, ok := hit[s.cfg.URLField].(string); ok {
			src.URL = v
		}
		if v, ok := hit[s.cfg.TitleField].(string); ok {
			src.Title = v
		}
		if v, ok := hit[s.cfg.ContentField].(string); ok {
			src.Snippet = v
		}
		if v, ok := hit["id"]; ok {
			src.ID = fmt.Sprint(v)
		} else {
			src.ID = source.NormalizeURL(src.URL)
		}
		out = append(out, src.Truncated())
	}

	s.logger.Debug("meilisearch search completed", zap.String("query", query), zap.Int("hits", len(out)))
	return out, nil
}

// rankScore derives a [0,1] relevance score from Meilisearch's rank-only
// result ordering, which carries no numeric score of its own.
func rankScore(rank, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - float64(rank)/float64(total)
}

// webResultCache is a small TTL cache keyed by normalized query text,
// grounded verbatim on rag/web_retrieval.go's webResultCache —
// generalized here from []WebRetrievalResult to []source.Source since
// the gateway's lane output shape differs from rag's.
type webResultCache struct {
	mu      sync.RWMutex
	entries map[string]webCacheEntry
	ttl     time.Duration
}

type webCacheEntry struct {
	results   []source.Source
	expiresAt time.Time
}

func newWebResultCache(ttl time.Duration) *webResultCache {
	return &webResultCache{entries: make(map[string]webCacheEntry), ttl: ttl}
}

func (c *webResultCache) get(query string) ([]source.Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(query))
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.results, true
}

func (c *webResultCache) set(query string, results []source.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(query))
	c.entries[key] = webCacheEntry{results: results, expiresAt: time.Now().Add(c.ttl)}
}

// CachedWebSearcher wraps a SearchFunc with a TTL cache so repeated
// identical queries within the window (retries, guided-prompt refinement
// round-trips) skip the outbound HTTP call.
type CachedWebSearcher struct {
	search func(ctx context.Context, query string, maxResults int) ([]source.Source, error)
	cache  *webResultCache
}

// NewCachedWebSearcher wraps search with a TTL cache. Its Search method
// matches lane.SearchFunc's signature.
func NewCachedWebSearcher(search func(ctx context.Context, query string, maxResults int) ([]source.Source, error), ttl time.Duration) *CachedWebSearcher {
	return &CachedWebSearcher{search: search, cache: newWebResultCache(ttl)}
}

// Search satisfies lane.SearchFunc.
func (c *CachedWebSearcher) Search(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
	if cached, ok := c.cache.get(query); ok {
		return cached, nil
	}

	results, err := c.search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	c.cache.set(query, results)
	return results, nil
}

// RedisCachedWebSearcher is CachedWebSearcher's cross-replica sibling: it
// backs the same TTL-cache-around-SearchFunc shape with internal/cache's
// Redis manager instead of an in-process map, so repeated queries are
// served from cache even when the gateway runs behind a load balancer
// with more than one instance.
type RedisCachedWebSearcher struct {
	search func(ctx context.Context, query string, maxResults int) ([]source.Source, error)
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCachedWebSearcher wraps search with a Redis-backed TTL cache.
// Its Search method matches lane.SearchFunc's signature.
func NewRedisCachedWebSearcher(search func(ctx context.Context, query string, maxResults int) ([]source.Source, error), mgr *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisCachedWebSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCachedWebSearcher{search: search, cache: mgr, ttl: ttl, logger: logger.With(zap.String("component", "redis_web_cache"))}
}

// Search satisfies lane.SearchFunc.
func (c *RedisCachedWebSearcher) Search(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
	key := webCacheKey(query)

	var cached []source.Source
	if err := c.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !cache.IsCacheMiss(err) {
		c.logger.Warn("redis web cache get failed", zap.Error(err))
	}

	results, err := c.search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, key, results, c.ttl); err != nil {
		c.logger.Warn("redis web cache set failed", zap.Error(err))
	}
	return results, nil
}

func webCacheKey(query string) string {
	return "web_search:" + strings.ToLower(strings.TrimSpace(query))
}
