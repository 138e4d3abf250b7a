package datastore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sourcelane/gateway/source"
)

func TestMeilisearchSearcherParsesHitsIntoSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes/docs/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":[
			{"id":"1","title":"Go Docs","url":"https://go.dev/doc","content":"language docs"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewMeilisearchSearcher(MeilisearchConfig{BaseURL: srv.URL, MasterKey: "secret", Index: "docs"}, zap.NewNop())
	out, err := s.Search(context.Background(), "go language", 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Go Docs", out[0].Title)
	assert.Equal(t, "https://go.dev/doc", out[0].URL)
	assert.Equal(t, "1", out[0].ID)
}

func TestMeilisearchSearcherDefaultsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes/docs/search", func(w http.ResponseWriter, r *http.Request) {
		var decoded struct {
			Limit int `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&decoded)
		assert.Equal(t, 5, decoded.Limit)
		_, _ = w.Write([]byte(`{"hits":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewMeilisearchSearcher(MeilisearchConfig{BaseURL: srv.URL, Index: "docs"}, zap.NewNop())
	_, err := s.Search(context.Background(), "query", 0)
	require.NoError(t, err)
}

func TestMeilisearchSearcherRejectsEmptyIndex(t *testing.T) {
	s := NewMeilisearchSearcher(MeilisearchConfig{BaseURL: "http://example.invalid"}, zap.NewNop())
	_, err := s.Search(context.Background(), "query", 5)
	require.Error(t, err)
}

func TestCachedWebSearcherSkipsSecondCallWithinTTL(t *testing.T) {
	var calls atomic.Int32
	search := func(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
		calls.Add(1)
		return []source.Source{{ID: "1", URL: "https://x.example", OriginLane: source.LaneWeb}}, nil
	}

	c := NewCachedWebSearcher(search, time.Minute)
	_, err := c.Search(context.Background(), "  Go Language  ", 5)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "go language", 5)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedWebSearcherRefetchesAfterTTLExpires(t *testing.T) {
	var calls atomic.Int32
	search := func(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
		calls.Add(1)
		return nil, nil
	}

	c := NewCachedWebSearcher(search, time.Millisecond)
	_, err := c.Search(context.Background(), "go", 5)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.Search(context.Background(), "go", 5)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}
