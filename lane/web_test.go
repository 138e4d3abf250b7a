package lane

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sourcelane/gateway/internal/pool"
	"github.com/sourcelane/gateway/source"
)

func newTestPool() *pool.GoroutinePool {
	return pool.NewGoroutinePool(pool.DefaultGoroutinePoolConfig())
}

func TestWebLaneReturnsItemsOnSuccess(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	l := NewWebLane(func(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
		return []source.Source{{ID: "1", Title: "hit", URL: "https://example.com", OriginLane: source.LaneWeb}}, nil
	}, p, nil)

	res := l.Search(context.Background(), Request{QueryText: "q", TopK: 5, DeadlineMS: 1000})
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Items, 1)
}

func TestWebLaneTimesOutWhenSearchIsSlow(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	l := NewWebLane(func(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return []source.Source{{ID: "1", URL: "https://example.com"}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, p, nil)

	res := l.Search(context.Background(), Request{QueryText: "q", TopK: 5, DeadlineMS: 20})
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Empty(t, res.Items)
}

func TestWebLaneReturnsErrorStatusWhenSearchFailsWithNoItems(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	l := NewWebLane(func(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
		return nil, errors.New("upstream down")
	}, p, nil)

	res := l.Search(context.Background(), Request{QueryText: "q", TopK: 5, DeadlineMS: 1000})
	assert.Equal(t, StatusError, res.Status)
}

func TestWebLaneClampsItemsToTopK(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	l := NewWebLane(func(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
		return []source.Source{
			{ID: "1", URL: "https://a.com"}, {ID: "2", URL: "https://b.com"}, {ID: "3", URL: "https://c.com"},
		}, nil
	}, p, nil)

	res := l.Search(context.Background(), Request{QueryText: "q", TopK: 2, DeadlineMS: 1000})
	assert.Len(t, res.Items, 2)
}
