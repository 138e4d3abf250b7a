package lane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelane/gateway/source"
)

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(ctx context.Context, query string) ([]float64, error) {
	f.calls++
	return []float64{1, 2, 3}, nil
}

type fakeSearcher struct{}

func (fakeSearcher) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]source.Source, error) {
	return []source.Source{{ID: "v1", URL: "https://example.com/v1", OriginLane: source.LaneVector}}, nil
}

func TestVectorLaneCachesEmbeddingsByQueryHash(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	embedder := &fakeEmbedder{}
	l := NewVectorLane(embedder, fakeSearcher{}, p, nil)

	res1 := l.Search(context.Background(), Request{QueryText: "same query", TopK: 5, DeadlineMS: 1000})
	res2 := l.Search(context.Background(), Request{QueryText: "same query", TopK: 5, DeadlineMS: 1000})

	require.Equal(t, StatusOK, res1.Status)
	require.Equal(t, StatusOK, res2.Status)
	assert.Equal(t, 1, embedder.calls, "second search with the same query text should hit the embedding cache")
}

func TestVectorLaneReturnsItems(t *testing.T) {
	p := newTestPool()
	defer p.Close()

	l := NewVectorLane(&fakeEmbedder{}, fakeSearcher{}, p, nil)
	res := l.Search(context.Background(), Request{QueryText: "q", TopK: 5, DeadlineMS: 1000})
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Items, 1)
}
