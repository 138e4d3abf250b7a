package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelane/gateway/llm/embedding"
)

type stubEmbeddingProvider struct {
	vec []float64
	err error
}

func (s *stubEmbeddingProvider) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	return nil, nil
}

func (s *stubEmbeddingProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return s.vec, s.err
}

func (s *stubEmbeddingProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return nil, nil
}

func (s *stubEmbeddingProvider) Name() string      { return "stub" }
func (s *stubEmbeddingProvider) Dimensions() int   { return len(s.vec) }
func (s *stubEmbeddingProvider) MaxBatchSize() int { return 1 }

func TestEmbeddingAdapterDelegatesToProvider(t *testing.T) {
	provider := &stubEmbeddingProvider{vec: []float64{0.1, 0.2, 0.3}}
	a := NewEmbeddingAdapter(provider)

	vec, err := a.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestEmbeddingAdapterPropagatesError(t *testing.T) {
	provider := &stubEmbeddingProvider{err: assertErr("embedding failed")}
	a := NewEmbeddingAdapter(provider)

	_, err := a.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
