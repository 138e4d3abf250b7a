// Package datastore adapts the teacher's existing retrieval backends —
// the llm/embedding providers, rag/graph_rag.go's in-memory
// KnowledgeGraph, and a fresh raw-HTTP vector/web-search client idiom
// grounded on rag/qdrant_store.go — onto the lane package's narrow
// per-lane interfaces (Embedder, VectorSearcher, GraphStore,
// EntityExtractor), so the Vector and KG lanes run against real
// backends instead of only test fakes.
package datastore

import (
	"context"

	"github.com/sourcelane/gateway/llm/embedding"
)

// EmbeddingAdapter narrows an llm/embedding.Provider down to the single
// method the Vector Lane needs, so any of the teacher's concrete
// providers (OpenAI, Voyage, Cohere, Jina) can back query embedding.
type EmbeddingAdapter struct {
	provider embedding.Provider
}

// NewEmbeddingAdapter wraps provider for use as a lane.Embedder.
func NewEmbeddingAdapter(provider embedding.Provider) *EmbeddingAdapter {
	return &EmbeddingAdapter{provider: provider}
}

// Embed satisfies lane.Embedder.
func (a *EmbeddingAdapter) Embed(ctx context.Context, query string) ([]float64, error) {
	return a.provider.EmbedQuery(ctx, query)
}
