package datastore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/rag"
)

func buildTestGraph() *rag.KnowledgeGraph {
	g := rag.NewKnowledgeGraph(zap.NewNop())
	g.AddNode(&rag.Node{ID: "go", Type: "language", Label: "Go"})
	g.AddNode(&rag.Node{ID: "google", Type: "organization", Label: "Google"})
	g.AddEdge(&rag.Edge{ID: "e1", Source: "go", Target: "google", Type: "created_by"})
	return g
}

func TestKnowledgeGraphStoreFetchesEntitiesByLabel(t *testing.T) {
	store := NewKnowledgeGraphStore(buildTestGraph())

	entities, err := store.FetchEntities(context.Background(), []string{"Go"}, 4)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "go", entities[0].ID)
	assert.Equal(t, "language", entities[0].Type)
}

func TestKnowledgeGraphStoreFetchesRelationships(t *testing.T) {
	store := NewKnowledgeGraphStore(buildTestGraph())

	triples, err := store.FetchRelationships(context.Background(), []string{"go"}, 2)
	require.NoError(t, err)
	require.Len(t, triples, 1)
	assert.Equal(t, "Go", triples[0].Subject)
	assert.Equal(t, "created_by", triples[0].Predicate)
	assert.Equal(t, "Google", triples[0].Object)
}

func TestKnowledgeGraphStoreSkipsRequestForEmptyInput(t *testing.T) {
	store := NewKnowledgeGraphStore(buildTestGraph())

	entities, err := store.FetchEntities(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Nil(t, entities)

	triples, err := store.FetchRelationships(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Nil(t, triples)
}

type stubLLMProvider struct {
	content string
	err     error
}

func (p *stubLLMProvider) Name() string { return "stub" }

func (p *stubLLMProvider) Complete(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	if p.err != nil {
		return llmclient.Response{}, p.err
	}
	return llmclient.Response{Content: p.content}, nil
}

func (p *stubLLMProvider) Stream(ctx context.Context, req llmclient.Request) (<-chan llmclient.Chunk, error) {
	ch := make(chan llmclient.Chunk)
	close(ch)
	return ch, nil
}

func (p *stubLLMProvider) HealthCheck(ctx context.Context) error { return nil }

func TestLLMEntityExtractorParsesJSONArray(t *testing.T) {
	raw, _ := json.Marshal([]string{"Go", "Google"})
	provider := &stubLLMProvider{content: string(raw)}
	e := NewLLMEntityExtractor(provider, "fast-model", zap.NewNop())

	names, err := e.ExtractEntities(context.Background(), "who made Go")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Google"}, names)
}

func TestLLMEntityExtractorReturnsNilOnNonJSONContent(t *testing.T) {
	provider := &stubLLMProvider{content: "not json"}
	e := NewLLMEntityExtractor(provider, "fast-model", zap.NewNop())

	names, err := e.ExtractEntities(context.Background(), "who made Go")
	require.NoError(t, err)
	assert.Nil(t, names)
}
