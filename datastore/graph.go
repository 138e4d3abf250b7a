package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/lane"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/rag"
)

// KnowledgeGraphStore implements lane.GraphStore directly over
// rag/graph_rag.go's KnowledgeGraph — an in-memory node/edge store rather
// than a remote service, per the KG Lane's grounding: entity resolution
// and relationship lookups are local map reads, so there is no wire
// format to build a client around.
type KnowledgeGraphStore struct {
	graph *rag.KnowledgeGraph
}

// NewKnowledgeGraphStore wraps an existing KnowledgeGraph for the KG Lane.
func NewKnowledgeGraphStore(graph *rag.KnowledgeGraph) *KnowledgeGraphStore {
	return &KnowledgeGraphStore{graph: graph}
}

// FetchEntities satisfies lane.GraphStore: resolves each extracted entity
// name to its graph node(s) via KnowledgeGraph.FindByLabel, in order,
// until limit is reached.
func (s *KnowledgeGraphStore) FetchEntities(ctx context.Context, names []string, limit int) ([]lane.GraphEntity, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var out []lane.GraphEntity
	for _, name := range names {
		for _, n := range s.graph.FindByLabel(name) {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			out = append(out, lane.GraphEntity{ID: n.ID, Label: n.Label, Type: n.Type, Properties: n.Properties})
		}
	}
	return out, nil
}

// FetchRelationships satisfies lane.GraphStore, delegating to
// KnowledgeGraph.Relationships for the direct out/in edges of the given
// node IDs.
func (s *KnowledgeGraphStore) FetchRelationships(ctx context.Context, entityIDs []string, limit int) ([]lane.Triple, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	triples := s.graph.Relationships(entityIDs, limit)
	out := make([]lane.Triple, len(triples))
	for i, t := range triples {
		out[i] = lane.Triple{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object}
	}
	return out, nil
}

// LLMEntityExtractor implements lane.EntityExtractor with a short, cheap
// completion call, reusing llmclient.Provider — the same adapter the
// Scoring Router and Guided-Prompt Engine already use for synthesis —
// rather than adding a dedicated NER dependency.
type LLMEntityExtractor struct {
	provider llmclient.Provider
	model    string
	logger   *zap.Logger
}

// NewLLMEntityExtractor creates an LLMEntityExtractor.
func NewLLMEntityExtractor(provider llmclient.Provider, model string, logger *zap.Logger) *LLMEntityExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMEntityExtractor{provider: provider, model: model, logger: logger.With(zap.String("component", "entity_extractor"))}
}

const entityExtractionPrompt = `Extract the key named entities (people, organizations, products, places, concepts) from the user's query. Respond with a JSON array of strings only, no other text. If there are no clear entities, respond with [].`

// ExtractEntities satisfies lane.EntityExtractor.
func (e *LLMEntityExtractor) ExtractEntities(ctx context.Context, query string) ([]string, error) {
	resp, err := e.provider.Complete(ctx, llmclient.Request{
		Model: e.model,
		Messages: []llmclient.Message{
			{Role: "system", Content: entityExtractionPrompt},
			{Role: "user", Content: query},
		},
		MaxTokens:   100,
		Temperature: 0,
		Timeout:     2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("entity extraction completion: %w", err)
	}

	var names []string
	content := strings.TrimSpace(resp.Content)
	if err := json.Unmarshal([]byte(content), &names); err != nil {
		e.logger.Warn("entity extraction returned non-JSON content", zap.String("content", content))
		return nil, nil
	}
	return names, nil
}
