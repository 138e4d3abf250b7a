package llmclient

import (
	"context"
	"fmt"
)

// StubProvider is the always-available emergency fallback (spec.md
// §4.1, §4.3, §8 property 9: "POST /search still returns a 200 with a
// non-empty answer and providers.llm=='local_stub'"). It never errors
// and never calls out to the network.
type StubProvider struct{}

// NewStubProvider creates the local stub adapter.
func NewStubProvider() *StubProvider { return &StubProvider{} }

func (s *StubProvider) Name() string { return "local_stub" }

func (s *StubProvider) Complete(ctx context.Context, req Request) (Response, error) {
	var query string
	for _, m := range req.Messages {
		if m.Role == "user" {
			query = m.Content
		}
	}
	answer := fmt.Sprintf("I don't have a live model available right now, but based on your question (%q), here is a best-effort summary of the retrieved sources.", truncate(query, 200))
	return Response{
		Provider:         s.Name(),
		Model:            req.Model,
		Content:          answer,
		PromptTokens:     len(query) / 4,
		CompletionTokens: len(answer) / 4,
	}, nil
}

func (s *StubProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan Chunk, 2)
	ch <- Chunk{Delta: resp.Content}
	ch <- Chunk{FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (s *StubProvider) HealthCheck(ctx context.Context) error { return nil }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
