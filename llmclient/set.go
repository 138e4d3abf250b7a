package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/config"
)

// Set holds one Provider adapter per configured backend, keyed by the
// same provider IDs the catalog and Scoring Router use.
type Set struct {
	byID map[string]Provider
}

// BuildSet constructs every adapter permitted by cfg. Adapters whose
// credentials are absent are simply omitted — the registry's
// availability gating (provider.Registry.ListAvailable) already excludes
// them from selection, so an unbuilt adapter is never dereferenced.
func BuildSet(ctx context.Context, cfg config.ProvidersConfig, logger *zap.Logger) (*Set, error) {
	s := &Set{byID: make(map[string]Provider)}
	s.byID["local_stub"] = NewStubProvider()

	if cfg.OpenAIAPIKey != "" {
		s.byID["openai"] = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)
	}
	if cfg.AnthropicAPIKey != "" {
		s.byID["anthropic"] = NewAnthropicProvider(cfg.AnthropicAPIKey, logger)
	}
	if cfg.GeminiAPIKey != "" {
		gp, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("build gemini adapter: %w", err)
		}
		s.byID["gemini"] = gp
	}
	if cfg.OllamaBaseURL != "" {
		s.byID["ollama_local"] = NewOllamaProvider(cfg.OllamaBaseURL, logger)
	}

	return s, nil
}

// Get returns the adapter for providerID, or the stub if none is built —
// the router only ever selects providers the registry already filtered
// to availability, so this is a defensive fallback, not the primary path.
func (s *Set) Get(providerID string) Provider {
	if p, ok := s.byID[providerID]; ok {
		return p
	}
	return s.byID["local_stub"]
}
