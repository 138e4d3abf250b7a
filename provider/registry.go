package provider

import (
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sourcelane/gateway/config"
)

// ErrKind classifies a record_result failure for EWMA/health bookkeeping.
type ErrKind string

const (
	ErrKindTimeout ErrKind = "timeout"
	ErrKindUpstream ErrKind = "upstream"
	ErrKindOther   ErrKind = "other"
)

// catalogFile is the on-disk shape of the boot-time catalog (spec.md §6
// "its schema is providers[] and models[] with the fields enumerated in
// §3"). Models are nested under their provider for readability but are
// flattened into ModelDescriptor.ProviderID on load.
type catalogFile struct {
	Providers []catalogProvider `yaml:"providers"`
}

type catalogProvider struct {
	ID             string            `yaml:"id"`
	Tier           Tier              `yaml:"tier"`
	RequiresKey    bool              `yaml:"requires_key"`
	CostMultiplier float64           `yaml:"cost_multiplier"`
	Priority       int               `yaml:"priority"`
	Models         []ModelDescriptor `yaml:"models"`
}

// Registry is the Provider Registry (C1): an in-memory catalog of
// providers/models loaded once at boot, plus per-provider Health mutated
// on every request completion. Shared-read by the Scoring Router;
// mutation is serialized per provider via the mutex below.
type Registry struct {
	logger *zap.Logger
	cfg    config.ProvidersConfig

	mu        sync.RWMutex
	providers map[string]*Descriptor
	health    map[string]*Health
}

// LoadCatalog reads the provider/model catalog file (spec.md §6 "A model
// catalog file is read at boot") and returns a ready Registry. A missing
// file is not an error: the registry falls back to the built-in stub
// provider only (spec.md §4.1 "A stub provider is always available and
// always last").
func LoadCatalog(path string, providersCfg config.ProvidersConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		logger:    logger.With(zap.String("component", "provider_registry")),
		cfg:       providersCfg,
		providers: make(map[string]*Descriptor),
		health:    make(map[string]*Health),
	}

	r.addDescriptor(&Descriptor{ID: "local_stub", Tier: TierStub, RequiresKey: false, Priority: 1000,
		Models: []ModelDescriptor{{
			ModelID: "stub-v1", ProviderID: "local_stub", Quality: 0.1, SpeedScore: 1.0,
			CostPer1KTokens: 0, ContextWindow: 4096, Capabilities: []string{"fast_cheap", "quality", "lmm"},
		}},
	})

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Warn("catalog file not found, using stub provider only", zap.String("path", path))
			return r, nil
		}
		return nil, err
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	for _, p := range cf.Providers {
		for i := range p.Models {
			p.Models[i].ProviderID = p.ID
		}
		r.addDescriptor(&Descriptor{
			ID: p.ID, Tier: p.Tier, RequiresKey: p.RequiresKey,
			CostMultiplier: p.CostMultiplier, Priority: p.Priority, Models: p.Models,
		})
	}
	return r, nil
}

func (r *Registry) addDescriptor(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[d.ID] = d
	if _, ok := r.health[d.ID]; !ok {
		r.health[d.ID] = &Health{State: StateClosed, EWMASuccessRate: 1.0}
	}
}

// hasKey reports whether the provider's credential is configured, per
// spec.md §4.1's "key present if requires_key".
func (r *Registry) hasKey(providerID string) bool {
	switch providerID {
	case "openai":
		return r.cfg.OpenAIAPIKey != ""
	case "anthropic":
		return r.cfg.AnthropicAPIKey != ""
	case "gemini":
		return r.cfg.GeminiAPIKey != ""
	case "huggingface":
		return r.cfg.HuggingFaceAPIKey != ""
	case "ollama_local":
		return r.cfg.OllamaBaseURL != ""
	default:
		return true
	}
}

// ListAvailable returns providers whose prerequisites are satisfied: key
// present if requires_key, paid tiers gated on EnablePaidAPI regardless of
// key presence, stub always included last (spec.md §4.1).
func (r *Registry) ListAvailable() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, d := range r.providers {
		if d.Tier == TierStub {
			continue
		}
		if d.Tier == TierPaid && !r.cfg.EnablePaidAPI {
			continue
		}
		if d.RequiresKey && !r.hasKey(d.ID) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })

	if stub, ok := r.providers["local_stub"]; ok {
		out = append(out, stub)
	}
	return out
}

// Get returns a single descriptor by ID, regardless of availability gating
// (used by the router to resolve a model's owning provider).
func (r *Registry) Get(providerID string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.providers[providerID]
	return d, ok
}

// GetHealth returns a copy of the current health for providerID. O(1),
// side-effect free, per spec.md §4.1 "health check is O(1)".
func (r *Registry) GetHealth(providerID string) Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.health[providerID]; ok {
		return *h
	}
	return Health{State: StateClosed, EWMASuccessRate: 1.0}
}

// AllHealth returns a snapshot of every tracked provider's health, for
// GET /health/providers.
func (r *Registry) AllHealth() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Health, len(r.health))
	for k, v := range r.health {
		out[k] = *v
	}
	return out
}

const ewmaAlpha = 0.3

// RecordResult updates EWMA latency/success-rate bookkeeping for
// providerID. This never retries or raises; it only reports state
// (spec.md §4.1 "No retries here; it only reports state"). Mutation is
// serialized per the registry's single mutex, matching spec.md §5's
// "Provider health mutations for a given provider are serialized" rule.
func (r *Registry) RecordResult(providerID string, success bool, latencyMS float64, kind ErrKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.health[providerID]
	if !ok {
		h = &Health{State: StateClosed, EWMASuccessRate: 1.0}
		r.health[providerID] = h
	}

	h.EWMALatencyMS = h.EWMALatencyMS*(1-ewmaAlpha) + latencyMS*ewmaAlpha
	sample := 0.0
	if success {
		sample = 1.0
	}
	h.EWMASuccessRate = h.EWMASuccessRate*(1-ewmaAlpha) + sample*ewmaAlpha

	if success {
		h.ConsecutiveFailures = 0
	} else {
		h.ConsecutiveFailures++
		h.LastFailureTS = time.Now()
	}

	r.logger.Debug("provider result recorded",
		zap.String("provider", providerID),
		zap.Bool("success", success),
		zap.Float64("latency_ms", latencyMS),
		zap.String("error_kind", string(kind)),
	)
}
