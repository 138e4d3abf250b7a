// Package provider implements the Provider Registry (C1) and Scoring
// Router (C3): an in-memory catalog of LLM providers and models, loaded
// once at boot, with per-provider health tracked only in memory.
package provider

import "time"

// Tier classifies a provider by cost/availability posture.
type Tier string

const (
	TierFreeLocal  Tier = "free_local"
	TierFreeRemote Tier = "free_remote"
	TierPaid       Tier = "paid"
	TierStub       Tier = "stub"
)

// Descriptor is the declarative, immutable-after-load record for one
// provider, loaded from the catalog file (spec.md §3 Provider Descriptor).
type Descriptor struct {
	ID              string  `yaml:"id"`
	Tier            Tier    `yaml:"tier"`
	RequiresKey     bool    `yaml:"requires_key"`
	CostMultiplier  float64 `yaml:"cost_multiplier"`
	Priority        int     `yaml:"priority"`
	Models          []ModelDescriptor `yaml:"models"`
}

// ModelDescriptor is the declarative capability/cost record for one model
// on one provider (spec.md §3 Model Descriptor). Immutable after load.
type ModelDescriptor struct {
	ModelID          string   `yaml:"model_id"`
	ProviderID       string   `yaml:"provider_id"`
	Quality          float64  `yaml:"quality"`
	SpeedScore       float64  `yaml:"speed_score"`
	CostPer1KTokens  float64  `yaml:"cost_per_1k_tokens"`
	ContextWindow    int      `yaml:"context_window"`
	Capabilities     []string `yaml:"capabilities"`
}

// HasCapability reports whether m is tagged with tag (used by the
// Guided-Prompt Engine's model-class selection, spec.md §4.8).
func (m ModelDescriptor) HasCapability(tag string) bool {
	for _, c := range m.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// BreakerState mirrors the Circuit Breaker's state machine (spec.md §4.2)
// for reporting on GET /health/providers.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Health is the per-provider mutable state (spec.md §3 Provider Health).
// It is persisted only in memory and reset on process restart.
type Health struct {
	State               BreakerState
	ConsecutiveFailures int
	LastFailureTS       time.Time
	OpenUntilTS         time.Time
	EWMALatencyMS       float64
	EWMASuccessRate     float64
}
