package provider

import (
	"sort"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/sourcelane/gateway/provider/breaker"
)

// Weights are the Scoring Router's default weights (spec.md §4.3).
type Weights struct {
	Quality float64
	Speed   float64
	Cost    float64
	Circuit float64
}

// DefaultWeights matches spec.md §4.3 exactly.
func DefaultWeights() Weights {
	return Weights{Quality: 0.40, Speed: 0.20, Cost: 0.30, Circuit: 0.0}
}

// SelectionInput is the Scoring Router's input (spec.md §4.3).
type SelectionInput struct {
	QueryText     string
	TaskTags      []string
	BudgetHint    float64
}

// Selection is the Scoring Router's output (spec.md §4.3).
type Selection struct {
	ModelID       string
	ProviderID    string
	Alternatives  []string
	Reasoning     string
}

// Router implements the Scoring Router (C3), selecting a (provider, model)
// pair from the in-memory catalog by weighted score.
type Router struct {
	registry *Registry
	breakers *breaker.Registry
	weights  Weights
	logger   *zap.Logger
	enc      *tiktoken.Tiktoken
}

// NewRouter builds a Router over registry, using breakers to exclude
// providers whose circuit is open.
func NewRouter(registry *Registry, breakers *breaker.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Router{registry: registry, breakers: breakers, weights: DefaultWeights(), logger: logger.With(zap.String("component", "scoring_router")), enc: enc}
}

// EstimateTokens estimates the token count of text using the same
// tokenizer family the providers bill against, falling back to a
// conservative 4-chars-per-token heuristic if the encoder is unavailable.
func (r *Router) EstimateTokens(text string) int {
	if r.enc == nil {
		return len(text)/4 + 1
	}
	return len(r.enc.Encode(text, nil, nil))
}

type candidate struct {
	provider *Descriptor
	model    ModelDescriptor
	health   Health
	score    float64
}

// Select runs the scoring algorithm of spec.md §4.3 and returns a
// Selection. It never returns an error: on an empty candidate set it falls
// back to the stub provider (spec.md "Emergency fallback").
func (r *Router) Select(in SelectionInput, requiredContextTokens int, traceID string) Selection {
	available := r.registry.ListAvailable()

	var candidates []candidate
	for _, p := range available {
		if p.Tier != TierStub {
			st := r.breakers.Get("provider:" + p.ID).State()
			if st == breaker.StateOpen {
				continue
			}
		}
		for _, m := range p.Models {
			if m.ContextWindow < requiredContextTokens {
				continue
			}
			if len(in.TaskTags) > 0 && !hasAnyCapability(m, in.TaskTags) {
				continue
			}
			h := r.registry.GetHealth(p.ID)
			candidates = append(candidates, candidate{provider: p, model: m, health: h, score: r.score(p, m, h)})
		}
	}

	if len(candidates) == 0 {
		return r.stubSelection("no candidate satisfied constraints")
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.score != cj.score {
			return ci.score > cj.score
		}
		if ci.provider.Priority != cj.provider.Priority {
			return ci.provider.Priority < cj.provider.Priority
		}
		if ci.health.EWMASuccessRate != cj.health.EWMASuccessRate {
			return ci.health.EWMASuccessRate > cj.health.EWMASuccessRate
		}
		return ci.model.ModelID < cj.model.ModelID
	})

	best := candidates[0]
	var alts []string
	for i := 1; i < len(candidates) && i <= 3; i++ {
		alts = append(alts, candidates[i].model.ModelID)
	}

	sel := Selection{
		ModelID:      best.model.ModelID,
		ProviderID:   best.provider.ID,
		Alternatives: alts,
		Reasoning:    "weighted score over quality/speed/cost; context window and task tags filter candidates",
	}

	r.logger.Info("provider selected",
		zap.String("trace_id", traceID),
		zap.String("selected_model", sel.ModelID),
		zap.String("selected_provider", sel.ProviderID),
		zap.Strings("alternatives", alts),
		zap.Any("weights", r.weights),
		zap.String("reasoning", sel.Reasoning),
	)
	return sel
}

func hasAnyCapability(m ModelDescriptor, tags []string) bool {
	for _, t := range tags {
		if m.HasCapability(t) {
			return true
		}
	}
	return false
}

func (r *Router) score(p *Descriptor, m ModelDescriptor, h Health) float64 {
	costTerm := 1.0 / (1.0 + m.CostPer1KTokens*p.CostMultiplier)
	openPenalty := 0.0
	if h.State == StateHalfOpen {
		openPenalty = 0.5
	}
	return r.weights.Quality*m.Quality +
		r.weights.Speed*m.SpeedScore +
		r.weights.Cost*costTerm -
		r.weights.Circuit*openPenalty
}

func (r *Router) stubSelection(reason string) Selection {
	stub, ok := r.registry.Get("local_stub")
	if !ok || len(stub.Models) == 0 {
		return Selection{ModelID: "stub-v1", ProviderID: "local_stub", Reasoning: reason}
	}
	return Selection{ModelID: stub.Models[0].ModelID, ProviderID: stub.ID, Reasoning: reason}
}
