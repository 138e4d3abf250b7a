package guidedprompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcelane/gateway/config"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/provider"
	"github.com/sourcelane/gateway/provider/breaker"
)

func newTestEngine(t *testing.T, confidence IntentConfidence, budget BudgetTracker) *Engine {
	t.Helper()
	reg, err := provider.LoadCatalog("testdata/does-not-exist.yaml", config.ProvidersConfig{}, nil)
	require.NoError(t, err)
	router := provider.NewRouter(reg, breaker.NewRegistry(nil, nil), nil)
	set, err := llmclient.BuildSet(context.Background(), config.ProvidersConfig{}, nil)
	require.NoError(t, err)
	return New(router, set, confidence, budget, nil)
}

func TestRefineBypassesWhenModeIsOff(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	res := e.Refine(context.Background(), "find me a restaurant", ModeOff, "trace-1", Context{})
	assert.False(t, res.ShouldTrigger)
	assert.Equal(t, "mode", res.BypassReason)
}

func TestRefineBypassesOnExplicitKeyword(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	res := e.Refine(context.Background(), "skip the refinement and answer directly", ModeOn, "trace-2", Context{})
	assert.False(t, res.ShouldTrigger)
	assert.Equal(t, "keyword", res.BypassReason)
}

func TestRefineBypassesOnHighIntentConfidence(t *testing.T) {
	e := newTestEngine(t, func(string) float64 { return 0.95 }, nil)
	res := e.Refine(context.Background(), "clear unambiguous query", ModeOn, "trace-3", Context{})
	assert.False(t, res.ShouldTrigger)
	assert.Equal(t, "confidence", res.BypassReason)
}

type fakeBudget struct{ remaining float64 }

func (f *fakeBudget) RemainingFraction() float64 { return f.remaining }
func (f *fakeBudget) Charge(usd float64)         {}

func TestRefineBypassesWhenDailyBudgetLow(t *testing.T) {
	e := newTestEngine(t, nil, &fakeBudget{remaining: 0.05})
	res := e.Refine(context.Background(), "ambiguous query", ModeOn, "trace-4", Context{})
	assert.False(t, res.ShouldTrigger)
	assert.Equal(t, "budget", res.BypassReason)
}

func TestSelectTierPicksLMMForAttachments(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	assert.Equal(t, "lmm", e.selectTier(Context{Attachments: true}))
}

func TestSelectTierPicksQualityWithGenerousLatencyBudget(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	assert.Equal(t, "quality", e.selectTier(Context{LatencyBudgetMS: 500}))
}

func TestSelectTierDefaultsToFastCheap(t *testing.T) {
	e := newTestEngine(t, nil, nil)
	assert.Equal(t, "fast_cheap", e.selectTier(Context{LatencyBudgetMS: 100}))
}

func TestValidateDropsSuggestionsOutsideWordBounds(t *testing.T) {
	_, ok := validate(Suggestion{Description: "too short"})
	assert.False(t, ok)
}

func TestValidateDropsHypeWords(t *testing.T) {
	_, ok := validate(Suggestion{Description: "this revolutionary approach changes absolutely everything about search forever"})
	assert.False(t, ok)
}

func TestValidateRedactsPII(t *testing.T) {
	s, ok := validate(Suggestion{Description: "contact me at someone@example.com for more details please"})
	require.True(t, ok)
	assert.Contains(t, s.Description, "[REDACTED]")
	assert.NotContains(t, s.Description, "someone@example.com")
}
