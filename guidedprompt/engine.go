// Package guidedprompt implements the Guided-Prompt Engine (C8, spec.md
// §4.8): an optional, cheap pre-retrieval refinement call that produces
// suggestions and constraint chips under a tight latency and cost
// budget, or declines to trigger at all.
package guidedprompt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/internal/deadline"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/provider"
)

// Budget caps one refinement call (spec.md §4.8: "≤300 output tokens,
// ≤500 ms total, ≤1% of daily cost budget per request").
const (
	MaxOutputTokens   = 300
	MaxTotalLatency   = 500 * time.Millisecond
	MaxDailyBudgetPct = 0.01
)

// bypassKeywords short-circuit refinement when the user has already
// signaled they want a direct answer (spec.md §4.8 trigger rules).
var bypassKeywords = []string{"skip", "bypass", "direct", "immediate"}

// hypeWords disqualify a suggestion from output validation (spec.md
// §4.8: "no hype-word set").
var hypeWords = []string{"revolutionary", "game-changing", "unleash", "supercharge", "cutting-edge"}

// piiPatterns flag content that must be redacted before a suggestion is
// returned to the client (spec.md §4.8: "emails, phone numbers, card
// numbers are redacted to [REDACTED]"). Grounded on internal/sanitize's
// regexp idiom, extended here for PII shapes rather than injection
// phrasing.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	regexp.MustCompile(`\b(?:\+?\d{1,2}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
	regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`),
}

// Mode is the caller-supplied guided_prompt_mode (spec.md §3 Query Request).
type Mode string

const (
	ModeOn           Mode = "on"
	ModeOff          Mode = "off"
	ModeBypassOnce    Mode = "bypass_once"
	ModeAlwaysBypass Mode = "always_bypass"
)

// SuggestionType enumerates the refinement kinds (spec.md §3).
type SuggestionType string

const (
	TypeRefine       SuggestionType = "refine"
	TypeDisambiguate SuggestionType = "disambiguate"
	TypeDecompose    SuggestionType = "decompose"
	TypeConstrain    SuggestionType = "constrain"
	TypeSanitize     SuggestionType = "sanitize"
)

// Suggestion is one refinement candidate (spec.md §3 Refinement Result).
type Suggestion struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	RefinedQuery string         `json:"refined_query"`
	Type         SuggestionType `json:"type"`
	Confidence   float64        `json:"confidence"`
}

// ConstraintChip is a user-selectable narrowing option (spec.md §3).
type ConstraintChip struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Options []string `json:"options"`
}

// Result is the Refinement Result entity (spec.md §3).
type Result struct {
	ShouldTrigger   bool             `json:"should_trigger"`
	Suggestions     []Suggestion     `json:"suggestions"`
	ConstraintChips []ConstraintChip `json:"constraint_chips"`
	LatencyMS       int64            `json:"latency_ms"`
	CostEstimateUSD float64          `json:"cost_estimate_usd"`
	ModelUsed       string           `json:"model_used,omitempty"`
	BypassReason    string           `json:"bypass_reason,omitempty"`
}

// IntentConfidence estimates how confident the gateway already is about
// query intent, so the engine can skip refinement when it would add
// little (spec.md §4.8: "intent-confidence heuristic ≥ 0.8").
type IntentConfidence func(queryText string) float64

// BudgetTracker reports how much of the daily cost budget remains, as a
// fraction in [0,1].
type BudgetTracker interface {
	RemainingFraction() float64
	Charge(usd float64)
}

// Engine runs the Guided-Prompt refinement step.
type Engine struct {
	router   *provider.Router
	clients  *llmclient.Set
	confidence IntentConfidence
	budget   BudgetTracker
	logger   *zap.Logger
}

// New builds a Guided-Prompt Engine over the Scoring Router's model
// catalog, reusing its capability tags (fast_cheap/quality/lmm) for tier
// selection instead of a separate routing path (spec.md §4.8).
func New(router *provider.Router, clients *llmclient.Set, confidence IntentConfidence, budget BudgetTracker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if confidence == nil {
		confidence = func(string) float64 { return 0 }
	}
	return &Engine{router: router, clients: clients, confidence: confidence, budget: budget, logger: logger.With(zap.String("component", "guided_prompt_engine"))}
}

// Context carries the optional request metadata §4.8's refine endpoint
// accepts alongside the query.
type Context struct {
	UserID     string
	SessionID  string
	Language   string
	DeviceType string
	Attachments bool
	LatencyBudgetMS int
}

// Refine runs the trigger rules, model selection, and output validation
// of spec.md §4.8, always returning within MaxTotalLatency.
func (e *Engine) Refine(ctx context.Context, queryText string, mode Mode, traceID string, rc Context) Result {
	start := time.Now()

	if reason, skip := e.shouldSkip(queryText, mode); skip {
		return Result{ShouldTrigger: false, BypassReason: reason, LatencyMS: time.Since(start).Milliseconds()}
	}

	tier := e.selectTier(rc)
	sel := e.router.Select(provider.SelectionInput{QueryText: queryText, TaskTags: []string{tier}}, e.router.EstimateTokens(queryText), traceID)

	res, err := deadline.Run(ctx, MaxTotalLatency, func(ctx context.Context) (Result, error) {
		return e.call(ctx, queryText, sel, traceID)
	})
	if err != nil {
		e.logger.Info("guided prompt did not complete in budget", zap.String("trace_id", traceID), zap.Error(err))
		return Result{ShouldTrigger: false, BypassReason: "budget", LatencyMS: time.Since(start).Milliseconds()}
	}

	res.LatencyMS = time.Since(start).Milliseconds()
	return res
}

// shouldSkip implements spec.md §4.8's trigger rules in the order
// listed: mode-based skips first, then the bypass keyword and
// confidence/budget heuristics.
func (e *Engine) shouldSkip(queryText string, mode Mode) (reason string, skip bool) {
	switch mode {
	case ModeOff, ModeAlwaysBypass:
		return "mode", true
	case ModeBypassOnce:
		// Caller is responsible for flipping the stored mode to "on" for
		// the next request; this call itself is still bypassed.
		return "mode", true
	}

	lower := strings.ToLower(queryText)
	for _, kw := range bypassKeywords {
		if strings.Contains(lower, kw) {
			return "keyword", true
		}
	}

	if e.confidence(queryText) >= 0.8 {
		return "confidence", true
	}

	if e.budget != nil && e.budget.RemainingFraction() < 0.10 {
		return "budget", true
	}

	return "", false
}

// selectTier implements spec.md §4.8's model-class selection: fast_cheap
// by default, lmm when attachments are present, quality only when the
// caller's latency budget leaves enough room.
func (e *Engine) selectTier(rc Context) string {
	if rc.Attachments {
		return "lmm"
	}
	if rc.LatencyBudgetMS >= 400 {
		return "quality"
	}
	return "fast_cheap"
}

// refinementSchema is the structured output the underlying model is
// asked to produce; it is parsed, not trusted, before becoming a Result.
type refinementSchema struct {
	Suggestions []struct {
		Title        string  `json:"title"`
		Description  string  `json:"description"`
		RefinedQuery string  `json:"refined_query"`
		Type         string  `json:"type"`
		Confidence   float64 `json:"confidence"`
	} `json:"suggestions"`
	ConstraintChips []ConstraintChip `json:"constraint_chips"`
}

func (e *Engine) call(ctx context.Context, queryText string, sel provider.Selection, traceID string) (Result, error) {
	client := e.clients.Get(sel.ProviderID)

	resp, err := client.Complete(ctx, llmclient.Request{
		TraceID:   traceID,
		Model:     sel.ModelID,
		MaxTokens: MaxOutputTokens,
		Messages: []llmclient.Message{
			{Role: "system", Content: refinementSystemPrompt},
			{Role: "user", Content: queryText},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("guided prompt completion: %w", err)
	}

	var parsed refinementSchema
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return Result{ShouldTrigger: false, BypassReason: "unparseable_response", ModelUsed: sel.ModelID}, nil
	}

	suggestions := make([]Suggestion, 0, len(parsed.Suggestions))
	for _, s := range parsed.Suggestions {
		sug, ok := validate(Suggestion{
			Title:        s.Title,
			Description:  s.Description,
			RefinedQuery: s.RefinedQuery,
			Type:         SuggestionType(s.Type),
			Confidence:   s.Confidence,
		})
		if !ok {
			continue
		}
		suggestions = append(suggestions, sug)
		if len(suggestions) == 3 {
			break
		}
	}

	cost := estimateCostUSD(resp.PromptTokens, resp.CompletionTokens, sel.ModelID)
	if e.budget != nil {
		e.budget.Charge(cost)
	}

	return Result{
		ShouldTrigger:   len(suggestions) > 0,
		Suggestions:     suggestions,
		ConstraintChips: parsed.ConstraintChips,
		CostEstimateUSD: cost,
		ModelUsed:       sel.ModelID,
	}, nil
}

const refinementSystemPrompt = `You refine ambiguous search queries. Respond with JSON only: ` +
	`{"suggestions":[{"title","description","refined_query","type","confidence"}],"constraint_chips":[]}. ` +
	`Produce at most 3 suggestions, each 5 to 20 words.`

// validate implements spec.md §4.8's output validation: word-count
// bounds, the hype-word denylist, and PII redaction. A suggestion that
// fails validation is dropped rather than returned half-sanitized.
func validate(s Suggestion) (Suggestion, bool) {
	words := len(strings.Fields(s.Description))
	if words < 5 || words > 20 {
		return Suggestion{}, false
	}

	lower := strings.ToLower(s.Title + " " + s.Description)
	for _, hw := range hypeWords {
		if strings.Contains(lower, hw) {
			return Suggestion{}, false
		}
	}

	s.Title = redactPII(s.Title)
	s.Description = redactPII(s.Description)
	s.RefinedQuery = redactPII(s.RefinedQuery)

	if s.Confidence < 0 || s.Confidence > 1 {
		s.Confidence = 0
	}
	return s, true
}

func redactPII(text string) string {
	for _, re := range piiPatterns {
		text = re.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}

// estimateCostUSD is a coarse per-1K-token estimate; exact billing comes
// from the provider's own usage reporting where available.
func estimateCostUSD(promptTokens, completionTokens int, modelID string) float64 {
	const assumedCostPer1K = 0.0005
	total := promptTokens + completionTokens
	return float64(total) / 1000.0 * assumedCostPer1K
}
