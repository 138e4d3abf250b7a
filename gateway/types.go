// Package gateway implements the Gateway (C10, spec.md §4.10): the
// HTTP/SSE surface that fronts the Lane Orchestrator, Fusion stage,
// Scoring Router, Guided-Prompt Engine, and Streaming Manager.
//
// Grounded almost entirely on cmd/agentflow/middleware.go's middleware
// primitives and api/handlers/common.go's JSON envelope helpers, wired
// over the in-process components the rest of this module already
// builds rather than over a database-backed handler layer.
package gateway

import "github.com/sourcelane/gateway/source"

// QueryRequest is the wire shape of POST /search's body (spec.md §6).
type QueryRequest struct {
	Query            string   `json:"query"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Temperature      float32  `json:"temperature,omitempty"`
	GuidedPromptMode string   `json:"guided_prompt_mode,omitempty"`
}

// WireSource is one fused source in the wire response, trimmed to the
// fields spec.md §6 lists (internal Metadata/EntityRef stay server-side).
type WireSource struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
	OriginLane string  `json:"origin_lane"`
}

func toWireSource(s source.Source) WireSource {
	return WireSource{ID: s.ID, Title: s.Title, URL: s.URL, Snippet: s.Snippet, Score: s.Score, OriginLane: string(s.OriginLane)}
}

// ProvidersUsed names the provider/model the answer was synthesized
// with (spec.md §6 "providers": {"llm","model"}).
type ProvidersUsed struct {
	LLM   string `json:"llm"`
	Model string `json:"model"`
}

// Timings reports per-stage latency in milliseconds (spec.md §6).
type Timings struct {
	Web       int64 `json:"web"`
	Vector    int64 `json:"vector"`
	KG        int64 `json:"kg"`
	Fusion    int64 `json:"fusion"`
	Synthesis int64 `json:"synthesis"`
	Total     int64 `json:"total"`
}

// SearchResponse is the wire shape of POST /search's response (spec.md §6).
type SearchResponse struct {
	TraceID   string        `json:"trace_id"`
	Answer    string        `json:"answer"`
	Sources   []WireSource  `json:"sources"`
	Providers ProvidersUsed `json:"providers"`
	Timings   Timings       `json:"timings_ms"`
	Warnings  []string      `json:"warnings"`
}

// RefineContext is the optional metadata POST /guided-prompt/refine
// accepts alongside the query (spec.md §6).
type RefineContext struct {
	UserID     string `json:"user_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Language   string `json:"language,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

// RefineRequest is the wire shape of POST /guided-prompt/refine's body.
type RefineRequest struct {
	Query   string        `json:"query"`
	Context RefineContext `json:"context"`
}

// RefineResponse is the wire shape of POST /guided-prompt/refine's
// response (spec.md §6: should_trigger, suggestions, constraints,
// latency_ms, model_used, cost_usd, bypass_reason?).
type RefineResponse struct {
	ShouldTrigger bool        `json:"should_trigger"`
	Suggestions   []suggestion `json:"suggestions"`
	Constraints   []constraint `json:"constraints"`
	LatencyMS     int64       `json:"latency_ms"`
	ModelUsed     string      `json:"model_used,omitempty"`
	CostUSD       float64     `json:"cost_usd"`
	BypassReason  string      `json:"bypass_reason,omitempty"`
}

type suggestion struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	RefinedQuery string  `json:"refined_query"`
	Type         string  `json:"type"`
	Confidence   float64 `json:"confidence"`
}

type constraint struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Options []string `json:"options"`
}

// HealthResponse is the wire shape of GET /health (spec.md §6).
type HealthResponse struct {
	Status  string `json:"status"`
	UptimeS int64  `json:"uptime_s"`
	Warmup  bool   `json:"warmup"`
}

// ProviderHealthEntry is one provider's entry in GET /health/providers
// (spec.md §6).
type ProviderHealthEntry struct {
	State               string  `json:"state"`
	EWMALatencyMS       float64 `json:"ewma_latency_ms"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	OpenUntilTS         *int64  `json:"open_until_ts,omitempty"`
}

// WarmupResponse is the wire shape of POST /warmup.
type WarmupResponse struct {
	Ready bool     `json:"ready"`
	Steps []string `json:"steps_run"`
}
