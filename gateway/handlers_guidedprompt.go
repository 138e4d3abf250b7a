package gateway

import (
	"net/http"
	"strings"

	"github.com/sourcelane/gateway/apperr"
	"github.com/sourcelane/gateway/guidedprompt"
	"github.com/sourcelane/gateway/internal/ctxkeys"
)

// handleGuidedPromptRefine implements POST /guided-prompt/refine
// (spec.md §6), translating the Guided-Prompt Engine's internal Result
// into the wire shape the external contract names.
func (g *Gateway) handleGuidedPromptRefine(w http.ResponseWriter, r *http.Request) {
	traceID, _ := ctxkeys.TraceID(r.Context())

	var req RefineRequest
	if err := decodeJSONBody(w, r, &req, g.cfg.Server.MaxRequestBytes); err != nil {
		writeAppError(w, apperr.New(apperr.KindValidation, "invalid request body").WithCause(err), traceID, g.logger)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeAppError(w, apperr.New(apperr.KindValidation, "query must not be empty"), traceID, g.logger)
		return
	}

	mode := guidedprompt.Mode(r.URL.Query().Get("guided_prompt_mode"))
	if mode == "" {
		mode = guidedprompt.ModeOn
	}

	result := g.guidedPrompt.Refine(r.Context(), query, mode, traceID, guidedprompt.Context{
		UserID:     req.Context.UserID,
		SessionID:  req.Context.SessionID,
		Language:   req.Context.Language,
		DeviceType: req.Context.DeviceType,
	})

	writeJSON(w, http.StatusOK, toRefineResponse(result), g.logger)
}

func toRefineResponse(r guidedprompt.Result) RefineResponse {
	suggestions := make([]suggestion, 0, len(r.Suggestions))
	for _, s := range r.Suggestions {
		suggestions = append(suggestions, suggestion{
			Title:        s.Title,
			Description:  s.Description,
			RefinedQuery: s.RefinedQuery,
			Type:         string(s.Type),
			Confidence:   s.Confidence,
		})
	}
	constraints := make([]constraint, 0, len(r.ConstraintChips))
	for _, c := range r.ConstraintChips {
		constraints = append(constraints, constraint{ID: c.ID, Label: c.Label, Type: c.Type, Options: c.Options})
	}
	return RefineResponse{
		ShouldTrigger: r.ShouldTrigger,
		Suggestions:   suggestions,
		Constraints:   constraints,
		LatencyMS:     r.LatencyMS,
		ModelUsed:     r.ModelUsed,
		CostUSD:       r.CostEstimateUSD,
		BypassReason:  r.BypassReason,
	}
}
