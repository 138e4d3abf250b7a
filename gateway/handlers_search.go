package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sourcelane/gateway/apperr"
	"github.com/sourcelane/gateway/fusion"
	"github.com/sourcelane/gateway/historystore"
	"github.com/sourcelane/gateway/internal/ctxkeys"
	"github.com/sourcelane/gateway/lane"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/provider"
	"github.com/sourcelane/gateway/source"
)

// handleSearch implements POST /search (spec.md §6): fan out to the
// retrieval lanes, fuse their results, synthesize an answer over the
// fused sources, and return the flat wire response.
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	traceID, _ := ctxkeys.TraceID(r.Context())

	var req QueryRequest
	if err := decodeJSONBody(w, r, &req, g.cfg.Server.MaxRequestBytes); err != nil {
		writeAppError(w, apperr.New(apperr.KindValidation, "invalid request body").WithCause(err), traceID, g.logger)
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeAppError(w, apperr.New(apperr.KindValidation, "query must not be empty"), traceID, g.logger)
		return
	}

	rc := g.cfg.Retrieval
	enabled := lane.EnabledSet{Web: rc.EnableWeb, Vector: rc.EnableVector, KG: rc.EnableKG}
	deadlines := lane.Deadlines{Web: rc.WebTimeout, Vector: rc.VectorTimeout, KG: rc.KGTimeout}

	laneStart := time.Now()
	execResult := g.orchestrator.Execute(r.Context(), query, enabled, deadlines, rc.TotalTimeout)
	g.recordLaneMetrics(execResult)

	fuseStart := time.Now()
	topK := rc.TopK
	fused := fusion.Merge(execResult.Results, g.fusionWeights, topK)
	fusionElapsed := time.Since(fuseStart)

	synthStart := time.Now()
	answer, providers, synthWarnings := g.synthesize(r.Context(), query, fused, req, traceID)
	synthElapsed := time.Since(synthStart)

	warnings := append(append([]string{}, execResult.Warnings...), synthWarnings...)

	wireSources := make([]WireSource, 0, len(fused))
	for _, s := range fused {
		wireSources = append(wireSources, toWireSource(s))
	}

	resp := SearchResponse{
		TraceID:   traceID,
		Answer:    answer,
		Sources:   wireSources,
		Providers: providers,
		Timings: Timings{
			Web:       laneLatencyMS(execResult, lane.Web),
			Vector:    laneLatencyMS(execResult, lane.Vector),
			KG:        laneLatencyMS(execResult, lane.KG),
			Fusion:    fusionElapsed.Milliseconds(),
			Synthesis: synthElapsed.Milliseconds(),
			Total:     time.Since(laneStart).Milliseconds(),
		},
		Warnings: warnings,
	}
	g.history.Record(r.Context(), historystore.Entry{
		TraceID:        traceID,
		Query:          query,
		Answer:         answer,
		ProviderID:     providers.LLM,
		ModelID:        providers.Model,
		SourceCount:    len(wireSources),
		TotalLatencyMS: resp.Timings.Total,
	})
	writeJSON(w, http.StatusOK, resp, g.logger)
}

func laneLatencyMS(res lane.ExecuteResult, name lane.Name) int64 {
	if r, ok := res.Results[name]; ok {
		return r.LatencyMS
	}
	return 0
}

func (g *Gateway) recordLaneMetrics(res lane.ExecuteResult) {
	if g.metrics == nil {
		return
	}
	for _, name := range lane.OrderedLanes {
		r, ok := res.Results[name]
		if !ok {
			continue
		}
		g.metrics.LaneLatencyMS.WithLabelValues(string(name)).Observe(float64(r.LatencyMS))
		down := r.Status == lane.StatusError || r.Status == lane.StatusTimeout
		degraded := r.Status == lane.StatusDisabled
		g.metrics.LaneStatus.WithLabelValues(string(name)).Set(metricsLaneGauge(down, degraded))
	}
}

func metricsLaneGauge(down, degraded bool) float64 {
	switch {
	case down:
		return 0
	case degraded:
		return 1
	default:
		return 2
	}
}

// synthesize selects a provider/model via the Scoring Router and asks it
// to answer query grounded on the fused sources, caching the completion
// by idempotency key so an identical retried request skips the upstream
// call (SPEC_FULL.md supplemental features).
func (g *Gateway) synthesize(ctx context.Context, query string, fused []source.Source, req QueryRequest, traceID string) (string, ProvidersUsed, []string) {
	prompt := buildSynthesisPrompt(query, fused)
	tokens := g.router.EstimateTokens(prompt)
	sel := g.router.Select(provider.SelectionInput{QueryText: query}, tokens, traceID)

	var warnings []string

	var idemKey string
	if g.idempotency != nil {
		if key, err := g.idempotency.GenerateKey(sel.ModelID, prompt, req.MaxTokens, req.Temperature); err == nil {
			idemKey = key
			if cached, ok, err := g.idempotency.Get(ctx, key); err == nil && ok {
				if g.metrics != nil {
					g.metrics.CacheHitsTotal.WithLabelValues().Inc()
				}
				var resp llmclient.Response
				if err := json.Unmarshal(cached, &resp); err == nil {
					return resp.Content, ProvidersUsed{LLM: sel.ProviderID, Model: sel.ModelID}, nil
				}
			}
			if g.metrics != nil {
				g.metrics.CacheMissesTotal.WithLabelValues().Inc()
			}
		}
	}

	resp, err := g.callProvider(ctx, sel, prompt, req, traceID)
	if err != nil {
		warnings = append(warnings, "synthesis_fallback:"+sel.ProviderID)
		stub := g.router.Select(provider.SelectionInput{}, 0, traceID)
		fallback := provider.Selection{ProviderID: "local_stub", ModelID: stub.ModelID}
		resp, err = g.callProvider(ctx, fallback, prompt, req, traceID)
		if err != nil {
			return "", ProvidersUsed{LLM: "local_stub", Model: "stub-v1"}, append(warnings, "synthesis_unavailable")
		}
		sel = fallback
	}

	if g.idempotency != nil && idemKey != "" {
		_ = g.idempotency.Set(ctx, idemKey, resp, time.Hour)
	}

	return resp.Content, ProvidersUsed{LLM: sel.ProviderID, Model: sel.ModelID}, warnings
}

func (g *Gateway) callProvider(ctx context.Context, sel provider.Selection, prompt string, req QueryRequest, traceID string) (llmclient.Response, error) {
	client := g.clients.Get(sel.ProviderID)
	b := g.breakers.Get("provider:" + sel.ProviderID)

	var resp llmclient.Response
	callErr := b.Call(ctx, func(ctx context.Context) error {
		return g.retryer.Do(ctx, func(ctx context.Context) error {
			start := time.Now()
			r, err := client.Complete(ctx, llmclient.Request{
				TraceID:     traceID,
				Model:       sel.ModelID,
				MaxTokens:   req.MaxTokens,
				Temperature: req.Temperature,
				Messages: []llmclient.Message{
					{Role: "system", Content: synthesisSystemPrompt},
					{Role: "user", Content: prompt},
				},
			})
			elapsed := time.Since(start)
			g.recordProviderResult(sel.ProviderID, err == nil, elapsed)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	})
	return resp, callErr
}

func (g *Gateway) recordProviderResult(providerID string, success bool, elapsed time.Duration) {
	kind := provider.ErrKindOther
	if !success {
		kind = provider.ErrKindUpstream
	}
	g.registry.RecordResult(providerID, success, float64(elapsed.Milliseconds()), kind)
	if g.metrics == nil {
		return
	}
	g.metrics.ProviderRequestsTotal.WithLabelValues(providerID).Inc()
	g.metrics.ProviderLatencyMS.WithLabelValues(providerID).Observe(float64(elapsed.Milliseconds()))
	if !success {
		g.metrics.ProviderErrorsTotal.WithLabelValues(providerID).Inc()
	}
}

const synthesisSystemPrompt = "You answer the user's query using only the numbered sources provided. " +
	"Cite sources inline as [n]. If the sources don't answer the query, say so plainly."

func buildSynthesisPrompt(query string, fused []source.Source) string {
	var b strings.Builder
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nSources:\n")
	for i, s := range fused {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, s.Title, s.Snippet)
	}
	return b.String()
}
