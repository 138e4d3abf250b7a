package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/apperr"
	"github.com/sourcelane/gateway/fusion"
	"github.com/sourcelane/gateway/internal/ctxkeys"
	"github.com/sourcelane/gateway/lane"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/provider"
	"github.com/sourcelane/gateway/stream"
)

// handleStreamSearch implements GET /stream/search (spec.md §6, §4.9):
// runs the same lane fan-out and fusion as POST /search, then streams the
// synthesis call's tokens as SSE events via the Streaming Manager.
func (g *Gateway) handleStreamSearch(w http.ResponseWriter, r *http.Request) {
	traceID, _ := ctxkeys.TraceID(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeAppError(w, apperr.New(apperr.KindValidation, "query parameter is required"), traceID, g.logger)
		return
	}

	sink, err := stream.NewHTTPSink(w)
	if err != nil {
		writeAppError(w, apperr.New(apperr.KindInternal, "streaming unsupported by this connection"), traceID, g.logger)
		return
	}
	w.Header().Set("X-Trace-ID", traceID)

	rc := g.cfg.Retrieval
	enabled := lane.EnabledSet{Web: rc.EnableWeb, Vector: rc.EnableVector, KG: rc.EnableKG}
	deadlines := lane.Deadlines{Web: rc.WebTimeout, Vector: rc.VectorTimeout, KG: rc.KGTimeout}

	execResult := g.orchestrator.Execute(r.Context(), query, enabled, deadlines, rc.TotalTimeout)
	g.recordLaneMetrics(execResult)
	fused := fusion.Merge(execResult.Results, g.fusionWeights, rc.TopK)

	prompt := buildSynthesisPrompt(query, fused)
	tokens := g.router.EstimateTokens(prompt)
	sel := g.router.Select(provider.SelectionInput{QueryText: query}, tokens, traceID)

	streamCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := g.clients.Get(sel.ProviderID)
	start := time.Now()
	chunks, err := client.Stream(streamCtx, llmclient.Request{
		TraceID: traceID,
		Model:   sel.ModelID,
		Messages: []llmclient.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		g.recordProviderResult(sel.ProviderID, false, time.Since(start))
		if g.metrics != nil {
			g.metrics.SSEConnectionsTotal.WithLabelValues("error").Inc()
		}
		sink.Send(stream.Event{Type: "error", TraceID: traceID, ErrorKind: string(apperr.KindProviderError), Retryable: apperr.KindProviderError.Retryable()})
		return
	}

	if g.metrics != nil {
		g.metrics.SSEConnectionsTotal.WithLabelValues("opened").Inc()
	}

	session := stream.New(traceID, sink, g.logger)
	summary := session.Run(chunks, cancel, stream.CompleteMeta{ProviderID: sel.ProviderID, ModelID: sel.ModelID})
	g.recordProviderResult(sel.ProviderID, summary.Err == nil, time.Since(start))

	if g.metrics != nil {
		g.metrics.SSEDurationMS.WithLabelValues(string(summary.FinalState)).Observe(float64(time.Since(start).Milliseconds()))
	}
	g.logger.Info("stream session ended",
		zap.String("trace_id", traceID),
		zap.String("final_state", string(summary.FinalState)),
		zap.Int("citations", summary.Citations),
	)
}
