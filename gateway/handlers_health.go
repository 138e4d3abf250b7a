package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleHealth implements GET /health (spec.md §6): a liveness probe
// reporting process uptime and whether warmup has completed.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if g.warmupMgr != nil && !g.warmupMgr.IsReady() {
		status = "warming_up"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		UptimeS: int64(time.Since(g.startTime).Seconds()),
		Warmup:  g.warmupMgr == nil || g.warmupMgr.IsReady(),
	}, g.logger)
}

// handleHealthProviders implements GET /health/providers (spec.md §6):
// per-provider health, combining the Provider Registry's EWMA bookkeeping
// with the Circuit Breaker's own state machine — the registry's own
// Health.State field is never mutated past closed, so the breaker
// registry is the source of truth for circuit state.
func (g *Gateway) handleHealthProviders(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]ProviderHealthEntry)
	for id, h := range g.registry.AllHealth() {
		snap := g.breakers.Get("provider:" + id).Snapshot()
		entry := ProviderHealthEntry{
			State:               snap.State.String(),
			EWMALatencyMS:       h.EWMALatencyMS,
			ConsecutiveFailures: snap.ConsecutiveFailures,
		}
		if !snap.OpenUntilTS.IsZero() {
			ts := snap.OpenUntilTS.Unix()
			entry.OpenUntilTS = &ts
		}
		out[id] = entry
	}
	writeJSON(w, http.StatusOK, out, g.logger)
}

// handleWarmup implements POST /warmup (spec.md §4.6): triggers the
// Warmup Manager, coalescing concurrent callers onto one run.
func (g *Gateway) handleWarmup(w http.ResponseWriter, r *http.Request) {
	report := g.warmupMgr.Warmup(r.Context())
	steps := make([]string, 0, len(report.Steps))
	for _, s := range report.Steps {
		if s.Err != nil {
			steps = append(steps, s.Name+":failed")
			continue
		}
		steps = append(steps, s.Name+":ok")
	}
	writeJSON(w, http.StatusOK, WarmupResponse{Ready: report.Ready, Steps: steps}, g.logger)
}

// handleMetrics implements GET /metrics (spec.md §6): the Prometheus text
// exposition format served by promhttp, grounded on
// internal/metrics/collector.go's use of the same handler.
func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(g.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
