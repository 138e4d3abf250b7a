// Package observability wires the gateway's metrics, tracing, and
// structured logging (C11, spec.md §4.11). Grounded on
// internal/metrics/collector.go's promauto Counter/Histogram/GaugeVec
// pattern, extended with the exact metric names spec.md §4.11 enumerates.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the gateway exposes at
// /metrics (spec.md §4.11).
type Metrics struct {
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPErrorsTotal    *prometheus.CounterVec
	SSEConnectionsTotal *prometheus.CounterVec
	SSEHeartbeatsTotal *prometheus.CounterVec
	ProviderRequestsTotal *prometheus.CounterVec
	ProviderErrorsTotal   *prometheus.CounterVec
	CacheHitsTotal     *prometheus.CounterVec
	CacheMissesTotal   *prometheus.CounterVec
	RateLimitBlocksTotal *prometheus.CounterVec
	InjectionAttemptsTotal *prometheus.CounterVec

	HTTPRequestDurationMS *prometheus.HistogramVec
	SSEDurationMS         *prometheus.HistogramVec
	LaneLatencyMS         *prometheus.HistogramVec
	ProviderLatencyMS     *prometheus.HistogramVec

	LaneStatus           *prometheus.GaugeVec
	ProviderCircuitState *prometheus.GaugeVec
	SystemUptimeSeconds  prometheus.Gauge
}

// msBuckets matches the millisecond scale spec.md §4.11's latency
// histograms are reported in (prometheus.DefBuckets is tuned for
// second-scale observations).
var msBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

// New registers every collector under namespace (registerer lets tests
// use a private prometheus.NewRegistry instead of the global default).
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_errors_total", Help: "Total HTTP error responses.",
		}, []string{"method", "path", "status"}),
		SSEConnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sse_connections_total", Help: "Total SSE sessions opened.",
		}, []string{"outcome"}),
		SSEHeartbeatsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sse_heartbeats_total", Help: "Total SSE heartbeat events emitted.",
		}, nil),
		ProviderRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_requests_total", Help: "Total LLM provider requests.",
		}, []string{"provider"}),
		ProviderErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_errors_total", Help: "Total LLM provider request errors.",
		}, []string{"provider"}),
		CacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total", Help: "Total idempotency cache hits.",
		}, nil),
		CacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total", Help: "Total idempotency cache misses.",
		}, nil),
		RateLimitBlocksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limit_blocks_total", Help: "Total requests rejected by the rate limiter.",
		}, nil),
		InjectionAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "injection_attempts_total", Help: "Total queries flagged by the sanitizer.",
		}, nil),

		HTTPRequestDurationMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_ms", Help: "HTTP request duration in milliseconds.", Buckets: msBuckets,
		}, []string{"method", "path"}),
		SSEDurationMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sse_duration_ms", Help: "SSE session duration in milliseconds.", Buckets: msBuckets,
		}, []string{"final_state"}),
		LaneLatencyMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "lane_latency_ms", Help: "Retrieval lane latency in milliseconds.", Buckets: msBuckets,
		}, []string{"lane"}),
		ProviderLatencyMS: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "provider_latency_ms", Help: "LLM provider call latency in milliseconds.", Buckets: msBuckets,
		}, []string{"provider"}),

		LaneStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lane_status", Help: "Per-lane status: 0=down,1=degraded,2=up.",
		}, []string{"lane"}),
		ProviderCircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "provider_circuit_state", Help: "Per-provider circuit state: 0=closed,1=half_open,2=open.",
		}, []string{"provider"}),
		SystemUptimeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "system_uptime_seconds", Help: "Seconds since process start.",
		}),
	}
	return m
}

// LaneGaugeValue maps a lane.Status-like down/degraded/up reading onto
// spec.md §4.11's 0/1/2 scale.
func LaneGaugeValue(down, degraded bool) float64 {
	switch {
	case down:
		return 0
	case degraded:
		return 1
	default:
		return 2
	}
}
