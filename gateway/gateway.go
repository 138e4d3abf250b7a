package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sourcelane/gateway/config"
	"github.com/sourcelane/gateway/fusion"
	"github.com/sourcelane/gateway/guidedprompt"
	"github.com/sourcelane/gateway/historystore"
	"github.com/sourcelane/gateway/internal/ratelimit"
	"github.com/sourcelane/gateway/internal/sanitize"
	"github.com/sourcelane/gateway/lane"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/observability"
	"github.com/sourcelane/gateway/provider"
	"github.com/sourcelane/gateway/provider/breaker"
	"github.com/sourcelane/gateway/provider/idempotency"
	"github.com/sourcelane/gateway/provider/retry"
	"github.com/sourcelane/gateway/warmup"
)

// Dependencies are the already-built components Gateway wires together.
// cmd/gatewayd/main.go constructs each of these and hands them here; the
// Gateway itself builds none of them.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Registry      *provider.Registry
	Breakers      *breaker.Registry
	Router        *provider.Router
	Orchestrator  *lane.Orchestrator
	FusionWeights fusion.Weights
	GuidedPrompt  *guidedprompt.Engine
	Clients       *llmclient.Set
	Warmup        *warmup.Manager
	Metrics       *observability.Metrics
	Limiter       *ratelimit.Limiter
	Sanitizer     *sanitize.Sanitizer
	Idempotency   idempotency.Manager
	Retryer       *retry.Retryer
	Gatherer      prometheus.Gatherer
	History       *historystore.Store
}

// Gateway is the Gateway (C10): the HTTP/SSE surface wiring every other
// component together behind the middleware stack spec.md §4.10 specifies.
type Gateway struct {
	cfg           *config.Config
	logger        *zap.Logger
	registry      *provider.Registry
	breakers      *breaker.Registry
	router        *provider.Router
	orchestrator  *lane.Orchestrator
	fusionWeights fusion.Weights
	guidedPrompt  *guidedprompt.Engine
	clients       *llmclient.Set
	warmupMgr     *warmup.Manager
	metrics       *observability.Metrics
	limiter       *ratelimit.Limiter
	sanitizer     *sanitize.Sanitizer
	idempotency   idempotency.Manager
	retryer       *retry.Retryer
	gatherer      prometheus.Gatherer
	history       *historystore.Store
	startTime     time.Time
}

// NewGateway builds a Gateway over deps. Any nil Logger falls back to a
// no-op logger, matching the rest of this module's constructors.
func NewGateway(deps Dependencies) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Gateway{
		cfg:           deps.Config,
		logger:        logger.With(zap.String("component", "gateway")),
		registry:      deps.Registry,
		breakers:      deps.Breakers,
		router:        deps.Router,
		orchestrator:  deps.Orchestrator,
		fusionWeights: deps.FusionWeights,
		guidedPrompt:  deps.GuidedPrompt,
		clients:       deps.Clients,
		warmupMgr:     deps.Warmup,
		metrics:       deps.Metrics,
		limiter:       deps.Limiter,
		sanitizer:     deps.Sanitizer,
		idempotency:   deps.Idempotency,
		retryer:       deps.Retryer,
		gatherer:      gatherer,
		history:       deps.History,
		startTime:     time.Now(),
	}
}

// Routes builds the full handler: route dispatch wrapped by the middleware
// chain (outer to inner): panic recovery, trusted-host check, JWT auth,
// request-size limit, rate limiter, content sanitizer, trace-ID injector,
// security-headers writer, CORS, tracing span, request logger, then
// dispatch.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", g.handleSearch)
	mux.HandleFunc("GET /stream/search", g.handleStreamSearch)
	mux.HandleFunc("POST /guided-prompt/refine", g.handleGuidedPromptRefine)
	mux.HandleFunc("GET /metrics", g.handleMetrics)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/providers", g.handleHealthProviders)
	mux.HandleFunc("POST /warmup", g.handleWarmup)

	return chain(mux,
		recovery(g.logger),
		trustedHosts(g.cfg.Server.TrustedHosts),
		jwtAuth(g.cfg.Auth, g.logger),
		requestSizeLimit(g.cfg.Server.MaxRequestBytes),
		rateLimit(g.limiter, g.metrics),
		contentSanitizer(g.sanitizer, g.metrics),
		traceInjector(),
		securityHeaders(),
		cors(g.cfg.Server.CORSAllowedOrigins),
		observability.Trace("gateway"),
		requestLogger(g.logger, g.metrics),
	)
}
