package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sourcelane/gateway/config"
	"github.com/sourcelane/gateway/fusion"
	"github.com/sourcelane/gateway/guidedprompt"
	"github.com/sourcelane/gateway/internal/ratelimit"
	"github.com/sourcelane/gateway/internal/sanitize"
	"github.com/sourcelane/gateway/lane"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/observability"
	"github.com/sourcelane/gateway/provider"
	"github.com/sourcelane/gateway/provider/breaker"
	"github.com/sourcelane/gateway/provider/idempotency"
	"github.com/sourcelane/gateway/provider/retry"
	"github.com/sourcelane/gateway/source"
	"github.com/sourcelane/gateway/warmup"
)

// fakeLane always returns a single fixed item so handler tests have a
// deterministic fused result to assert on.
type fakeLane struct {
	name lane.Name
	item source.Source
}

func (l fakeLane) Name() lane.Name { return l.name }

func (l fakeLane) Search(ctx context.Context, req lane.Request) lane.Result {
	return lane.Result{Lane: l.name, Status: lane.StatusOK, Items: []source.Source{l.item}, LatencyMS: 1}
}

// newTestGateway builds a Gateway wired entirely over in-memory/stub
// components, mirroring guidedprompt/engine_test.go's newTestEngine
// fixture: a catalog path that doesn't exist resolves to the always
// available local_stub provider, so handlers exercise real code paths
// without any network dependency.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Retrieval.TotalTimeout = cfg.Retrieval.TotalTimeout
	cfg.Server.TrustedHosts = nil
	cfg.Server.CORSAllowedOrigins = []string{"https://example.com"}

	registry, err := provider.LoadCatalog("testdata/does-not-exist.yaml", cfg.Providers, nil)
	require.NoError(t, err)
	breakers := breaker.NewRegistry(nil, nil)
	router := provider.NewRouter(registry, breakers, nil)

	clients, err := llmclient.BuildSet(context.Background(), cfg.Providers, nil)
	require.NoError(t, err)

	orchestrator := lane.NewOrchestrator(
		fakeLane{name: lane.Web, item: source.Source{ID: "w1", Title: "web result", URL: "https://web.example.com/1", Snippet: "web snippet", OriginLane: source.LaneWeb, Score: 0.9}},
		fakeLane{name: lane.Vector, item: source.Source{ID: "v1", Title: "vector result", URL: "https://vector.example.com/1", Snippet: "vector snippet", OriginLane: source.LaneVector, Score: 0.8}},
		fakeLane{name: lane.KG, item: source.Source{ID: "k1", Title: "kg result", Snippet: "kg snippet", OriginLane: source.LaneKG, EntityRef: "k1", Score: 0.7}},
		nil,
	)

	limiter := ratelimit.New(context.Background(), ratelimit.Config{RequestsPerMinute: 1000, Burst: 1000, VisitorIdleTTL: 0, SweepInterval: time.Hour}, nil)
	sanitizer, err := sanitize.New(nil)
	require.NoError(t, err)

	gp := guidedprompt.New(router, clients, nil, nil, nil)
	warmupMgr := warmup.New(nil, nil)

	return NewGateway(Dependencies{
		Config:        cfg,
		Registry:      registry,
		Breakers:      breakers,
		Router:        router,
		Orchestrator:  orchestrator,
		FusionWeights: fusion.DefaultWeights,
		GuidedPrompt:  gp,
		Clients:       clients,
		Warmup:        warmupMgr,
		Metrics:       observability.New("gateway_test", nil),
		Limiter:       limiter,
		Sanitizer:     sanitizer,
		Idempotency:   idempotency.NewMemoryManager(nil),
		Retryer:       retry.New(retry.DefaultPolicy(), nil),
	})
}
