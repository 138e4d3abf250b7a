// Command gatewayd runs the retrieval gateway: the Lane Orchestrator,
// Scoring Router, Guided-Prompt Engine, Streaming Manager, and Warmup
// Manager wired behind the Gateway's HTTP/SSE surface.
//
// Usage:
//
//	gatewayd serve                      # start the server
//	gatewayd serve --config gateway.yaml
//	gatewayd version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sourcelane/gateway/config"
	"github.com/sourcelane/gateway/datastore"
	"github.com/sourcelane/gateway/fusion"
	"github.com/sourcelane/gateway/gateway"
	"github.com/sourcelane/gateway/guidedprompt"
	"github.com/sourcelane/gateway/historystore"
	"github.com/sourcelane/gateway/internal/cache"
	"github.com/sourcelane/gateway/internal/migration"
	"github.com/sourcelane/gateway/internal/pool"
	"github.com/sourcelane/gateway/internal/ratelimit"
	"github.com/sourcelane/gateway/internal/sanitize"
	"github.com/sourcelane/gateway/internal/server"
	"github.com/sourcelane/gateway/internal/telemetry"
	"github.com/sourcelane/gateway/lane"
	"github.com/sourcelane/gateway/llm/embedding"
	"github.com/sourcelane/gateway/llmclient"
	"github.com/sourcelane/gateway/observability"
	"github.com/sourcelane/gateway/provider"
	"github.com/sourcelane/gateway/provider/breaker"
	"github.com/sourcelane/gateway/provider/idempotency"
	"github.com/sourcelane/gateway/provider/retry"
	"github.com/sourcelane/gateway/rag"
	"github.com/sourcelane/gateway/source"
	"github.com/sourcelane/gateway/warmup"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("gatewayd %s (built %s)\n", Version, BuildTime)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gatewayd - deadline-bounded retrieval gateway

Usage:
  gatewayd <command> [options]

Commands:
  serve     Start the gateway server
  migrate   Apply or roll back history-store schema migrations
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Migrate subcommands:
  migrate up      Apply all pending migrations
  migrate down     Roll back the last migration
  migrate status   Show applied/pending migration status`)
}

// runMigrate applies schema migrations to the opt-in history store. There
// is nothing to migrate unless datastore.history_dsn is configured.
func runMigrate(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: gatewayd migrate <up|down|status> [--config path]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	cfg := config.MustLoad(*configPath)
	m, err := migration.NewMigratorFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	ctx := context.Background()

	switch args[0] {
	case "up":
		err = cli.RunUp(ctx)
	case "down":
		err = cli.RunDown(ctx)
	case "status":
		err = cli.RunStatus(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand: %s\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", args[0], err)
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := config.MustLoad(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting gateway", zap.String("version", Version), zap.String("build_time", BuildTime))

	ctx, cancelBoot := context.WithCancel(context.Background())
	defer cancelBoot()

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	if otelProviders != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelProviders.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", zap.Error(err))
			}
		}()
	}

	registry, err := provider.LoadCatalog(cfg.Catalog.Path, cfg.Providers, logger)
	if err != nil {
		logger.Fatal("load provider catalog", zap.Error(err))
	}

	breakers := breaker.NewRegistry(nil, logger)
	router := provider.NewRouter(registry, breakers, logger)

	clients, err := llmclient.BuildSet(ctx, cfg.Providers, logger)
	if err != nil {
		logger.Fatal("build llm client set", zap.Error(err))
	}

	workerPool := pool.NewGoroutinePool(poolConfigFor(cfg))
	defer workerPool.Close()

	webLane := buildWebLane(cfg, workerPool, logger)
	vectorLane := buildVectorLane(cfg, workerPool, logger)
	kgLane := buildKGLane(cfg, clients, workerPool, logger)

	orchestrator := lane.NewOrchestrator(webLane, vectorLane, kgLane, logger)

	metrics := observability.New("gateway", prometheus.DefaultRegisterer)
	uptimeCtx, cancelUptime := context.WithCancel(context.Background())
	defer cancelUptime()
	go observability.TrackUptime(uptimeCtx, metrics, 15*time.Second)

	limiter := ratelimit.New(context.Background(), ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimitRPM,
		Burst:             cfg.Server.RateLimitBurst,
		BlockFor:          cfg.Server.RateLimitBlockFor,
		VisitorIdleTTL:    10 * time.Minute,
		SweepInterval:     time.Minute,
	}, logger)

	sanitizer, err := sanitize.New(nil)
	if err != nil {
		logger.Fatal("build sanitizer", zap.Error(err))
	}

	idem := idempotency.NewMemoryManager(logger)
	retryer := retry.New(retry.DefaultPolicy(), logger)

	budget := newDailyBudget(50.0)
	gp := guidedprompt.New(router, clients, intentConfidenceHeuristic, budget, logger)

	warmupMgr := warmup.New(warmupSteps(webLane, vectorLane, kgLane, registry), logger)

	history, err := historystore.Open(cfg.Datastore.HistoryDSN, logger)
	if err != nil {
		logger.Warn("query history disabled: failed to open history store", zap.Error(err))
	}
	defer func() {
		if err := history.Close(); err != nil {
			logger.Warn("failed to close history store", zap.Error(err))
		}
	}()

	gw := gateway.NewGateway(gateway.Dependencies{
		Config:        cfg,
		Logger:        logger,
		Registry:      registry,
		Breakers:      breakers,
		Router:        router,
		Orchestrator:  orchestrator,
		FusionWeights: fusion.DefaultWeights,
		GuidedPrompt:  gp,
		Clients:       clients,
		Warmup:        warmupMgr,
		Metrics:       metrics,
		Limiter:       limiter,
		Sanitizer:     sanitizer,
		Idempotency:   idem,
		Retryer:       retryer,
		Gatherer:      prometheus.DefaultGatherer,
		History:       history,
	})

	srv := server.NewManager(gw.Routes(), server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()
	logger.Info("gateway stopped")
}

func poolConfigFor(cfg *config.Config) pool.GoroutinePoolConfig {
	pc := pool.DefaultGoroutinePoolConfig()
	if cfg.Server.WorkerPoolSize > 0 {
		pc.MaxWorkers = cfg.Server.WorkerPoolSize
	}
	return pc
}

// buildWebLane prefers a Meilisearch-backed searcher when configured,
// falling back to a stub that always reports no results so the lane
// still answers within its deadline rather than panicking on a nil
// dependency.
func buildWebLane(cfg *config.Config, p *pool.GoroutinePool, logger *zap.Logger) *lane.WebLane {
	var search lane.SearchFunc
	if cfg.Datastore.MeilisearchURL != "" {
		searcher := datastore.NewMeilisearchSearcher(datastore.MeilisearchConfig{
			BaseURL:   cfg.Datastore.MeilisearchURL,
			MasterKey: cfg.Datastore.MeilisearchMasterKey,
			Index:     "documents",
		}, logger)
		if cfg.Datastore.RedisCacheAddr != "" {
			mgr, err := cache.NewManager(cache.Config{Addr: cfg.Datastore.RedisCacheAddr}, logger)
			if err != nil {
				logger.Warn("redis cache unavailable, falling back to in-process web cache", zap.Error(err))
				cached := datastore.NewCachedWebSearcher(searcher.Search, time.Minute)
				search = cached.Search
			} else {
				cached := datastore.NewRedisCachedWebSearcher(searcher.Search, mgr, time.Minute, logger)
				search = cached.Search
			}
		} else {
			cached := datastore.NewCachedWebSearcher(searcher.Search, time.Minute)
			search = cached.Search
		}
	} else {
		search = noopWebSearch
	}
	return lane.NewWebLane(search, p, logger)
}

func noopWebSearch(ctx context.Context, query string, maxResults int) ([]source.Source, error) {
	return nil, nil
}

// noopEmbedder and noopVectorSearcher back the Vector Lane when no
// embedding provider or vector store is configured, so the lane still
// answers StatusOK with an empty result set instead of panicking on a
// nil dependency.
type noopEmbedder struct{}

func (noopEmbedder) Embed(ctx context.Context, query string) ([]float64, error) {
	return nil, nil
}

type noopVectorSearcher struct{}

func (noopVectorSearcher) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]source.Source, error) {
	return nil, nil
}

// buildVectorLane wires an embedding provider and Qdrant searcher when
// both are configured; otherwise the lane reports empty results rather
// than failing warmup.
func buildVectorLane(cfg *config.Config, p *pool.GoroutinePool, logger *zap.Logger) *lane.VectorLane {
	var embedder lane.Embedder = noopEmbedder{}
	if cfg.Providers.OpenAIAPIKey != "" {
		embedder = datastore.NewEmbeddingAdapter(embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey: cfg.Providers.OpenAIAPIKey,
			BaseURL: cfg.Providers.OpenAIBaseURL,
		}))
	}

	var store lane.VectorSearcher = noopVectorSearcher{}
	if cfg.Datastore.VectorDBURL != "" {
		store = datastore.NewQdrantSearcher(datastore.QdrantConfig{
			BaseURL:    cfg.Datastore.VectorDBURL,
			APIKey:     cfg.Datastore.VectorDBAPIKey,
			Collection: "documents",
			Timeout:    2 * time.Second,
		}, logger)
	}

	return lane.NewVectorLane(embedder, store, p, logger)
}

// buildKGLane wires the in-memory knowledge graph and an LLM-backed
// entity extractor that always calls the "openai" client with
// gpt-4o-mini (the client set hands back the local stub when no OpenAI
// client is configured), so the KG Lane's own extraction call stays
// cheap. The Scoring Router is not consulted for this call.
func buildKGLane(cfg *config.Config, clients *llmclient.Set, p *pool.GoroutinePool, logger *zap.Logger) *lane.KGLane {
	graph := rag.NewKnowledgeGraph(logger)
	store := datastore.NewKnowledgeGraphStore(graph)

	extractorProvider := clients.Get("openai")
	extractor := datastore.NewLLMEntityExtractor(extractorProvider, "gpt-4o-mini", logger)

	return lane.NewKGLane(extractor, store, p, logger)
}

func warmupSteps(web *lane.WebLane, vector *lane.VectorLane, kg *lane.KGLane, registry *provider.Registry) []warmup.Step {
	return []warmup.Step{
		{
			Name: "web_lane_probe",
			Run: func(ctx context.Context) error {
				web.Search(ctx, lane.Request{QueryText: "warmup", TopK: 1, DeadlineMS: 1500})
				return nil
			},
		},
		{
			Name: "vector_lane_probe",
			Run: func(ctx context.Context) error {
				vector.Search(ctx, lane.Request{QueryText: "warmup", TopK: 1, DeadlineMS: 2000})
				return nil
			},
		},
		{
			Name: "kg_lane_probe",
			Run: func(ctx context.Context) error {
				kg.Search(ctx, lane.Request{QueryText: "warmup", TopK: 1, DeadlineMS: 1500})
				return nil
			},
		},
		{
			Name: "provider_catalog_loaded",
			Run: func(ctx context.Context) error {
				if len(registry.ListAvailable()) == 0 {
					return fmt.Errorf("no providers available")
				}
				return nil
			},
		},
	}
}

// intentConfidenceHeuristic estimates query-intent confidence from
// length and punctuation alone — a stand-in for a trained classifier,
// cheap enough to run inline on the refinement hot path.
func intentConfidenceHeuristic(queryText string) float64 {
	n := len(queryText)
	switch {
	case n == 0:
		return 0
	case n < 12:
		return 0.3
	case n < 40:
		return 0.6
	default:
		return 0.85
	}
}

// dailyBudget is a minimal in-memory guidedprompt.BudgetTracker: it
// resets its remaining fraction once every 24h. A multi-instance
// deployment would back this with a shared counter instead.
type dailyBudget struct {
	mu        sync.Mutex
	limitUSD  float64
	spentUSD  float64
	resetAt   time.Time
}

func newDailyBudget(limitUSD float64) *dailyBudget {
	return &dailyBudget{limitUSD: limitUSD, resetAt: time.Now().Add(24 * time.Hour)}
}

func (b *dailyBudget) RemainingFraction() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	if b.limitUSD <= 0 {
		return 1
	}
	remaining := 1 - (b.spentUSD / b.limitUSD)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *dailyBudget) Charge(usd float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	b.spentUSD += usd
}

func (b *dailyBudget) rolloverLocked() {
	if time.Now().After(b.resetAt) {
		b.spentUSD = 0
		b.resetAt = time.Now().Add(24 * time.Hour)
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
