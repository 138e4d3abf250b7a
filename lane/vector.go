package lane

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/apperr"
	"github.com/sourcelane/gateway/internal/deadline"
	"github.com/sourcelane/gateway/internal/pool"
	"github.com/sourcelane/gateway/source"
)

// Embedder computes a query embedding, grounded on
// llm/embedding/types.go's EmbeddingRequest/Response shape, narrowed to
// the single-query path this lane needs.
type Embedder interface {
	Embed(ctx context.Context, query string) ([]float64, error)
}

// VectorSearcher performs approximate-nearest-neighbor search, grounded
// on rag/vector_store.go's VectorStore.Search.
type VectorSearcher interface {
	Search(ctx context.Context, queryEmbedding []float64, topK int) ([]source.Source, error)
}

// VectorLane computes a query embedding (cached by hash) and searches a
// vector store for the nearest documents (spec.md §4.4).
type VectorLane struct {
	embedder Embedder
	store    VectorSearcher
	pool     *pool.GoroutinePool
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string][]float64
}

// NewVectorLane creates the vector lane adapter.
func NewVectorLane(embedder Embedder, store VectorSearcher, p *pool.GoroutinePool, logger *zap.Logger) *VectorLane {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorLane{
		embedder: embedder,
		store:    store,
		pool:     p,
		logger:   logger.With(zap.String("lane", string(Vector))),
		cache:    make(map[string][]float64),
	}
}

func (l *VectorLane) Name() Name { return Vector }

func (l *VectorLane) cachedEmbed(ctx context.Context, query string) ([]float64, error) {
	sum := sha256.Sum256([]byte(query))
	key := hex.EncodeToString(sum[:])

	l.mu.Lock()
	if v, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return v, nil
	}
	l.mu.Unlock()

	vec, err := l.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[key] = vec
	l.mu.Unlock()
	return vec, nil
}

func (l *VectorLane) Search(ctx context.Context, req Request) Result {
	start := time.Now()
	topK := req.TopK
	if topK <= 0 || topK > TopKFor(Vector) {
		topK = TopKFor(Vector)
	}

	items, err := deadline.Run(ctx, time.Duration(req.DeadlineMS)*time.Millisecond, func(innerCtx context.Context) ([]source.Source, error) {
		return pool.RunBlocking(innerCtx, l.pool, func(poolCtx context.Context) ([]source.Source, error) {
			vec, err := l.cachedEmbed(poolCtx, req.QueryText)
			if err != nil {
				return nil, err
			}
			return l.store.Search(poolCtx, vec, topK)
		})
	})

	latency := Elapsed(start)
	switch {
	case err == deadline.ErrTimedOut:
		l.logger.Warn("vector lane timed out", zap.String("trace_id", req.TraceID), zap.Int64("latency_ms", latency))
		return Result{Lane: Vector, Status: StatusTimeout, LatencyMS: latency, ErrorKind: string(apperr.KindLaneTimeout)}
	case err != nil:
		if len(items) > 0 {
			return Result{Lane: Vector, Status: StatusOK, Items: clamp(items, topK), LatencyMS: latency}
		}
		l.logger.Warn("vector lane error", zap.String("trace_id", req.TraceID), zap.Error(err))
		return Result{Lane: Vector, Status: StatusError, LatencyMS: latency, ErrorKind: string(apperr.KindLaneError)}
	default:
		return Result{Lane: Vector, Status: StatusOK, Items: clamp(items, topK), LatencyMS: latency}
	}
}
