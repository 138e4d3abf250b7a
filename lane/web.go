package lane

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/apperr"
	"github.com/sourcelane/gateway/internal/deadline"
	"github.com/sourcelane/gateway/internal/pool"
	"github.com/sourcelane/gateway/source"
)

// SearchFunc decouples the web lane from a specific search-API client,
// grounded on rag/web_retrieval.go's WebSearchFunc injection idiom.
type SearchFunc func(ctx context.Context, query string, maxResults int) ([]source.Source, error)

// WebLane issues a web search and snippet-fetches only if time remains
// (spec.md §4.4). Blocking calls run on a worker pool so the lane's
// deadline is enforceable even if SearchFunc ignores ctx cancellation.
type WebLane struct {
	search SearchFunc
	pool   *pool.GoroutinePool
	logger *zap.Logger
}

// NewWebLane creates the web lane adapter.
func NewWebLane(search SearchFunc, p *pool.GoroutinePool, logger *zap.Logger) *WebLane {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebLane{search: search, pool: p, logger: logger.With(zap.String("lane", string(Web)))}
}

func (l *WebLane) Name() Name { return Web }

func (l *WebLane) Search(ctx context.Context, req Request) Result {
	start := time.Now()
	topK := req.TopK
	if topK <= 0 || topK > TopKFor(Web) {
		topK = TopKFor(Web)
	}

	items, err := deadline.Run(ctx, time.Duration(req.DeadlineMS)*time.Millisecond, func(innerCtx context.Context) ([]source.Source, error) {
		return pool.RunBlocking(innerCtx, l.pool, func(poolCtx context.Context) ([]source.Source, error) {
			return l.search(poolCtx, req.QueryText, topK)
		})
	})

	latency := Elapsed(start)
	switch {
	case err == deadline.ErrTimedOut:
		l.logger.Warn("web lane timed out", zap.String("trace_id", req.TraceID), zap.Int64("latency_ms", latency))
		return Result{Lane: Web, Status: StatusTimeout, LatencyMS: latency, ErrorKind: string(apperr.KindLaneTimeout)}
	case err != nil:
		if len(items) > 0 {
			return Result{Lane: Web, Status: StatusOK, Items: clamp(items, topK), LatencyMS: latency}
		}
		l.logger.Warn("web lane error", zap.String("trace_id", req.TraceID), zap.Error(err))
		return Result{Lane: Web, Status: StatusError, LatencyMS: latency, ErrorKind: string(apperr.KindLaneError)}
	default:
		return Result{Lane: Web, Status: StatusOK, Items: clamp(items, topK), LatencyMS: latency}
	}
}

func clamp(items []source.Source, topK int) []source.Source {
	if len(items) > topK {
		return items[:topK]
	}
	return items
}
