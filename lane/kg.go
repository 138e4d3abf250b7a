package lane

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sourcelane/gateway/apperr"
	"github.com/sourcelane/gateway/internal/deadline"
	"github.com/sourcelane/gateway/internal/pool"
	"github.com/sourcelane/gateway/source"
)

// EntityExtractor performs the short entity-extraction call on the query
// text before the graph lookup (spec.md §4.4).
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, query string) ([]string, error)
}

// Triple mirrors rag/graph_rag.go's subject-predicate-object shape.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// GraphStore fetches entities and their direct relationships, grounded
// on rag/graph_rag.go's KnowledgeGraph node/edge model.
type GraphStore interface {
	FetchEntities(ctx context.Context, names []string, limit int) ([]GraphEntity, error)
	FetchRelationships(ctx context.Context, entityIDs []string, limit int) ([]Triple, error)
}

// GraphEntity is one resolved knowledge-graph node.
type GraphEntity struct {
	ID         string
	Label      string
	Type       string
	Properties map[string]any
}

const (
	maxEntities      = 4
	maxRelationships = 2
)

// KGLane extracts entities from the query, then fetches up to 4 entities
// plus 2 direct relationships from a graph store (spec.md §4.4).
type KGLane struct {
	extractor EntityExtractor
	store     GraphStore
	pool      *pool.GoroutinePool
	logger    *zap.Logger
}

// NewKGLane creates the knowledge-graph lane adapter.
func NewKGLane(extractor EntityExtractor, store GraphStore, p *pool.GoroutinePool, logger *zap.Logger) *KGLane {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KGLane{extractor: extractor, store: store, pool: p, logger: logger.With(zap.String("lane", string(KG)))}
}

func (l *KGLane) Name() Name { return KG }

func (l *KGLane) Search(ctx context.Context, req Request) Result {
	start := time.Now()
	topK := req.TopK
	if topK <= 0 || topK > TopKFor(KG) {
		topK = TopKFor(KG)
	}

	items, err := deadline.Run(ctx, time.Duration(req.DeadlineMS)*time.Millisecond, func(innerCtx context.Context) ([]source.Source, error) {
		return pool.RunBlocking(innerCtx, l.pool, func(poolCtx context.Context) ([]source.Source, error) {
			return l.searchGraph(poolCtx, req.QueryText, topK)
		})
	})

	latency := Elapsed(start)
	switch {
	case err == deadline.ErrTimedOut:
		l.logger.Warn("kg lane timed out", zap.String("trace_id", req.TraceID), zap.Int64("latency_ms", latency))
		return Result{Lane: KG, Status: StatusTimeout, LatencyMS: latency, ErrorKind: string(apperr.KindLaneTimeout)}
	case err != nil:
		if len(items) > 0 {
			return Result{Lane: KG, Status: StatusOK, Items: clamp(items, topK), LatencyMS: latency}
		}
		l.logger.Warn("kg lane error", zap.String("trace_id", req.TraceID), zap.Error(err))
		return Result{Lane: KG, Status: StatusError, LatencyMS: latency, ErrorKind: string(apperr.KindLaneError)}
	default:
		return Result{Lane: KG, Status: StatusOK, Items: clamp(items, topK), LatencyMS: latency}
	}
}

func (l *KGLane) searchGraph(ctx context.Context, query string, topK int) ([]source.Source, error) {
	names, err := l.extractor.ExtractEntities(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("entity extraction: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	entities, err := l.store.FetchEntities(ctx, names, maxEntities)
	if err != nil {
		return nil, fmt.Errorf("fetch entities: %w", err)
	}

	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	relationships, err := l.store.FetchRelationships(ctx, ids, maxRelationships)
	if err != nil {
		relationships = nil
	}

	out := make([]source.Source, 0, len(entities)+len(relationships))
	for _, e := range entities {
		out = append(out, source.Source{
			ID:         e.ID,
			Title:      e.Label,
			OriginLane: source.LaneKG,
			EntityRef:  e.ID,
			Score:      0.8,
			Metadata:   e.Properties,
		})
	}
	for _, t := range relationships {
		out = append(out, source.Source{
			ID:         fmt.Sprintf("%s-%s-%s", t.Subject, t.Predicate, t.Object),
			Title:      fmt.Sprintf("%s %s %s", t.Subject, t.Predicate, t.Object),
			OriginLane: source.LaneKG,
			EntityRef:  t.Subject,
			Score:      0.6,
		})
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
