package lane

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sourcelane/gateway/internal/ctxkeys"
)

// EnabledSet selects which lanes the orchestrator fans out to.
type EnabledSet struct {
	Web    bool
	Vector bool
	KG     bool
}

// Deadlines carries the per-lane default timeouts (clamped to the
// remaining overall budget at execute time).
type Deadlines struct {
	Web    time.Duration
	Vector time.Duration
	KG     time.Duration
}

// ExecuteResult is the Lane Orchestrator's output (spec.md §4.5).
type ExecuteResult struct {
	// Results is keyed by lane name; iteration order for callers that
	// range deterministically is fixed via OrderedLanes, not map order.
	Results        map[Name]Result
	Warnings       []string
	TotalLatencyMS int64
}

// OrderedLanes is the fixed iteration order spec.md §4.5 requires for
// reproducibility: {web, vector, kg}.
var OrderedLanes = []Name{Web, Vector, KG}

// Orchestrator fans out to enabled lanes in parallel under a total
// deadline (spec.md §4.5). Lane deadlines are clamped to
// min(lane_default, remaining_budget).
type Orchestrator struct {
	web    Adapter
	vector Adapter
	kg     Adapter
	logger *zap.Logger
}

// NewOrchestrator creates the Lane Orchestrator over the three lane
// adapters.
func NewOrchestrator(web, vector, kg Adapter, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{web: web, vector: vector, kg: kg, logger: logger.With(zap.String("component", "lane_orchestrator"))}
}

// Execute runs the enabled lanes concurrently, awaiting all completions
// up to deadlineTotal. Lanes that do not finish in time are marked
// timeout and their late results are discarded — the per-lane
// deadline.Run primitive already prevents a late write from racing into
// the result map, since each lane writes only its own slot.
func (o *Orchestrator) Execute(ctx context.Context, query string, enabled EnabledSet, deadlines Deadlines, deadlineTotal time.Duration) ExecuteResult {
	start := time.Now()
	traceID, _ := ctxkeys.TraceID(ctx)

	overallCtx, cancel := context.WithTimeout(ctx, deadlineTotal)
	defer cancel()

	type job struct {
		name     Name
		adapter  Adapter
		enabled  bool
		deadline time.Duration
	}
	jobs := []job{
		{Web, o.web, enabled.Web, deadlines.Web},
		{Vector, o.vector, enabled.Vector, deadlines.Vector},
		{KG, o.kg, enabled.KG, deadlines.KG},
	}

	results := make(map[Name]Result, len(jobs))
	done := make(chan struct {
		name   Name
		result Result
	}, len(jobs))

	// errgroup only owns fan-out (each goroutine always returns nil —
	// a lane fault becomes a Result, never a Go error); completion is
	// still collected via the done channel below so the coordinator can
	// stop waiting the instant the overall deadline fires, without
	// blocking on every goroutine the way g.Wait() would.
	g, groupCtx := errgroup.WithContext(overallCtx)

	running := 0
	for _, j := range jobs {
		if !j.enabled {
			results[j.name] = Result{Lane: j.name, Status: StatusDisabled}
			continue
		}
		running++
		j := j
		g.Go(func() error {
			remaining := time.Until(start.Add(deadlineTotal))
			laneDeadline := j.deadline
			if remaining < laneDeadline {
				laneDeadline = remaining
			}
			res := j.adapter.Search(groupCtx, Request{
				QueryText:  query,
				TopK:       TopKFor(j.name),
				DeadlineMS: int(laneDeadline.Milliseconds()),
				TraceID:    traceID,
			})
			done <- struct {
				name   Name
				result Result
			}{j.name, res}
			return nil
		})
	}

	for i := 0; i < running; i++ {
		select {
		case r := <-done:
			results[r.name] = r.result
		case <-overallCtx.Done():
			i = running // break out; remaining lanes are marked below
		}
	}

	var warnings []string
	for _, name := range OrderedLanes {
		r, ok := results[name]
		if !ok {
			r = Result{Lane: name, Status: StatusTimeout}
			results[name] = r
		}
		switch r.Status {
		case StatusTimeout:
			warnings = append(warnings, "lane_timeout:"+string(name))
		case StatusError:
			warnings = append(warnings, "lane_error:"+string(name))
		}
	}

	total := time.Since(start).Milliseconds()
	o.logger.Info("lane fan-out complete", zap.String("trace_id", traceID), zap.Int64("total_latency_ms", total), zap.Strings("warnings", warnings))

	return ExecuteResult{Results: results, Warnings: warnings, TotalLatencyMS: total}
}
