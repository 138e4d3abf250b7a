// Package sweep provides a background eviction scheduler for in-memory
// tables such as the rate-limit, circuit-breaker, and provider-health
// tables (spec.md §5). No package in this module registers a task with it;
// internal/ratelimit runs its own eviction goroutine. Each table knows how
// to sweep itself; this package only owns the ticker loop so that wiring a
// table never means writing new goroutine-and-ticker boilerplate, grounded on
// cmd/agentflow/middleware.go's per-minute visitor-eviction goroutine.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Task is one table's eviction pass. It returns the number of entries
// evicted, used only for logging.
type Task func() int

type entry struct {
	name     string
	interval time.Duration
	task     Task
}

// Scheduler runs a set of sweep tasks, each on its own interval, until
// its context is canceled.
type Scheduler struct {
	logger  *zap.Logger
	entries []entry
}

// NewScheduler creates an empty Scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger.With(zap.String("component", "sweep_scheduler"))}
}

// Register adds a named sweep task running every interval. Call before Run.
func (s *Scheduler) Register(name string, interval time.Duration, task Task) {
	s.entries = append(s.entries, entry{name: name, interval: interval, task: task})
}

// Run starts one ticker goroutine per registered task and blocks until
// ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for _, e := range s.entries {
		go s.runOne(ctx, e)
	}
	<-ctx.Done()
}

func (s *Scheduler) runOne(ctx context.Context, e entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.task(); n > 0 {
				s.logger.Debug("sweep evicted entries", zap.String("table", e.name), zap.Int("evicted", n))
			}
		}
	}
}
