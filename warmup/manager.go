// Package warmup implements the Warmup Manager (C6, spec.md §4.6): an
// idempotent, coalescing one-shot initialization of embedders,
// connections, and lane clients.
//
// Grounded on internal/pool/goroutine_pool.go's CAS-guarded
// trySpawnWorker — that pattern stops two goroutines from racing to grow
// the pool past its cap; here it stops two concurrent requests from
// racing to run warmup twice. A sync.Once can't coalesce a caller that
// arrives mid-run with a way to block until that in-flight run finishes,
// so this uses an atomic state flag plus a closed-when-done channel
// instead.
package warmup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type state int32

const (
	stateIdle state = iota
	stateRunning
	stateDone
)

// Step is one idempotent warmup action (load embedding model, open a
// store connection, run a dummy per-lane query, ...).
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepReport records one step's outcome.
type StepReport struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Report is the result of a completed (or attempted) warmup run
// (spec.md §4.6: "warmup() -> WarmupReport").
type Report struct {
	Ready bool
	Steps []StepReport
	Total time.Duration
}

// Manager runs Steps at most once per process; concurrent callers
// coalesce onto the first run's Report (spec.md §4.6).
type Manager struct {
	steps  []Step
	logger *zap.Logger

	st     atomic.Int32
	mu     sync.Mutex
	done   chan struct{}
	report Report
}

// New builds a Manager over the given warmup steps, run in order.
func New(steps []Step, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{steps: steps, logger: logger.With(zap.String("component", "warmup_manager")), done: make(chan struct{})}
}

// IsReady reports whether warmup has completed (spec.md §4.6: "is_ready()
// -> bool").
func (m *Manager) IsReady() bool {
	return state(m.st.Load()) == stateDone
}

// Warmup runs every step exactly once across the process lifetime.
// Concurrent callers block on the same run and receive the same Report;
// a caller that arrives after warmup completed gets the cached Report
// immediately.
func (m *Manager) Warmup(ctx context.Context) Report {
	if state(m.st.Load()) == stateDone {
		return m.report
	}

	if m.st.CompareAndSwap(int32(stateIdle), int32(stateRunning)) {
		m.run(ctx)
		return m.report
	}

	// Another caller is running warmup; wait for it to finish or for our
	// own context to end first.
	select {
	case <-m.done:
		return m.report
	case <-ctx.Done():
		return Report{Ready: false}
	}
}

func (m *Manager) run(ctx context.Context) {
	start := time.Now()
	var reports []StepReport
	ready := true

	for _, step := range m.steps {
		stepStart := time.Now()
		err := step.Run(ctx)
		reports = append(reports, StepReport{Name: step.Name, Err: err, Duration: time.Since(stepStart)})
		if err != nil {
			ready = false
			m.logger.Warn("warmup step failed", zap.String("step", step.Name), zap.Error(err))
		}
	}

	m.mu.Lock()
	m.report = Report{Ready: ready, Steps: reports, Total: time.Since(start)}
	m.mu.Unlock()

	m.st.Store(int32(stateDone))
	close(m.done)
	m.logger.Info("warmup complete", zap.Bool("ready", ready), zap.Duration("total", time.Since(start)))
}
