// Package breaker implements the Circuit Breaker (C2): a per-key
// closed/open/half-open state machine applied independently to each LLM
// provider and each retrieval lane (spec.md §4.2).
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker's current position in the state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes one breaker instance. Defaults match spec.md §4.2 exactly:
// three consecutive failures opens the circuit, half-open waits five
// minutes before a single trial call.
type Config struct {
	Threshold        int
	Timeout          time.Duration
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
	OnStateChange    func(key string, from, to State)
}

// DefaultConfig returns the thresholds spec.md §4.2 names.
func DefaultConfig() *Config {
	return &Config{
		Threshold:        3,
		Timeout:          15 * time.Second,
		ResetTimeout:     5 * time.Minute,
		HalfOpenMaxCalls: 1,
	}
}

var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls in half-open state")
)

// Breaker guards a single key (one provider or one lane).
type Breaker struct {
	key    string
	config *Config
	logger *zap.Logger

	mu                sync.RWMutex
	state             State
	failureCount      int
	lastFailureTime   time.Time
	openUntil         time.Time
	halfOpenCallCount int
}

func newBreaker(key string, config *Config, logger *zap.Logger) *Breaker {
	return &Breaker{key: key, config: config, logger: logger, state: StateClosed}
}

// Call executes fn, routed through the breaker's state machine and a
// per-call timeout. The underlying goroutine is not forcibly killed on
// timeout — fn must itself respect ctx.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- fn(callCtx)
	}()

	select {
	case <-callCtx.Done():
		b.afterCall(false)
		return fmt.Errorf("circuit call timed out: %w", callCtx.Err())
	case err := <-resultCh:
		success := err == nil
		b.afterCall(success)
		return err
	}
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Now().After(b.openUntil) {
			b.setStateLocked(StateHalfOpen)
			b.halfOpenCallCount = 0
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil
	default:
		return fmt.Errorf("unknown breaker state: %v", b.state)
	}
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccessLocked()
	} else {
		b.onFailureLocked()
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.setStateLocked(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0
	}
}

func (b *Breaker) onFailureLocked() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.openUntil = time.Now().Add(b.config.ResetTimeout)
			b.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		b.openUntil = time.Now().Add(b.config.ResetTimeout)
		b.setStateLocked(StateOpen)
		b.halfOpenCallCount = 0
	}
}

func (b *Breaker) setStateLocked(newState State) {
	old := b.state
	b.state = newState
	if b.config.OnStateChange != nil && old != newState {
		go b.config.OnStateChange(b.key, old, newState)
	}
}

// State returns the breaker's current state without mutating it.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Snapshot returns the fields exposed on GET /health/providers.
type Snapshot struct {
	State               State
	ConsecutiveFailures int
	LastFailureTS       time.Time
	OpenUntilTS         time.Time
}

// Snapshot returns the breaker's state for observability endpoints.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.failureCount,
		LastFailureTS:       b.lastFailureTime,
		OpenUntilTS:         b.openUntil,
	}
}

// Reset forces the breaker back to closed. Used only by tests and admin
// tooling, never by the request path.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setStateLocked(StateClosed)
	b.failureCount = 0
	b.halfOpenCallCount = 0
}

// Registry hands out one Breaker per key, creating it lazily. Rate-limit,
// circuit-breaker, and provider-health tables are intentionally
// process-global (spec.md §9); this is the narrow API that serializes
// access per key instead of exposing the internal map.
type Registry struct {
	config *Config
	logger *zap.Logger
	mu     sync.Mutex
	byKey  map[string]*Breaker
}

// NewRegistry creates a breaker registry. A nil config uses DefaultConfig.
func NewRegistry(config *Config, logger *zap.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{config: config, logger: logger, byKey: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byKey[key]
	if !ok {
		b = newBreaker(key, r.config, r.logger)
		r.byKey[key] = b
	}
	return b
}

// Sweep evicts closed breakers whose last recorded failure is older than
// idleFor, bounding memory per spec.md §5. A breaker that has never
// recorded a failure is not evicted.
func (r *Registry) Sweep(idleFor time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for key, b := range r.byKey {
		b.mu.RLock()
		idle := b.state == StateClosed && time.Since(b.lastFailureTime) > idleFor && !b.lastFailureTime.IsZero()
		b.mu.RUnlock()
		if idle {
			delete(r.byKey, key)
			evicted++
		}
	}
	return evicted
}
