// Package ratelimit implements the Gateway's per-IP token-bucket limiter
// (spec.md §4.10: 60 req/min, 10 req/s burst, 5 min block), grounded on
// cmd/agentflow/middleware.go's visitor-map RateLimiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the limiter. Defaults match spec.md §4.10 exactly.
type Config struct {
	RequestsPerMinute int
	Burst             int
	BlockFor          time.Duration
	VisitorIdleTTL    time.Duration
	SweepInterval     time.Duration
}

// DefaultConfig returns the gateway's mandated limits.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Burst:             10,
		BlockFor:          5 * time.Minute,
		VisitorIdleTTL:    10 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

type visitor struct {
	limiter     *rate.Limiter
	lastSeen    time.Time
	blockedUntil time.Time
}

// Limiter tracks one token bucket per key (typically client IP, or
// tenant ID for TenantRateLimiter-style use). Exceeding the bucket once
// enters a hard block for Config.BlockFor, independent of token refill.
type Limiter struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
}

// New creates a Limiter and starts its background eviction sweeper, which
// stops when ctx is canceled.
func New(ctx context.Context, cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{cfg: cfg, logger: logger.With(zap.String("component", "rate_limiter")), visitors: make(map[string]*visitor)}
	go l.sweepLoop(ctx)
	return l
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.cfg.VisitorIdleTTL && now.After(v.blockedUntil) {
			delete(l.visitors, key)
		}
	}
}

// Allow reports whether a request for key may proceed. Once a key
// exceeds its bucket, it is hard-blocked for BlockFor regardless of
// subsequent token refill (spec.md §8 property 6: "after the block
// duration, requests succeed again").
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(l.cfg.RequestsPerMinute)/60.0), l.cfg.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()

	if time.Now().Before(v.blockedUntil) {
		l.mu.Unlock()
		return false
	}

	allowed := v.limiter.Allow()
	if !allowed {
		v.blockedUntil = time.Now().Add(l.cfg.BlockFor)
	}
	l.mu.Unlock()

	if !allowed {
		l.logger.Info("rate limit block engaged", zap.String("key", key))
	}
	return allowed
}

// VisitorCount returns the number of tracked keys, for tests and metrics.
func (l *Limiter) VisitorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
