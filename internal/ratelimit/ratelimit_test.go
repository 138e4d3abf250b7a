package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowPermitsBurstThenBlocks(t *testing.T) {
	cfg := Config{RequestsPerMinute: 60, Burst: 5, BlockFor: 50 * time.Millisecond, VisitorIdleTTL: time.Minute, SweepInterval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(ctx, cfg, nil)

	for i := 0; i < cfg.Burst; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "burst request %d should be allowed", i)
	}
	assert.False(t, l.Allow("1.2.3.4"), "request beyond burst should be blocked")
}

func TestAllowUnblocksAfterBlockDuration(t *testing.T) {
	cfg := Config{RequestsPerMinute: 6000, Burst: 1, BlockFor: 10 * time.Millisecond, VisitorIdleTTL: time.Minute, SweepInterval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(ctx, cfg, nil)

	assert.True(t, l.Allow("5.6.7.8"))
	assert.False(t, l.Allow("5.6.7.8"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, l.Allow("5.6.7.8"))
}

func TestAllowTracksKeysIndependently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Burst = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := New(ctx, cfg, nil)

	assert.True(t, l.Allow("ip-a"))
	assert.True(t, l.Allow("ip-b"))
	assert.Equal(t, 2, l.VisitorCount())
}
