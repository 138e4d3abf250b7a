package warmup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmupRunsStepsInOrderAndReportsReady(t *testing.T) {
	var calls []string
	var mu sync.Mutex

	m := New([]Step{
		{Name: "embedder", Run: func(ctx context.Context) error {
			mu.Lock()
			calls = append(calls, "embedder")
			mu.Unlock()
			return nil
		}},
		{Name: "vector_store", Run: func(ctx context.Context) error {
			mu.Lock()
			calls = append(calls, "vector_store")
			mu.Unlock()
			return nil
		}},
	}, nil)

	report := m.Warmup(context.Background())
	require.True(t, report.Ready)
	assert.Equal(t, []string{"embedder", "vector_store"}, calls)
	assert.True(t, m.IsReady())
}

func TestWarmupRunsAtMostOnce(t *testing.T) {
	var runs atomic.Int32
	m := New([]Step{
		{Name: "once", Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		}},
	}, nil)

	m.Warmup(context.Background())
	m.Warmup(context.Background())
	m.Warmup(context.Background())

	assert.Equal(t, int32(1), runs.Load())
}

func TestWarmupCoalescesConcurrentCallers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32

	m := New([]Step{
		{Name: "slow", Run: func(ctx context.Context) error {
			runs.Add(1)
			close(started)
			<-release
			return nil
		}},
	}, nil)

	var wg sync.WaitGroup
	reports := make([]Report, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i] = m.Warmup(context.Background())
		}(i)
	}

	<-started
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	for _, r := range reports {
		assert.True(t, r.Ready)
	}
}

func TestWarmupReportsNotReadyOnStepFailure(t *testing.T) {
	m := New([]Step{
		{Name: "broken", Run: func(ctx context.Context) error { return assertErr("boom") }},
	}, nil)

	report := m.Warmup(context.Background())
	assert.False(t, report.Ready)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
