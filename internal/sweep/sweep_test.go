package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunInvokesRegisteredTasksOnTheirInterval(t *testing.T) {
	var calls int32
	s := NewScheduler(nil)
	s.Register("table-a", 5*time.Millisecond, func() int {
		atomic.AddInt32(&calls, 1)
		return 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&calls)), 2)
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	s := NewScheduler(nil)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
