// Package deadline provides a single run-with-timeout-and-error-capture
// primitive shared by the retrieval lanes (web, vector, kg) and the
// Guided-Prompt Engine, replacing the ad-hoc context.WithTimeout plus
// goroutine-and-select pattern each of them would otherwise repeat.
package deadline

import (
	"context"
	"errors"
	"time"
)

// ErrTimedOut is returned when task does not finish before the deadline.
var ErrTimedOut = errors.New("deadline: task did not finish in time")

// Run executes task under a derived context bounded by timeout, returning
// the task's result or ErrTimedOut if the deadline elapses first. task is
// expected to respect ctx cancellation; Run does not forcibly stop it —
// the goroutine running task keeps executing until it returns, but its
// result is discarded once the deadline has passed.
func Run[T any](ctx context.Context, timeout time.Duration, task func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		val, err := task(runCtx)
		resultCh <- outcome{val: val, err: err}
	}()

	select {
	case <-runCtx.Done():
		return zero, ErrTimedOut
	case r := <-resultCh:
		return r.val, r.err
	}
}

// RunVoid is Run for tasks with no result value.
func RunVoid(ctx context.Context, timeout time.Duration, task func(ctx context.Context) error) error {
	_, err := Run(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
	return err
}
