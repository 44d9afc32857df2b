package telegramhelper

import (
	"context"
	"fmt"
	"time"
)

// callWithTimeout runs a blocking go-tdlib request and gives up when timeout
// elapses or ctx is done. The request itself cannot be interrupted; its
// result is discarded when it arrives late.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer:
		return zero, fmt.Errorf("tdlib request exceeded %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
