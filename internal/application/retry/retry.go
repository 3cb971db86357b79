// Package retry runs remote operations with a bounded number of attempts.
package retry

import (
	"context"
	"time"
)

// Notify is called before each retry with the attempt number about to run
// (2, 3, ...) and the error of the attempt that just failed.
type Notify func(attempt int, err error)

// sleep is swapped in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, the budget is spent, the policy marks the
// error as final, or ctx ends. The last error of op is returned unchanged.
func Do(ctx context.Context, p Policy, op func(context.Context) error, notify Notify) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, notify)
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), notify Notify) (T, error) {
	p = p.normalize()

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if notify != nil {
				notify(attempt, lastErr)
			}
			if err := sleep(ctx, p.Delay(attempt-1)); err != nil {
				return zero, lastErr
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !p.retryable(err) {
			break
		}
	}
	return zero, lastErr
}
