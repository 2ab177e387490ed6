package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultStockAttempts = 5
	defaultStockBackoff  = 20 * time.Millisecond
)

// conflictRetry re-runs an optimistic read-modify-write while it loses version races.
// Backoff grows linearly with the attempt number.
type conflictRetry struct {
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func newConflictRetry(attempts int, backoff time.Duration) conflictRetry {
	if attempts <= 0 {
		attempts = defaultStockAttempts
	}
	if backoff < 0 {
		backoff = defaultStockBackoff
	}
	return conflictRetry{attempts: attempts, backoff: backoff, sleep: sleepContext}
}

// do returns the first non-retryable result. Exhaustion returns the last conflict error,
// never success.
func (r conflictRetry) do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == r.attempts {
			break
		}
		if sleepErr := r.sleep(ctx, time.Duration(attempt)*r.backoff); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", r.attempts, err)
}

func isStockConflict(err error) bool {
	return errors.Is(err, ErrStockConflict)
}

func isOrderConflict(err error) bool {
	return errors.Is(err, ErrOrderConflict)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
