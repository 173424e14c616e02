package util

import (
	"context"
	"fmt"
	"time"
)

// SleepContext blocks for d or until ctx is done. A non-positive d only
// checks ctx.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// PollUntil calls fn up to attempts times, interval apart, until it reports
// done. An error from fn is retried like a not-done result; the last one is
// wrapped in the give-up error.
func PollUntil(ctx context.Context, attempts int, interval time.Duration, fn func() (done bool, err error)) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := SleepContext(ctx, interval); err != nil {
				return err
			}
		}
		done, err := fn()
		if err != nil {
			lastErr = err
			continue
		}
		if done {
			return nil
		}
	}
	if lastErr != nil {
		return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
	}
	return fmt.Errorf("gave up after %d attempts", attempts)
}
