package apierr

import (
	"context"
	"fmt"
	"time"
)

// Backoff describes an exponential retry schedule.
// Zero or negative fields fall back to a single attempt with a 1ms floor.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable filters errors; nil means Retryable from this package.
	Retryable func(error) bool

	// OnRetry, if set, runs before each wait with the failed attempt
	// number (1-based), its error and the upcoming delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (b Backoff) normalized() Backoff {
	b.MaxRetries = max(b.MaxRetries, 0)
	if b.BaseDelay <= 0 {
		b.BaseDelay = time.Millisecond
	}
	b.MaxDelay = max(b.MaxDelay, b.BaseDelay)
	if b.Retryable == nil {
		b.Retryable = Retryable
	}
	return b
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalized()
	d := b.BaseDelay
	for i := 1; i < attempt && d < b.MaxDelay; i++ {
		d *= 2
	}
	return min(d, b.MaxDelay)
}

// Do calls fn until it succeeds, returns a non-retryable error, ctx ends,
// or the retry budget runs out. fn receives the 1-based attempt number.
func Do[T any](ctx context.Context, b Backoff, fn func(attempt int) (T, error)) (T, error) {
	b = b.normalized()

	var zero T
	for attempt := 1; ; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		if !b.Retryable(err) {
			return zero, err
		}
		if attempt > b.MaxRetries {
			return zero, fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		delay := b.Delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
