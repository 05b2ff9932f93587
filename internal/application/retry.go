package application

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// Operation is a cancellable unit of work retried by RetryPolicy and
// guarded by CircuitBreaker.
type Operation func(ctx context.Context) error

// RetryPolicy retries an operation with exponential backoff and jitter.
// The delay before attempt n+1 is min(BaseDelay*2^n, MaxDelay) scaled by a
// uniform factor in [0.5, 1.0] so synchronized clients spread out.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Non-retryable errors propagate immediately.
	Retryable func(error) bool

	sleepFn func(ctx context.Context, d time.Duration) error
	randFn  func() float64
}

// NewRetryPolicy builds a policy with the default transient-error predicate,
// which retries everything except context cancellation.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		sleepFn: sleepContext,
		randFn:  rand.Float64,
	}
}

// Execute runs op up to MaxAttempts times. The last attempt's error is
// returned as-is so callers keep the original cause.
func (p RetryPolicy) Execute(ctx context.Context, op Operation) error {
	sleep := p.sleepFn
	if sleep == nil {
		sleep = sleepContext
	}
	random := p.randFn
	if random == nil {
		random = rand.Float64
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.BaseDelay << uint(attempt)
		if delay > p.MaxDelay || delay <= 0 {
			delay = p.MaxDelay
		}
		delay = time.Duration(float64(delay) * (0.5 + 0.5*random()))

		slog.Default().WarnContext(ctx, "operation retry scheduled",
			"module", "retry",
			"layer", "application",
			"operation", "execute",
			"outcome", "retry",
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr.Error(),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// Wrap returns op with the retry policy applied, for call sites that prefer
// composing operations over invoking Execute inline.
func (p RetryPolicy) Wrap(op Operation) Operation {
	return func(ctx context.Context) error {
		return p.Execute(ctx, op)
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
