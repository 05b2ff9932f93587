package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

// RateLimitInfo reports the current quota state for a key.
type RateLimitInfo struct {
	Limit         int `json:"limit"`
	Remaining     int `json:"remaining"`
	WindowSeconds int `json:"window_seconds"`
}

// RateLimiter enforces a sliding-window quota per identity. When the primary
// backend errors the check transparently retries against the in-memory
// fallback; when both fail the request is allowed through. Failing open is
// deliberate: a broken limiter must not take down all traffic.
type RateLimiter struct {
	primary  ports.RateLimitBackend
	fallback ports.RateLimitBackend
	limit    int
	window   time.Duration
}

// NewRateLimiter wires the backends. fallback may be nil when the primary is
// already in-process.
func NewRateLimiter(primary, fallback ports.RateLimitBackend, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		primary:  primary,
		fallback: fallback,
		limit:    limit,
		window:   window,
	}
}

// limiterKey builds the composite identity key: user id plus, when the
// caller authenticated with an API key, its hash.
func limiterKey(userID, apiKeyHash string) string {
	if apiKeyHash == "" {
		return userID
	}
	return userID + ":" + apiKeyHash
}

// Check admits or rejects one request. A rejection is a *domain.RateLimitError;
// backend trouble is logged, never surfaced.
func (l *RateLimiter) Check(ctx context.Context, userID, apiKeyHash string) error {
	key := limiterKey(userID, apiKeyHash)

	allowed, count, err := l.primary.CheckAndIncrement(ctx, key, l.limit, l.window)
	if err == nil {
		if !allowed {
			l.logRejected(ctx, key, count)
			return &domain.RateLimitError{Limit: l.limit, Window: l.window}
		}
		return nil
	}

	slog.Default().WarnContext(ctx, "primary rate limiter failed, using fallback",
		"module", "rate_limiter",
		"layer", "application",
		"operation", "check_and_increment",
		"outcome", "degraded",
		"error", err.Error(),
	)

	if l.fallback != nil {
		allowed, count, err = l.fallback.CheckAndIncrement(ctx, key, l.limit, l.window)
		if err == nil {
			if !allowed {
				l.logRejected(ctx, key, count)
				return &domain.RateLimitError{Limit: l.limit, Window: l.window}
			}
			return nil
		}
	}

	// Fail open: both backends are down, so the protective layer steps aside
	// rather than rejecting all traffic.
	slog.Default().WarnContext(ctx, "all rate limit backends failed, allowing request",
		"module", "rate_limiter",
		"layer", "application",
		"operation", "check_and_increment",
		"outcome", "fail_open",
		"key", key,
	)
	return nil
}

// Info returns limit/remaining/window for a key. On backend failure it
// reports the full quota rather than erroring.
func (l *RateLimiter) Info(ctx context.Context, userID, apiKeyHash string) RateLimitInfo {
	key := limiterKey(userID, apiKeyHash)
	info := RateLimitInfo{
		Limit:         l.limit,
		Remaining:     l.limit,
		WindowSeconds: int(l.window.Seconds()),
	}

	remaining, err := l.primary.GetRemaining(ctx, key, l.limit, l.window)
	if err != nil && l.fallback != nil {
		remaining, err = l.fallback.GetRemaining(ctx, key, l.limit, l.window)
	}
	if err != nil {
		slog.Default().ErrorContext(ctx, "rate limit info lookup failed",
			"module", "rate_limiter",
			"layer", "application",
			"operation", "get_remaining",
			"outcome", "failure",
			"error", err.Error(),
		)
		return info
	}
	info.Remaining = remaining
	return info
}

// Reset clears the recorded window for a key on every backend. Administrative
// operation.
func (l *RateLimiter) Reset(ctx context.Context, userID, apiKeyHash string) error {
	key := limiterKey(userID, apiKeyHash)
	err := l.primary.Reset(ctx, key)
	if l.fallback != nil {
		if fbErr := l.fallback.Reset(ctx, key); err == nil {
			err = fbErr
		}
	}
	return err
}

func (l *RateLimiter) logRejected(ctx context.Context, key string, count int) {
	slog.Default().WarnContext(ctx, "rate limit exceeded",
		"module", "rate_limiter",
		"layer", "application",
		"operation", "check_and_increment",
		"outcome", "rejected",
		"key", key,
		"count", count,
		"limit", l.limit,
	)
}
