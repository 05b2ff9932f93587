package ports

import (
	"context"
	"time"
)

// RateLimitBackend counts requests per key over a trailing window.
// CheckAndIncrement must be atomic for concurrent callers sharing a key:
// when one slot remains, exactly one of two racing calls may be admitted.
// A rejected call is not recorded and does not shrink the remaining quota.
type RateLimitBackend interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, count int, err error)
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}
