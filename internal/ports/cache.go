package ports

import (
	"context"
	"time"
)

// CacheBackend is the low-level key/value contract shared by the Redis and
// in-memory response caches. Get returns ("", false, nil) on a miss; expired
// entries count as misses and are purged lazily by the backend.
type CacheBackend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) bool
}
