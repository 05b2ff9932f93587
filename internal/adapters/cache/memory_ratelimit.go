package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryRateLimitBackend keeps per-key request timestamps and enforces the
// same sliding-window semantics as the Redis backend, without the shared
// state. Used standalone in single-node deployments and as the fallback
// tier when Redis is unreachable.
type MemoryRateLimitBackend struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	nowFn   func() time.Time
}

func NewMemoryRateLimitBackend() *MemoryRateLimitBackend {
	return &MemoryRateLimitBackend{
		windows: make(map[string][]time.Time),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (b *MemoryRateLimitBackend) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn()
	live := b.pruneLocked(key, now, window)
	if len(live) >= limit {
		return false, len(live), nil
	}

	live = append(live, now)
	b.windows[key] = live
	return true, len(live), nil
}

func (b *MemoryRateLimitBackend) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.pruneLocked(key, b.nowFn(), window)
	remaining := limit - len(live)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (b *MemoryRateLimitBackend) Reset(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.windows, key)
	return nil
}

// pruneLocked drops timestamps older than the window and stores the
// compacted slice. Caller holds the mutex.
func (b *MemoryRateLimitBackend) pruneLocked(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	stamps := b.windows[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	if len(live) == 0 {
		delete(b.windows, key)
		return nil
	}
	b.windows[key] = live
	return live
}
