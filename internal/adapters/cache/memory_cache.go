package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryCacheEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// MemoryCacheBackend is an in-process TTL cache with true LRU eviction.
// Get promotes the entry to most recently used, so a capped cache keeps
// the entries callers actually come back for. Used standalone in
// single-node deployments and as the fallback tier behind Redis.
type MemoryCacheBackend struct {
	mu       sync.Mutex
	maxSize  int
	order    *list.List
	entries  map[string]*list.Element
	nowFn    func() time.Time
}

func NewMemoryCacheBackend(maxSize int) *MemoryCacheBackend {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryCacheBackend{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (b *MemoryCacheBackend) Get(ctx context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, ok := b.entries[key]
	if !ok {
		return "", false, nil
	}
	entry := elem.Value.(*memoryCacheEntry)
	if !b.nowFn().Before(entry.expiresAt) {
		b.removeLocked(elem)
		return "", false, nil
	}
	b.order.MoveToFront(elem)
	return entry.value, true, nil
}

func (b *MemoryCacheBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	expiresAt := b.nowFn().Add(ttl)
	if elem, ok := b.entries[key]; ok {
		entry := elem.Value.(*memoryCacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		b.order.MoveToFront(elem)
		return nil
	}

	b.evictExpiredLocked()
	for len(b.entries) >= b.maxSize {
		b.removeLocked(b.order.Back())
	}

	elem := b.order.PushFront(&memoryCacheEntry{key: key, value: value, expiresAt: expiresAt})
	b.entries[key] = elem
	return nil
}

func (b *MemoryCacheBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elem, ok := b.entries[key]; ok {
		b.removeLocked(elem)
	}
	return nil
}

func (b *MemoryCacheBackend) HealthCheck(ctx context.Context) bool {
	return true
}

// Len reports live (unexpired) entries.
func (b *MemoryCacheBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictExpiredLocked()
	return len(b.entries)
}

func (b *MemoryCacheBackend) evictExpiredLocked() {
	now := b.nowFn()
	for elem := b.order.Back(); elem != nil; {
		prev := elem.Prev()
		if entry := elem.Value.(*memoryCacheEntry); !now.Before(entry.expiresAt) {
			b.removeLocked(elem)
		}
		elem = prev
	}
}

func (b *MemoryCacheBackend) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	entry := elem.Value.(*memoryCacheEntry)
	delete(b.entries, entry.key)
	b.order.Remove(elem)
}
