package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/promptrelay/chat-api/internal/domain"
	"github.com/promptrelay/chat-api/internal/ports"
)

// CacheService fronts a primary cache backend with an optional in-memory
// fallback. Cache trouble never fails a request: reads degrade to a miss,
// writes to a no-op.
type CacheService struct {
	primary  ports.CacheBackend
	fallback ports.CacheBackend
	ttl      time.Duration
	enabled  bool
}

// NewCacheService wires the backends. fallback may be nil when the primary
// is already in-process.
func NewCacheService(primary, fallback ports.CacheBackend, ttl time.Duration, enabled bool) *CacheService {
	return &CacheService{
		primary:  primary,
		fallback: fallback,
		ttl:      ttl,
		enabled:  enabled,
	}
}

// cacheKey normalizes the prompt so case and surrounding whitespace variants
// share one entry, then hashes it to a fixed-width key.
func cacheKey(prompt string) string {
	normalized := strings.ToLower(strings.TrimSpace(prompt))
	sum := sha256.Sum256([]byte(normalized))
	return "chat:" + hex.EncodeToString(sum[:])[:16]
}

// GetResponse returns the cached response for a prompt, if any. Backend
// errors are absorbed and reported as a miss.
func (s *CacheService) GetResponse(ctx context.Context, prompt string) (string, bool) {
	if !s.enabled {
		return "", false
	}
	key := cacheKey(prompt)

	value, ok, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, ok
	}
	s.logDegraded(ctx, "get", err)
	if s.fallback != nil {
		if value, ok, err = s.fallback.Get(ctx, key); err == nil {
			return value, ok
		}
		s.logFailed(ctx, "get", err)
	}
	return "", false
}

// SetResponse caches a response under the normalized prompt key. Errors are
// absorbed; at worst the next request regenerates the answer.
func (s *CacheService) SetResponse(ctx context.Context, prompt, response string) {
	if !s.enabled {
		return
	}
	key := cacheKey(prompt)

	err := s.primary.Set(ctx, key, response, s.ttl)
	if err == nil {
		return
	}
	s.logDegraded(ctx, "set", err)
	if s.fallback != nil {
		if err = s.fallback.Set(ctx, key, response, s.ttl); err != nil {
			s.logFailed(ctx, "set", err)
		}
	}
}

// Invalidate drops the entry for a prompt from both backends, best effort.
func (s *CacheService) Invalidate(ctx context.Context, prompt string) {
	if !s.enabled {
		return
	}
	key := cacheKey(prompt)
	if err := s.primary.Delete(ctx, key); err != nil {
		s.logDegraded(ctx, "delete", err)
	}
	if s.fallback != nil {
		if err := s.fallback.Delete(ctx, key); err != nil {
			s.logFailed(ctx, "delete", err)
		}
	}
}

// HealthCheck probes each backend independently.
func (s *CacheService) HealthCheck(ctx context.Context) domain.CacheHealth {
	health := domain.CacheHealth{Primary: s.primary.HealthCheck(ctx)}
	if s.fallback != nil {
		health.Fallback = s.fallback.HealthCheck(ctx)
	}
	return health
}

func (s *CacheService) logDegraded(ctx context.Context, op string, err error) {
	slog.Default().WarnContext(ctx, "primary cache failed, using fallback",
		"module", "cache",
		"layer", "application",
		"operation", op,
		"outcome", "degraded",
		"error", err.Error(),
	)
}

func (s *CacheService) logFailed(ctx context.Context, op string, err error) {
	slog.Default().ErrorContext(ctx, "fallback cache failed",
		"module", "cache",
		"layer", "application",
		"operation", op,
		"outcome", "failure",
		"error", err.Error(),
	)
}
