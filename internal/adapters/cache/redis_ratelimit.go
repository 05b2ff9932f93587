package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// slidingWindowScript trims expired entries, counts the window and admits
// the request in a single atomic round trip. Scores and the window are in
// microseconds; ARGV[4] keeps members unique when two requests share a
// timestamp. Returns {allowed, count-after}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('EXPIRE', key, math.ceil(window / 1000000) + 1)
    return {1, count + 1}
end
return {0, count}
`)

// RedisRateLimitBackend enforces a sliding window over a sorted set per key.
type RedisRateLimitBackend struct {
	client *redis.Client
	nowFn  func() time.Time
}

func NewRedisRateLimitBackend(client *redis.Client) *RedisRateLimitBackend {
	return &RedisRateLimitBackend{
		client: client,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (b *RedisRateLimitBackend) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	now := b.nowFn()
	nowMicros := now.UnixMicro()
	member := fmt.Sprintf("%d-%d", nowMicros, now.Nanosecond())

	raw, err := slidingWindowScript.Run(ctx, b.client,
		[]string{rateLimitKeyPrefix + key},
		nowMicros, window.Microseconds(), limit, member,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(raw) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", raw)
	}
	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	return allowed == 1, int(count), nil
}

func (b *RedisRateLimitBackend) GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	now := b.nowFn().UnixMicro()
	fullKey := rateLimitKeyPrefix + key

	pipe := b.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "0", fmt.Sprintf("%d", now-window.Microseconds()))
	card := pipe.ZCard(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit count: %w", err)
	}

	remaining := limit - int(card.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (b *RedisRateLimitBackend) Reset(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, rateLimitKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}
