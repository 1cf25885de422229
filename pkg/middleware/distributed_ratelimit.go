package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrWindow increments the window counter, starts the window expiry on the
// first hit, and returns the count with the remaining window in
// milliseconds. A counter left without an expiry is given one.
var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// DistributedRateLimiter is a fixed-window rate limiter on Redis, so the
// budget for a key is shared by every instance
type DistributedRateLimiter struct {
	redis  *redis.Client
	prefix string
	window time.Duration
	limit  atomic.Int64
	now    func() time.Time
}

// NewDistributedRateLimiter creates a Redis-backed limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config RateLimitConfig, prefix string) *DistributedRateLimiter {
	def := DefaultRateLimitConfig()
	if config.Limit < 1 {
		config.Limit = def.Limit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if prefix == "" {
		prefix = "portal:guest"
	}

	rl := &DistributedRateLimiter{
		redis:  redisClient,
		prefix: prefix,
		window: config.Window,
		now:    time.Now,
	}
	rl.limit.Store(int64(config.Limit))
	return rl
}

// CheckAndIncrement counts a request for key. On a Redis error the result
// is allowed and the error is returned for the caller to log.
func (rl *DistributedRateLimiter) CheckAndIncrement(ctx context.Context, key string) (RateLimitResult, error) {
	limit := int(rl.limit.Load())
	now := rl.now()

	reply, err := incrWindow.Run(ctx, rl.redis, []string{rl.key(key)}, rl.window.Milliseconds()).Slice()
	if err != nil {
		return RateLimitResult{Allowed: true, Limit: limit}, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	count, ttl, ok := parseWindowReply(reply)
	if !ok {
		return RateLimitResult{Allowed: true, Limit: limit}, fmt.Errorf("unexpected rate limit script reply: %v", reply)
	}

	return RateLimitResult{
		Allowed: count <= limit,
		Count:   count,
		Limit:   limit,
		ResetAt: now.Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}

// SetLimit changes the per-window limit for this instance
func (rl *DistributedRateLimiter) SetLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("rate limit must be at least 1, got %d", limit)
	}
	rl.limit.Store(int64(limit))
	return nil
}

// Reset clears the window for key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

func parseWindowReply(reply []interface{}) (count int, ttlMS int64, ok bool) {
	if len(reply) != 2 {
		return 0, 0, false
	}
	c, ok1 := reply[0].(int64)
	t, ok2 := reply[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return int(c), t, true
}

func (rl *DistributedRateLimiter) key(key string) string {
	return rl.prefix + ":" + key
}
