package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucket throttles printer telemetry per printer using a token bucket
// kept in Redis, so every API replica shares the same budget.
type TokenBucket struct {
	client   *redis.Client
	prefix   string
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenBucket constructs a bucket with the provided capacity/refill. A
// capacity below 1 disables limiting.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		client:   client,
		prefix:   "rl:printer:",
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow consumes a token from printerID's bucket when one is available.
func (b *TokenBucket) Allow(ctx context.Context, printerID string) (bool, error) {
	if b == nil || b.capacity < 1 {
		return true, nil
	}
	res, err := bucketScript.Run(ctx, b.client, []string{b.prefix + printerID},
		b.capacity, b.refill, b.now().UnixMilli(), b.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("token bucket %s: %w", printerID, err)
	}
	return res == 1, nil
}

// Tokens are stored scaled by 1000 so the script stays in integer arithmetic.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1]) * 1000
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'milli_tokens', 'last_ms')
local tokens = tonumber(data[1]) or capacity
local last = tonumber(data[2]) or now

tokens = math.min(capacity, tokens + math.floor(math.max(0, now - last) * refill))

local allowed = 0
if tokens >= 1000 then
  allowed = 1
  tokens = tokens - 1000
end

redis.call('HSET', key, 'milli_tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return allowed
`)
