package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens are carried as thousandths so the script can return integers.
const bucketScale = 1000

// KEYS[1] bucket hash. ARGV rate/s, burst, ttl ms.
// Returns {allowed, tokens left * 1000}. Refill uses the Redis clock so every
// replica agrees on elapsed time.
var takeToken = redis.NewScript(`
local rate  = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local t     = redis.call("TIME")
local now   = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state  = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last   = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, math.floor(tokens * 1000)}
`)

var ErrBucketUnavailable = errors.New("token bucket not configured")

// Limit is a refill rate in tokens per second and a bucket capacity.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) validate() error {
	if l.Rate <= 0 || math.IsInf(l.Rate, 0) || math.IsNaN(l.Rate) {
		return fmt.Errorf("invalid rate %v", l.Rate)
	}
	if l.Burst <= 0 {
		return fmt.Errorf("invalid burst %d", l.Burst)
	}
	return nil
}

// idleTTL keeps an untouched bucket around for twice its full refill time.
func (l Limit) idleTTL() time.Duration {
	d := time.Duration(2 * float64(l.Burst) / l.Rate * float64(time.Second))
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Millisecond)
}

type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

// TokenBucket is a token bucket whose state lives in Redis.
type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	return &TokenBucket{client: client}
}

// Take removes one token from the bucket at key if one is available.
func (b *TokenBucket) Take(ctx context.Context, key string, limit Limit) (Decision, error) {
	if b == nil || b.client == nil {
		return Decision{}, ErrBucketUnavailable
	}
	if key == "" {
		return Decision{}, errors.New("bucket key is empty")
	}
	if err := limit.validate(); err != nil {
		return Decision{}, err
	}

	out, err := takeToken.Run(ctx, b.client, []string{key},
		limit.Rate,
		limit.Burst,
		limit.idleTTL().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take token %s: %w", key, err)
	}
	if len(out) != 2 {
		return Decision{}, fmt.Errorf("take token %s: unexpected reply %v", key, out)
	}

	d := Decision{
		Allowed:   out[0] == 1,
		Remaining: float64(out[1]) / bucketScale,
	}
	if !d.Allowed {
		missing := 1 - d.Remaining
		d.RetryAfter = time.Duration(missing / limit.Rate * float64(time.Second))
	}
	return d, nil
}
