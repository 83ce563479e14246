package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes of the two limiter families.
const (
	rateLimitUserPrefix = "ratelimit:user:"
	rateLimitIPPrefix   = "ratelimit:ip:"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// bucket describes one token bucket: it holds up to burst tokens and
// refills at rate tokens per second.
type bucket struct {
	key   string
	rate  float64
	burst int
}

// refillTime is how long an empty bucket takes to become full.
func (b bucket) refillTime() time.Duration {
	if b.rate <= 0 {
		return 0
	}
	return time.Duration(float64(b.burst) / b.rate * float64(time.Second))
}

// ttl keeps idle keys only as long as they can still differ from a full bucket.
func (b bucket) ttl() time.Duration {
	return b.refillTime() + time.Second
}

// tokenBucketScript refills and consumes atomically.
// Times are milliseconds so sub-second rates refill smoothly.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])   -- tokens per millisecond
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])    -- unix milliseconds
	local ttl = tonumber(ARGV[4])    -- milliseconds

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

	local allowed = 0
	local wait = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		wait = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now)
	redis.call('PEXPIRE', key, ttl)

	return {allowed, wait, math.floor(tokens)}
`)

// CheckUserRateLimit consumes one token from the user's API bucket.
// A zero rate disables the limit.
func (c *Cache) CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}
	return c.take(ctx, bucket{
		key:   rateLimitUserPrefix + userID,
		rate:  float64(ratePerMinute) / 60.0,
		burst: burst,
	})
}

// CheckIPRateLimit consumes one token from the client IP's auth bucket.
// The IP is hashed so raw addresses never reach Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return unlimited(burst), nil
	}
	return c.take(ctx, bucket{
		key:   rateLimitIPPrefix + hashIP(ip),
		rate:  float64(ratePerSecond),
		burst: burst,
	})
}

func (c *Cache) take(ctx context.Context, b bucket) (*RateLimitResult, error) {
	now := time.Now()

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{b.key},
		b.rate/1000.0, b.burst, now.UnixMilli(), b.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		// Callers fail open; the result still lets the request through.
		return unlimited(b.burst), fmt.Errorf("rate limit script: %w", err)
	}

	return bucketResult(b, now, res[0] == 1, res[1], res[2]), nil
}

// bucketResult converts the script reply into a RateLimitResult.
func bucketResult(b bucket, now time.Time, allowed bool, waitMs, remaining int64) *RateLimitResult {
	missing := float64(int64(b.burst) - remaining)
	resetIn := time.Duration(math.Ceil(missing/b.rate)) * time.Second

	return &RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    now.Add(resetIn),
		RetryAfter: time.Duration(waitMs) * time.Millisecond,
	}
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(burst),
		ResetAt:   time.Now(),
	}
}

// hashIP returns a truncated SHA-256 of an IP address (16 hex chars).
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
