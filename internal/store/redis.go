// redis.go -- go-redis client and fixed-window rate limiter.
//
// The limiter never takes part in the trust decision; it only throttles
// how often one client can hit the auth bridge.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses redisURL, connects and pings.
// The returned client is shared by every Redis-backed struct.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// RedisRateLimiter counts attempts per key in Redis.
type RedisRateLimiter struct {
	rdb *redis.Client
}

// NewRedisRateLimiter wraps a shared client.
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb}
}

// allowScript increments the attempt counter and sets the lockout key once Max is crossed.
// KEYS[1] = lockout key, KEYS[2] = counter key
// ARGV[1] = max, ARGV[2] = window ms, ARGV[3] = lockout ms
// Returns 1 if allowed, 0 if locked out.
var allowScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end
local n = redis.call('INCR', KEYS[2])
if n == 1 then
    redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
if n > tonumber(ARGV[1]) then
    redis.call('SET', KEYS[1], 1, 'PX', ARGV[3])
    redis.call('DEL', KEYS[2])
    return 0
end
return 1
`)

// Allow records an attempt for key and reports whether it is within policy.
// Returns ErrRateLimitExceeded when locked out; other errors are Redis failures.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, policy RateLimit) error {
	res, err := allowScript.Run(ctx, l.rdb,
		[]string{"ratelimit:lock:" + key, "ratelimit:count:" + key},
		policy.Max, policy.Window.Milliseconds(), policy.Lockout.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	if res == 0 {
		return ErrRateLimitExceeded
	}
	return nil
}

// Reset clears counter and lockout for key.
func (l *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, "ratelimit:lock:"+key, "ratelimit:count:"+key).Err(); err != nil {
		return fmt.Errorf("resetting rate limit: %w", err)
	}
	return nil
}

// CheckHealth pings Redis.
func (l *RedisRateLimiter) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.rdb.Ping(ctx).Err()
}
