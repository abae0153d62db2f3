/**
 * @description
 * Distributed per-user rate limiting for the money movement endpoints, backed
 * by a Redis counter window. One Lua round trip increments the counter, arms
 * the window expiry on the first hit, and reports the remaining TTL so
 * handlers can answer with an accurate Retry-After.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and Lua scripting.
 */

package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  remaining = tonumber(ARGV[1])
end
return {hits, remaining}
`)

// RedisRateLimiter counts hits per (scope, subject) in fixed Redis windows.
// Depending only on redis.Scripter keeps it testable with a scripted stub.
type RedisRateLimiter struct {
	client       redis.Scripter
	prefix       string
	scopeWindows map[string]time.Duration
}

func NewRedisRateLimiter(client redis.Scripter, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "giglane:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client:       client,
		prefix:       trimmedPrefix,
		scopeWindows: map[string]time.Duration{},
	}
}

// SetScopeWindow overrides the caller-supplied window for one scope, so a
// sensitive scope (payouts) can run a wider window than top-ups without the
// callers knowing about it.
func (r *RedisRateLimiter) SetScopeWindow(scope string, window time.Duration) {
	scope = strings.TrimSpace(scope)
	if scope == "" || window <= 0 {
		return
	}
	r.scopeWindows[scope] = window
}

// ConsumeRateLimit counts one hit and returns the running count plus the
// seconds until the window resets. A zero count means the limiter declined to
// participate (missing scope or subject, non-positive limit or window).
func (r *RedisRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 {
		return 0, 0, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	if override, ok := r.scopeWindows[scope]; ok {
		window = override
	}
	if window <= 0 {
		return 0, 0, nil
	}
	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	reply, err := rateWindowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	hits, remainingMs, err := parseRateWindowReply(reply)
	if err != nil {
		return 0, 0, err
	}
	if remainingMs < 0 {
		remainingMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(remainingMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(hits), retryAfter, nil
}

// parseRateWindowReply unpacks the {hits, remaining_ms} pair the Lua script
// returns.
func parseRateWindowReply(reply interface{}) (hits int64, remainingMs int64, err error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limiter reply shape: %T", reply)
	}
	hits, ok = values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limiter hit count type: %T", values[0])
	}
	remainingMs, ok = values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limiter ttl type: %T", values[1])
	}
	return hits, remainingMs, nil
}
