// Package ratelimit limits triage requests per caller with a Redis
// sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"triage_worker/pkg/logger"
)

// Limiter decides whether one more request for key may proceed. When it
// may not, the returned duration is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration)
}

// slidingWindow trims the window, counts, and admits atomically.
// Returns 1 on admit or the negated wait in milliseconds.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return 0
`)

// SlidingWindowLimiter admits at most rate+burst requests per key per window.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a per-second limiter.
func NewSlidingWindowLimiter(client *redis.Client, requestsPerSecond, burst int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:  client,
		limit:  requestsPerSecond + burst,
		window: time.Second,
		prefix: "triage:ratelimit:",
	}
}

// Allow fails open: without Redis, or when Redis errors, every request
// is admitted.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.redis == nil || l.limit <= 0 {
		return true, 0
	}

	now := time.Now()
	result, err := slidingWindow.Run(ctx, l.redis, []string{l.prefix + key},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		logger.WithContext(ctx).WithError(err).Warn("rate limiter unavailable, admitting request")
		return true, 0
	}

	return decide(result, l.window)
}

func decide(result int64, window time.Duration) (bool, time.Duration) {
	switch {
	case result == 1:
		return true, 0
	case result < 0:
		return false, time.Duration(-result) * time.Millisecond
	default:
		return false, window
	}
}

// Key builds the limiter key for a caller on a route group.
func Key(group, caller string) string {
	return fmt.Sprintf("%s:%s", group, caller)
}
