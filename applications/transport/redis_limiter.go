package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a distributed fixed-window limiter for deployments
// running more than one flowrt process behind the same RPC policy, where
// keyedLimiter's in-process state would let each process grant its own
// independent quota to the same tenant.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisLimiter builds a limiter allowing up to limit calls per window
// for any given key, backed by client.
func NewRedisLimiter(client *redis.Client, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Allow increments key's counter in the current window and reports whether
// the call is within quota. The counter's TTL is (re)set to window on the
// first increment of each window so stale keys expire on their own.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("flowrt:ratelimit:%s:%d", key, time.Now().UnixNano()/l.window.Nanoseconds())

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis limiter incr: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}
	return count <= l.limit, nil
}
