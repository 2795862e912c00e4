package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the shared-cache sliding-window limiter (spec.md §4.4:
// "Counter backend is the shared cache if configured"). Grounded on
// Tim275-oms's stock/cache.go for the client construction, re-targeted from
// cached catalog lookups onto fixed-window INCR/EXPIRE counters with the
// same weighted-previous-window approximation as InProcessLimiter so both
// backends agree on Decision semantics.
type RedisLimiter struct {
	client   *redis.Client
	fallback *InProcessLimiter
	logger   *slog.Logger
}

// NewRedisLimiter dials addr and wraps it with an in-process fallback for
// use during a cache outage.
func NewRedisLimiter(addr string, logger *slog.Logger) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: failed to connect to redis: %w", err)
	}

	return &RedisLimiter{client: client, fallback: NewInProcessLimiter(), logger: logger}, nil
}

// Close closes the underlying Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Allow implements Limiter using two fixed-window counters per key: the
// window currently accumulating and the one before it, combined with the
// same overlap-fraction weighting as InProcessLimiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	bucketIndex := now.UnixNano() / int64(window)
	currentKey := fmt.Sprintf("ratelimit:%s:%d", key, bucketIndex)
	previousKey := fmt.Sprintf("ratelimit:%s:%d", key, bucketIndex-1)

	pipe := l.client.Pipeline()
	incrCmd := pipe.Incr(ctx, currentKey)
	pipe.Expire(ctx, currentKey, window*2)
	prevCmd := pipe.Get(ctx, previousKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		l.logger.Warn("ratelimit: redis unavailable, falling back to in-process limiter", slog.Any("error", err))
		return l.fallback.Allow(ctx, key, limit, window)
	}

	current := incrCmd.Val()
	previous := int64(0)
	if v, err := prevCmd.Int64(); err == nil {
		previous = v
	}

	windowStart := time.Unix(0, bucketIndex*int64(window))
	overlapFraction := 1 - float64(now.Sub(windowStart))/float64(window)
	if overlapFraction < 0 {
		overlapFraction = 0
	}
	effective := float64(current-1) + float64(previous)*overlapFraction
	resetAt := windowStart.Add(window)

	if int(effective) >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}, nil
	}

	remaining := limit - int(effective) - 1
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: limit, Remaining: remaining, ResetAt: resetAt}, nil
}
