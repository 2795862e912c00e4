package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimTTL bounds how long an unresolved (Miss-returned, not-yet-Complete'd)
// claim blocks a retry of the same key before it's considered abandoned.
const claimTTL = 2 * time.Minute

type redisEntry struct {
	Fingerprint string `json:"fingerprint"`
	Completed   bool   `json:"completed"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
}

// RedisStore is the shared-cache-backed idempotency store (spec.md §4.3:
// "keyed in a shared cache (Redis-class) when available"). Grounded on
// Tim275-oms's stock/cache.go for the client construction and
// marshal/Get/Set shape, re-targeted from cached catalog items onto
// idempotency records and extended with SetNX-as-claim.
type RedisStore struct {
	client   *redis.Client
	fallback *InProcessStore
	logger   *slog.Logger
}

// NewRedisStore dials addr and wraps it with an in-process fallback used
// whenever a Redis call errors, so a cache outage degrades idempotency to
// single-node rather than failing closed.
func NewRedisStore(addr string, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("idempotency: failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, fallback: NewInProcessStore(), logger: logger}, nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func cacheKey(route, method, key string) string {
	return "idempotency:" + route + ":" + method + ":" + key
}

// Resolve implements Store.
func (s *RedisStore) Resolve(ctx context.Context, key, route, method, fingerprint string) (Result, error) {
	entry := redisEntry{Fingerprint: fingerprint}
	data, err := json.Marshal(entry)
	if err != nil {
		return Result{}, fmt.Errorf("idempotency: failed to marshal claim: %w", err)
	}

	k := cacheKey(route, method, key)
	claimed, err := s.client.SetNX(ctx, k, data, claimTTL).Result()
	if err != nil {
		s.logger.Warn("idempotency: redis unavailable, falling back to in-process store", slog.Any("error", err))
		return s.fallback.Resolve(ctx, key, route, method, fingerprint)
	}
	if claimed {
		return Result{Outcome: Miss}, nil
	}

	existing, err := s.client.Get(ctx, k).Bytes()
	if err == redis.Nil {
		// Claim expired or was released between SetNX and Get; retry once
		// as a fresh claim.
		return s.Resolve(ctx, key, route, method, fingerprint)
	}
	if err != nil {
		s.logger.Warn("idempotency: redis unavailable, falling back to in-process store", slog.Any("error", err))
		return s.fallback.Resolve(ctx, key, route, method, fingerprint)
	}

	var stored redisEntry
	if err := json.Unmarshal(existing, &stored); err != nil {
		return Result{}, fmt.Errorf("idempotency: failed to unmarshal record: %w", err)
	}

	if stored.Fingerprint != fingerprint {
		return Result{Outcome: Conflict}, nil
	}
	if !stored.Completed {
		return Result{Outcome: Conflict}, nil
	}
	return Result{
		Outcome: Hit,
		Record: &Record{
			Key:                key,
			Route:              route,
			Method:             method,
			RequestFingerprint: stored.Fingerprint,
			ResponseBody:       stored.Body,
			ResponseStatus:     stored.Status,
		},
	}, nil
}

// Complete implements Store.
func (s *RedisStore) Complete(ctx context.Context, key, route, method string, status int, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := cacheKey(route, method, key)

	existing, err := s.client.Get(ctx, k).Bytes()
	fingerprint := ""
	if err == nil {
		var stored redisEntry
		if unmarshalErr := json.Unmarshal(existing, &stored); unmarshalErr == nil {
			fingerprint = stored.Fingerprint
		}
	}

	entry := redisEntry{Fingerprint: fingerprint, Completed: true, Status: status, Body: body}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("idempotency: failed to marshal completion: %w", err)
	}
	if err := s.client.Set(ctx, k, data, ttl).Err(); err != nil {
		s.logger.Warn("idempotency: redis unavailable, falling back to in-process store", slog.Any("error", err))
		return s.fallback.Complete(ctx, key, route, method, status, body, ttl)
	}
	return nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key, route, method string) error {
	if err := s.client.Del(ctx, cacheKey(route, method, key)).Err(); err != nil {
		s.logger.Warn("idempotency: redis unavailable, falling back to in-process store", slog.Any("error", err))
		return s.fallback.Release(ctx, key, route, method)
	}
	return nil
}
