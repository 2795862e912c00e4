package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/timour/stateset-core/internal/core"
)

// DefaultSessionTTL is the session cache's default lifetime, per spec.md
// §3's "bounded TTL (default one hour)".
const DefaultSessionTTL = time.Hour

// SessionStore is the CheckoutSession persistence contract: spec.md §4.7
// says sessions "live in the idempotency/session cache", not a database
// table, so this mirrors internal/idempotency's Redis-with-in-process-
// fallback shape rather than internal/order's Postgres one.
type SessionStore interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisSessionStore is the shared-cache-backed SessionStore, grounded on
// Tim275-oms's stock/cache.go Get/Set shape and internal/idempotency's
// Redis-with-fallback pattern, re-targeted from catalog items/idempotency
// records onto CheckoutSession documents.
type RedisSessionStore struct {
	client   *redis.Client
	fallback *InProcessSessionStore
	logger   *slog.Logger
}

// NewRedisSessionStore dials addr and wraps it with an in-process fallback,
// so a cache outage degrades session storage to single-node rather than
// failing checkout outright.
func NewRedisSessionStore(addr string, logger *slog.Logger) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("checkout: failed to connect to redis: %w", err)
	}

	return &RedisSessionStore{client: client, fallback: NewInProcessSessionStore(), logger: logger}, nil
}

// Close closes the underlying Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func sessionKey(id string) string {
	return "checkout:session:" + id
}

// Save implements SessionStore.
func (s *RedisSessionStore) Save(ctx context.Context, sess Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("checkout: failed to marshal session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.ID), data, ttl).Err(); err != nil {
		s.logger.Warn("checkout: redis unavailable, falling back to in-process session store", slog.Any("error", err))
		return s.fallback.Save(ctx, sess, ttl)
	}
	return nil
}

// Get implements SessionStore.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return Session{}, core.NotFound("checkout_session", id)
	}
	if err != nil {
		s.logger.Warn("checkout: redis unavailable, falling back to in-process session store", slog.Any("error", err))
		return s.fallback.Get(ctx, id)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("checkout: failed to unmarshal session %s: %w", id, err)
	}
	return sess, nil
}

// Delete implements SessionStore.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		s.logger.Warn("checkout: redis unavailable, falling back to in-process session store", slog.Any("error", err))
		return s.fallback.Delete(ctx, id)
	}
	return nil
}

// InProcessSessionStore is a single-node SessionStore, used standalone when
// no cache URL is configured and as RedisSessionStore's fallback.
type InProcessSessionStore struct {
	mu      sync.Mutex
	entries map[string]inProcessSessionEntry
}

type inProcessSessionEntry struct {
	session   Session
	expiresAt time.Time
}

// NewInProcessSessionStore constructs an empty store.
func NewInProcessSessionStore() *InProcessSessionStore {
	return &InProcessSessionStore{entries: make(map[string]inProcessSessionEntry)}
}

// Save implements SessionStore.
func (s *InProcessSessionStore) Save(_ context.Context, sess Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = inProcessSessionEntry{session: sess, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get implements SessionStore.
func (s *InProcessSessionStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.entries, id)
		return Session{}, core.NotFound("checkout_session", id)
	}
	return e.session, nil
}

// Delete implements SessionStore.
func (s *InProcessSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
