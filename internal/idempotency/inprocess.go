package idempotency

import (
	"context"
	"sync"
	"time"
)

type inProcessEntry struct {
	fingerprint string
	completed   bool
	status      int
	body        []byte
	expiresAt   time.Time
}

// InProcessStore is a single-node idempotency store with the same Resolve
// semantics as RedisStore, minus cross-node sharing (spec.md §4.3: "else
// in-process with the same semantics minus cross-node sharing"). Used
// standalone when no cache URL is configured, and as RedisStore's fallback
// when Redis is unreachable.
type InProcessStore struct {
	mu      sync.Mutex
	entries map[string]*inProcessEntry
}

// NewInProcessStore constructs an empty store.
func NewInProcessStore() *InProcessStore {
	return &InProcessStore{entries: make(map[string]*inProcessEntry)}
}

func recordKey(route, method, key string) string {
	return route + "|" + method + "|" + key
}

// Resolve implements Store.
func (s *InProcessStore) Resolve(_ context.Context, key, route, method, fingerprint string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey(route, method, key)
	e, ok := s.entries[k]
	if ok && time.Now().After(e.expiresAt) {
		delete(s.entries, k)
		ok = false
	}

	if !ok {
		s.entries[k] = &inProcessEntry{fingerprint: fingerprint, completed: false, expiresAt: time.Now().Add(claimTTL)}
		return Result{Outcome: Miss}, nil
	}

	if e.fingerprint != fingerprint {
		return Result{Outcome: Conflict}, nil
	}

	if !e.completed {
		// Same key/fingerprint resolved again before the first attempt
		// completed: treat as a conflicting concurrent use rather than
		// silently re-running the handler twice.
		return Result{Outcome: Conflict}, nil
	}

	return Result{
		Outcome: Hit,
		Record: &Record{
			Key:                key,
			Route:              route,
			Method:             method,
			RequestFingerprint: e.fingerprint,
			ResponseBody:       e.body,
			ResponseStatus:     e.status,
			ExpiresAt:          e.expiresAt,
		},
	}, nil
}

// Complete implements Store.
func (s *InProcessStore) Complete(_ context.Context, key, route, method string, status int, body []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := recordKey(route, method, key)
	e, ok := s.entries[k]
	if !ok {
		e = &inProcessEntry{}
		s.entries[k] = e
	}
	e.completed = true
	e.status = status
	e.body = body
	e.expiresAt = time.Now().Add(ttl)
	return nil
}

// Release implements Store.
func (s *InProcessStore) Release(_ context.Context, key, route, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, recordKey(route, method, key))
	return nil
}
