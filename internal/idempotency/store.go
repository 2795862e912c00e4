// Package idempotency implements the Idempotency Store (spec.md §4.3):
// resolve(key, route, method, fingerprint) -> {Miss|Hit|Conflict}, backed by
// a shared cache when configured and an in-process map otherwise. Grounded
// on other_examples/flowd-org-flowd's IdempotencyStore (Lookup/Store,
// ttl_expires_at, fingerprint-as-body_sha256) for the resolve/store contract,
// and on Tim275-oms's stock/cache.go for the Redis Get/Set/TTL shape.
package idempotency

import (
	"context"
	"time"
)

// Outcome is the result of resolving an idempotency key.
type Outcome string

const (
	// Miss means no record exists for this key; the caller should run its
	// handler and then call Complete with the result.
	Miss Outcome = "MISS"
	// Hit means a record exists with a matching fingerprint; the caller
	// should return Record.ResponseBody/ResponseStatus verbatim without
	// re-running its handler.
	Hit Outcome = "HIT"
	// Conflict means a record exists for this key but with a different
	// fingerprint, meaning the same Idempotency-Key was reused for a
	// logically different request. It is also returned for a matching
	// fingerprint whose first attempt has not completed yet.
	Conflict Outcome = "CONFLICT"
)

// DefaultTTL is the bound on how long a resolved response is replayed for
// (spec.md §4.3: "10 minutes default").
const DefaultTTL = 10 * time.Minute

// Record is a persisted idempotent response.
type Record struct {
	Key              string
	Route            string
	Method           string
	RequestFingerprint string
	ResponseBody     []byte
	ResponseStatus   int
	ExpiresAt        time.Time
}

// Result is what Resolve returns: the outcome plus, on Hit, the record to
// replay.
type Result struct {
	Outcome Outcome
	Record  *Record
}

// Store is the backend-agnostic idempotency contract. RedisStore and
// InProcessStore both implement it; InProcessStore is also used as
// RedisStore's fallback when no cache is reachable, so the two can be
// layered transparently.
type Store interface {
	// Resolve claims key for (route, method) if no record exists yet,
	// returning Miss so the caller can run its handler. If a record
	// already exists with a matching fingerprint it returns Hit with the
	// prior response; a mismatched fingerprint returns Conflict.
	Resolve(ctx context.Context, key, route, method, fingerprint string) (Result, error)
	// Complete persists the handler's response against a previously
	// claimed key, to be replayed by later calls within ttl.
	Complete(ctx context.Context, key, route, method string, status int, body []byte, ttl time.Duration) error
	// Release removes a claimed-but-never-completed key, used when the
	// handler itself failed before producing a response (spec.md does not
	// want a failed attempt to poison the key forever).
	Release(ctx context.Context, key, route, method string) error
}
