// Package ratelimit implements the Rate Limiter (spec.md §4.4): sliding
// window counters per (principal|ip|path) bucket key, backed by a shared
// cache when configured and falling back in-process otherwise. Grounded on
// the same Redis primitives as internal/idempotency
// (Tim275-oms's stock/cache.go), since spec.md calls for the identical
// shared-cache-or-in-process duality for both stores.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of checking one bucket.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is the backend-agnostic sliding-window contract. RedisLimiter and
// InProcessLimiter both implement it.
type Limiter interface {
	// Allow increments the counter for key and reports whether the request
	// is within limit requests per window. key is the caller-derived bucket
	// identity, e.g. "principal:acct_1:/checkout" or "ip:203.0.113.4".
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Policy is one "path-or-id : limit : window-seconds" triple from
// configuration (spec.md §4.4).
type Policy struct {
	Key           string
	Limit         int
	WindowSeconds int
}

// BucketKey derives the sliding-window bucket identity for a request,
// preferring the most specific match: principal, then API key, then IP,
// combined with the request path.
func BucketKey(principalID, apiKey, ip, path string) string {
	switch {
	case principalID != "":
		return "principal:" + principalID + ":" + path
	case apiKey != "":
		return "apikey:" + apiKey + ":" + path
	default:
		return "ip:" + ip + ":" + path
	}
}

// ResolvePolicy returns the first configured policy whose Key equals key,
// falling back to the global default when none match.
func ResolvePolicy(policies []Policy, key string, defaultLimit, defaultWindowSeconds int) (limit int, window time.Duration) {
	for _, p := range policies {
		if p.Key == key {
			return p.Limit, time.Duration(p.WindowSeconds) * time.Second
		}
	}
	return defaultLimit, time.Duration(defaultWindowSeconds) * time.Second
}
