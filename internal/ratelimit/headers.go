package ratelimit

import "strconv"

// Headers renders the standard X-RateLimit-{Limit,Remaining,Reset} trio
// spec.md §4.4 requires on every response, denied or not.
func Headers(d Decision) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(d.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(d.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(d.ResetAt.Unix(), 10),
	}
}
