package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimit(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "ip:203.0.113.4:/checkout", 5, time.Minute)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d should be allowed", i)
	}
}

func TestAllowDeniesOverLimit(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "ip:203.0.113.4:/checkout", 3, time.Minute)
		require.NoError(t, err)
	}

	d, err := l.Allow(ctx, "ip:203.0.113.4:/checkout", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
}

func TestAllowTracksBucketsIndependently(t *testing.T) {
	l := NewInProcessLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "ip:203.0.113.4:/checkout", 3, time.Minute)
		require.NoError(t, err)
	}

	d, err := l.Allow(ctx, "ip:203.0.113.5:/checkout", 3, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestResolvePolicyFallsBackToDefault(t *testing.T) {
	policies := []Policy{{Key: "/checkout", Limit: 10, WindowSeconds: 60}}
	limit, window := ResolvePolicy(policies, "/orders", 100, 60)
	require.Equal(t, 100, limit)
	require.Equal(t, time.Minute, window)

	limit, window = ResolvePolicy(policies, "/checkout", 100, 60)
	require.Equal(t, 10, limit)
	require.Equal(t, time.Minute, window)
}

func TestBucketKeyPrefersMostSpecific(t *testing.T) {
	require.Equal(t, "principal:acct_1:/checkout", BucketKey("acct_1", "ak_1", "203.0.113.4", "/checkout"))
	require.Equal(t, "apikey:ak_1:/checkout", BucketKey("", "ak_1", "203.0.113.4", "/checkout"))
	require.Equal(t, "ip:203.0.113.4:/checkout", BucketKey("", "", "203.0.113.4", "/checkout"))
}
