package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveMissThenHitAfterComplete(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()

	res, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.Equal(t, Miss, res.Outcome)

	require.NoError(t, s.Complete(ctx, "key-1", "/checkout", "POST", 200, []byte(`{"ok":true}`), time.Minute))

	res, err = s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.Equal(t, Hit, res.Outcome)
	require.Equal(t, 200, res.Record.ResponseStatus)
	require.Equal(t, `{"ok":true}`, string(res.Record.ResponseBody))
}

func TestResolveConflictOnFingerprintMismatch(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()

	_, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "key-1", "/checkout", "POST", 200, []byte("{}"), time.Minute))

	res, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-different")
	require.NoError(t, err)
	require.Equal(t, Conflict, res.Outcome)
}

func TestResolveConflictWhileInFlight(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()

	_, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)

	res, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.Equal(t, Conflict, res.Outcome)
}

func TestResolveMissAfterExpiry(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()

	_, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "key-1", "/checkout", "POST", 200, []byte("{}"), time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	res, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.Equal(t, Miss, res.Outcome)
}

func TestReleaseAllowsRetryWithSameKey(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()

	_, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "key-1", "/checkout", "POST"))

	res, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)
	require.Equal(t, Miss, res.Outcome)
}

func TestDistinctRoutesAreIndependent(t *testing.T) {
	s := NewInProcessStore()
	ctx := context.Background()

	_, err := s.Resolve(ctx, "key-1", "/checkout", "POST", "fp-a")
	require.NoError(t, err)

	res, err := s.Resolve(ctx, "key-1", "/orders", "POST", "fp-a")
	require.NoError(t, err)
	require.Equal(t, Miss, res.Outcome)
}
