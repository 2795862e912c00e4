package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEventMarshalsPayload(t *testing.T) {
	e, err := New("order", "ord_1", "order.created", "ord_1", map[string]any{"total": 4818})
	require.NoError(t, err)
	require.Equal(t, StatusPending, e.Status)
	require.JSONEq(t, `{"total":4818}`, string(e.Payload))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	d1 := Backoff(1)
	require.InDelta(t, time.Second, d1, float64(time.Second)*0.25)

	d5 := Backoff(5)
	require.Greater(t, d5, d1)

	dMax := Backoff(30)
	require.LessOrEqual(t, dMax, 2*time.Minute+2*time.Minute/5)
}

func TestBackoffNeverNegative(t *testing.T) {
	for attempts := 0; attempts < 20; attempts++ {
		require.GreaterOrEqual(t, Backoff(attempts), time.Duration(0))
	}
}
