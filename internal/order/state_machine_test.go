package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timour/stateset-core/internal/core"
)

func TestCheckTransitionHappyPath(t *testing.T) {
	cases := []struct {
		from Status
		evt  Event
		to   Status
	}{
		{StatusDraft, EventSubmit, StatusPending},
		{StatusPending, EventAllocate, StatusAllocated},
		{StatusAllocated, EventShip, StatusShipped},
		{StatusShipped, EventDeliver, StatusDelivered},
		{StatusDelivered, EventClose, StatusClosed},
	}
	for _, c := range cases {
		to, err := checkTransition(Order{Status: c.from}, c.evt)
		require.NoError(t, err)
		require.Equal(t, c.to, to)
	}
}

func TestCheckTransitionRejectsSkippingAllocation(t *testing.T) {
	_, err := checkTransition(Order{Status: StatusPending}, EventShip)
	require.Error(t, err)
	require.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestCheckTransitionHoldAllowedFromPendingAndAllocated(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusAllocated} {
		to, err := checkTransition(Order{Status: from}, EventHold)
		require.NoError(t, err)
		require.Equal(t, StatusOnHold, to)
	}
}

func TestCheckTransitionHoldRejectedFromDraft(t *testing.T) {
	_, err := checkTransition(Order{Status: StatusDraft}, EventHold)
	require.Error(t, err)
}

func TestCheckTransitionReleaseRestoresPriorStatus(t *testing.T) {
	to, err := checkTransition(Order{Status: StatusOnHold, PriorStatus: StatusAllocated}, EventRelease)
	require.NoError(t, err)
	require.Equal(t, StatusAllocated, to)
}

func TestCheckTransitionReleaseRejectedWhenNotOnHold(t *testing.T) {
	_, err := checkTransition(Order{Status: StatusPending}, EventRelease)
	require.Error(t, err)
}

func TestCheckTransitionCancelAllowedFromPendingAllocatedOnHold(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusAllocated, StatusOnHold} {
		to, err := checkTransition(Order{Status: from}, EventCancel)
		require.NoError(t, err)
		require.Equal(t, StatusCanceled, to)
	}
}

func TestCheckTransitionCancelRejectedAfterShip(t *testing.T) {
	_, err := checkTransition(Order{Status: StatusShipped}, EventCancel)
	require.Error(t, err)
}

func TestCheckTransitionRefundAllowedFromShippedOrDelivered(t *testing.T) {
	for _, from := range []Status{StatusShipped, StatusDelivered} {
		to, err := checkTransition(Order{Status: from}, EventRefund)
		require.NoError(t, err)
		require.Equal(t, StatusRefunded, to)
	}
}

func TestCheckTransitionRefundRejectedBeforeShip(t *testing.T) {
	_, err := checkTransition(Order{Status: StatusPending}, EventRefund)
	require.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusClosed.terminal())
	require.True(t, StatusCanceled.terminal())
	require.True(t, StatusRefunded.terminal())
	require.True(t, StatusArchived.terminal())
	require.False(t, StatusPending.terminal())
}
