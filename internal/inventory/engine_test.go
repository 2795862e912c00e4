package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSortedLinesOrdersByItemThenLocation(t *testing.T) {
	lines := []ReservationLine{
		{ItemID: "item_b", LocationID: "loc_1", Quantity: 1},
		{ItemID: "item_a", LocationID: "loc_2", Quantity: 1},
		{ItemID: "item_a", LocationID: "loc_1", Quantity: 1},
	}
	ordered := sortedLines(lines)
	require.Equal(t, "item_a", ordered[0].ItemID)
	require.Equal(t, "loc_1", ordered[0].LocationID)
	require.Equal(t, "item_a", ordered[1].ItemID)
	require.Equal(t, "loc_2", ordered[1].LocationID)
	require.Equal(t, "item_b", ordered[2].ItemID)
}

func TestSortedLinesDoesNotMutateInput(t *testing.T) {
	lines := []ReservationLine{
		{ItemID: "item_b", LocationID: "loc_1"},
		{ItemID: "item_a", LocationID: "loc_1"},
	}
	_ = sortedLines(lines)
	require.Equal(t, "item_b", lines[0].ItemID)
}

func TestBalanceAvailableDerivesFromOnHandAndAllocated(t *testing.T) {
	b := Balance{OnHand: 100, Allocated: 40}
	require.Equal(t, int64(60), b.Available())
}

func TestExpiredLotAlertCarriesIdentity(t *testing.T) {
	now := time.Now()
	alert := ExpiredLotAlert{ItemID: "item_1", LocationID: "loc_1", LotNumber: "LOT-1", ExpirationDate: now}
	require.Equal(t, "item_1", alert.ItemID)
	require.Equal(t, now, alert.ExpirationDate)
}
