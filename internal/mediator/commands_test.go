package mediator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/inventory"
	"github.com/timour/stateset-core/internal/money"
	"github.com/timour/stateset-core/internal/order"
)

func TestCreateOrderValidateRejectsMissingCurrency(t *testing.T) {
	cmd := CreateOrder{Order: order.Order{Items: []order.Item{{ProductID: "p1", Quantity: 1}}}}
	err := cmd.Validate()
	require.Error(t, err)
	require.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestCreateOrderValidateRejectsNoItems(t *testing.T) {
	cmd := CreateOrder{Order: order.Order{Currency: "USD"}}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestCreateOrderValidateAcceptsWellFormedOrder(t *testing.T) {
	cmd := CreateOrder{Order: order.Order{
		Currency: "USD",
		Items:    []order.Item{{ProductID: "p1", Quantity: 2, UnitPrice: money.Money{Currency: "USD", Amount: 1999}}},
	}}
	require.NoError(t, cmd.Validate())
}

func TestCreateOrderAuthorizeRequiresPermission(t *testing.T) {
	cmd := CreateOrder{}
	require.Error(t, cmd.Authorize(Principal{}))
	require.NoError(t, cmd.Authorize(Principal{Permissions: map[string]bool{PermOrderCreate: true}}))
}

func TestOrderTransitionValidateRejectsMissingID(t *testing.T) {
	cmd := NewSubmitOrder(nil, "")
	err := cmd.Validate()
	require.Error(t, err)
	require.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestOrderTransitionValidateAcceptsID(t *testing.T) {
	cmd := NewCancelOrder(nil, "order-1")
	require.NoError(t, cmd.Validate())
}

func TestAllocateOrderValidateRequiresLocation(t *testing.T) {
	cmd := AllocateOrder{ID: "order-1"}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestSplitOrderValidateRejectsEmptyPartition(t *testing.T) {
	cmd := SplitOrder{ID: "order-1"}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestMergeOrderValidateRejectsSelfMerge(t *testing.T) {
	cmd := MergeOrder{TargetID: "order-1", SourceID: "order-1"}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestReserveInventoryValidateRejectsZeroQuantity(t *testing.T) {
	cmd := ReserveInventory{Lines: []inventory.ReservationLine{{ItemID: "i1", LocationID: "l1", Quantity: 0}}}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestReserveInventoryValidateAcceptsWellFormedLines(t *testing.T) {
	cmd := ReserveInventory{Lines: []inventory.ReservationLine{{ItemID: "i1", LocationID: "l1", Quantity: 1}}}
	require.NoError(t, cmd.Validate())
}

func TestTransferInventoryValidateRejectsSameLocation(t *testing.T) {
	cmd := TransferInventory{ItemID: "i1", FromLocation: "l1", ToLocation: "l1", Quantity: 1}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestAdjustInventoryValidateRejectsZeroDelta(t *testing.T) {
	cmd := AdjustInventory{ItemID: "i1", LocationID: "l1", Delta: 0, Reason: "count"}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestAdjustInventoryValidateRejectsMissingReason(t *testing.T) {
	cmd := AdjustInventory{ItemID: "i1", LocationID: "l1", Delta: -2}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestCycleCountInventoryValidateRejectsNegativeCount(t *testing.T) {
	cmd := CycleCountInventory{ItemID: "i1", LocationID: "l1", CountedOnHand: -1}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestCreateCheckoutSessionValidateRejectsNoItems(t *testing.T) {
	cmd := CreateCheckoutSession{Currency: "USD"}
	err := cmd.Validate()
	require.Error(t, err)
}

func TestCompleteCheckoutSessionValidateRequiresIdempotencyKey(t *testing.T) {
	cmd := CompleteCheckoutSession{SessionID: "s1", PaymentToken: "tok_ok"}
	err := cmd.Validate()
	require.Error(t, err)
	require.Equal(t, core.KindValidation, core.KindOf(err))
}

func TestCompleteCheckoutSessionValidateAcceptsWellFormed(t *testing.T) {
	cmd := CompleteCheckoutSession{SessionID: "s1", IdempotencyKey: "key-1", PaymentToken: "tok_ok"}
	require.NoError(t, cmd.Validate())
}

func TestCancelCheckoutSessionAuthorizeRequiresPermission(t *testing.T) {
	cmd := CancelCheckoutSession{ID: "s1"}
	require.Error(t, cmd.Authorize(Principal{}))
	require.NoError(t, cmd.Authorize(Principal{Permissions: map[string]bool{PermCheckoutCancel: true}}))
}
