package mediator

import (
	"context"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/order"
)

// Permission names for order commands. Declared as constants so a caller
// assembling a Principal's permission set and this package agree on
// spelling; spec.md §1 leaves the permission model itself external, this
// core only names what it checks for.
const (
	PermOrderCreate = "order:create"
	PermOrderWrite  = "order:write"
	PermOrderCancel = "order:cancel"
	PermOrderRefund = "order:refund"
)

// CreateOrder wraps order.Engine.Create (spec.md §4.6's implicit "place a
// draft order" entry point).
type CreateOrder struct {
	Engine *order.Engine
	Order  order.Order
}

func (c CreateOrder) Validate() error {
	if c.Order.Currency == "" {
		return core.New(core.KindValidation, "MISSING_CURRENCY", "order currency is required")
	}
	if len(c.Order.Items) == 0 {
		return core.New(core.KindValidation, "NO_ITEMS", "order must have at least one item")
	}
	return nil
}

func (c CreateOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderCreate) }

func (c CreateOrder) Handle(ctx context.Context) (order.Order, error) {
	return c.Engine.Create(ctx, c.Order)
}

// orderTransition is the shared shape of every bare state-machine command
// below (submit/deliver/close/hold/release/refund/ship/cancel): an order id, no extra
// payload, and a single Engine method of that name to call.
type orderTransition struct {
	Engine *order.Engine
	ID     string
	fn     func(context.Context, string) (order.Order, error)
}

func (c orderTransition) Validate() error {
	if c.ID == "" {
		return core.New(core.KindValidation, "MISSING_ORDER_ID", "order id is required")
	}
	return nil
}

func (c orderTransition) Handle(ctx context.Context) (order.Order, error) {
	return c.fn(ctx, c.ID)
}

// SubmitOrder moves a Draft order to Pending (spec.md §4.6 submit()).
type SubmitOrder struct{ orderTransition }

func NewSubmitOrder(e *order.Engine, id string) SubmitOrder {
	return SubmitOrder{orderTransition{Engine: e, ID: id, fn: e.Submit}}
}
func (c SubmitOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

// DeliverOrder records carrier confirmation of delivery (spec.md §4.6
// deliver()).
type DeliverOrder struct{ orderTransition }

func NewDeliverOrder(e *order.Engine, id string) DeliverOrder {
	return DeliverOrder{orderTransition{Engine: e, ID: id, fn: e.Deliver}}
}
func (c DeliverOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

// CloseOrder finalizes a Delivered order (spec.md §4.6 close()).
type CloseOrder struct{ orderTransition }

func NewCloseOrder(e *order.Engine, id string) CloseOrder {
	return CloseOrder{orderTransition{Engine: e, ID: id, fn: e.Close}}
}
func (c CloseOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

// HoldOrder suspends a Pending or Allocated order (spec.md §4.6 hold()).
type HoldOrder struct{ orderTransition }

func NewHoldOrder(e *order.Engine, id string) HoldOrder {
	return HoldOrder{orderTransition{Engine: e, ID: id, fn: e.Hold}}
}
func (c HoldOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

// ReleaseOrder resumes a held order to its prior status (spec.md §4.6
// release()).
type ReleaseOrder struct{ orderTransition }

func NewReleaseOrder(e *order.Engine, id string) ReleaseOrder {
	return ReleaseOrder{orderTransition{Engine: e, ID: id, fn: e.Release}}
}
func (c ReleaseOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

// RefundOrder moves a Shipped/Delivered order to Refunded (spec.md §4.6
// refund()).
type RefundOrder struct{ orderTransition }

func NewRefundOrder(e *order.Engine, id string) RefundOrder {
	return RefundOrder{orderTransition{Engine: e, ID: id, fn: e.Refund}}
}
func (c RefundOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderRefund) }

// AllocateOrder reserves inventory at locationID and moves the order to
// Allocated (spec.md §4.6 allocate()). Kept separate from orderTransition
// since Engine.Allocate takes a second argument.
type AllocateOrder struct {
	Engine     *order.Engine
	ID         string
	LocationID string
}

func (c AllocateOrder) Validate() error {
	if c.ID == "" {
		return core.New(core.KindValidation, "MISSING_ORDER_ID", "order id is required")
	}
	if c.LocationID == "" {
		return core.New(core.KindValidation, "MISSING_LOCATION_ID", "location id is required")
	}
	return nil
}

func (c AllocateOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

func (c AllocateOrder) Handle(ctx context.Context) (order.Order, error) {
	return c.Engine.Allocate(ctx, c.ID, c.LocationID)
}

// ShipOrder consumes the order's reservations and moves it to Shipped
// (spec.md §4.6 ship()).
type ShipOrder struct{ orderTransition }

func NewShipOrder(e *order.Engine, id string) ShipOrder {
	return ShipOrder{orderTransition{Engine: e, ID: id, fn: e.Ship}}
}
func (c ShipOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

// CancelOrder terminates an order before it ships, releasing any
// reservations it held (spec.md §4.6 cancel()).
type CancelOrder struct{ orderTransition }

func NewCancelOrder(e *order.Engine, id string) CancelOrder {
	return CancelOrder{orderTransition{Engine: e, ID: id, fn: e.Cancel}}
}
func (c CancelOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderCancel) }

// SplitOrder moves a subset of an order's items onto a newly created
// sibling order (SPEC_FULL.md's addition of spec.md §9's split()).
type SplitOrder struct {
	Engine      *order.Engine
	ID          string
	MoveItemIDs []string
}

func (c SplitOrder) Validate() error {
	if c.ID == "" {
		return core.New(core.KindValidation, "MISSING_ORDER_ID", "order id is required")
	}
	if len(c.MoveItemIDs) == 0 {
		return core.New(core.KindValidation, "NOTHING_TO_SPLIT", "at least one item id must be given to split")
	}
	return nil
}

func (c SplitOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

// SplitResult bundles both orders a split produces; Command[T] needs a
// single result type.
type SplitResult struct {
	Original order.Order
	Split    order.Order
}

func (c SplitOrder) Handle(ctx context.Context) (SplitResult, error) {
	original, split, err := c.Engine.Split(ctx, c.ID, c.MoveItemIDs)
	if err != nil {
		return SplitResult{}, err
	}
	return SplitResult{Original: original, Split: split}, nil
}

// MergeOrder absorbs SourceID's items into TargetID and cancels the source
// (SPEC_FULL.md's addition of spec.md §9's merge()).
type MergeOrder struct {
	Engine   *order.Engine
	TargetID string
	SourceID string
}

func (c MergeOrder) Validate() error {
	if c.TargetID == "" || c.SourceID == "" {
		return core.New(core.KindValidation, "MISSING_ORDER_ID", "target and source order ids are required")
	}
	if c.TargetID == c.SourceID {
		return core.New(core.KindValidation, "MERGE_SAME_ORDER", "cannot merge an order into itself")
	}
	return nil
}

func (c MergeOrder) Authorize(p Principal) error { return RequirePermission(p, PermOrderWrite) }

func (c MergeOrder) Handle(ctx context.Context) (order.Order, error) {
	return c.Engine.Merge(ctx, c.TargetID, c.SourceID)
}
