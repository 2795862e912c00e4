package mediator

import (
	"context"
	"time"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/inventory"
)

// Permission names for inventory commands.
const (
	PermInventoryReserve = "inventory:reserve"
	PermInventoryWrite   = "inventory:write"
)

// ReserveInventory wraps inventory.Engine.Reserve (spec.md §4.5's
// reserve()), the batch allocation protocol the order engine's Allocate
// also drives internally; exposed here so a caller can reserve stock
// without going through an order (e.g. a checkout availability hold).
type ReserveInventory struct {
	Engine *inventory.Engine
	Lines  []inventory.ReservationLine
	TTL    time.Duration
	Actor  string
}

func (c ReserveInventory) Validate() error {
	if len(c.Lines) == 0 {
		return core.New(core.KindValidation, "NO_LINES", "at least one reservation line is required")
	}
	for _, l := range c.Lines {
		if l.ItemID == "" || l.LocationID == "" {
			return core.New(core.KindValidation, "MISSING_ITEM_OR_LOCATION", "every reservation line needs an item and location")
		}
		if l.Quantity <= 0 {
			return core.New(core.KindValidation, "INVALID_QUANTITY", "reservation quantity must be positive")
		}
	}
	return nil
}

func (c ReserveInventory) Authorize(p Principal) error {
	return RequirePermission(p, PermInventoryReserve)
}

func (c ReserveInventory) Handle(ctx context.Context) (inventory.ReservationBatch, error) {
	return c.Engine.Reserve(ctx, c.Lines, c.TTL, c.Actor)
}

// ReleaseInventory wraps inventory.Engine.Release (spec.md §4.5 release()).
type ReleaseInventory struct {
	Engine        *inventory.Engine
	ReservationID string
	Actor         string
}

func (c ReleaseInventory) Validate() error {
	if c.ReservationID == "" {
		return core.New(core.KindValidation, "MISSING_RESERVATION_ID", "reservation id is required")
	}
	return nil
}

func (c ReleaseInventory) Authorize(p Principal) error {
	return RequirePermission(p, PermInventoryWrite)
}

// releaseResult exists only so ReleaseInventory can satisfy Command[T]
// with a meaningful, if empty, success value (Engine.Release returns only
// an error).
type releaseResult struct{}

func (c ReleaseInventory) Handle(ctx context.Context) (releaseResult, error) {
	return releaseResult{}, c.Engine.Release(ctx, c.ReservationID, c.Actor)
}

// ReceiveInventory wraps inventory.Engine.Receive (spec.md §4.5 receive()).
type ReceiveInventory struct {
	Engine     *inventory.Engine
	ItemID     string
	LocationID string
	Quantity   int64
	Lot        *inventory.Lot
	Actor      string
}

func (c ReceiveInventory) Validate() error {
	if c.ItemID == "" || c.LocationID == "" {
		return core.New(core.KindValidation, "MISSING_ITEM_OR_LOCATION", "item and location ids are required")
	}
	if c.Quantity <= 0 {
		return core.New(core.KindValidation, "INVALID_QUANTITY", "received quantity must be positive")
	}
	return nil
}

func (c ReceiveInventory) Authorize(p Principal) error {
	return RequirePermission(p, PermInventoryWrite)
}

func (c ReceiveInventory) Handle(ctx context.Context) (releaseResult, error) {
	return releaseResult{}, c.Engine.Receive(ctx, c.ItemID, c.LocationID, c.Quantity, c.Lot, c.Actor)
}

// TransferInventory wraps inventory.Engine.Transfer (spec.md §4.5
// transfer()).
type TransferInventory struct {
	Engine             *inventory.Engine
	ItemID             string
	FromLocation       string
	ToLocation         string
	Quantity           int64
	Actor              string
}

func (c TransferInventory) Validate() error {
	if c.ItemID == "" || c.FromLocation == "" || c.ToLocation == "" {
		return core.New(core.KindValidation, "MISSING_ITEM_OR_LOCATION", "item, from, and to location ids are required")
	}
	if c.FromLocation == c.ToLocation {
		return core.New(core.KindValidation, "SAME_LOCATION", "transfer source and destination must differ")
	}
	if c.Quantity <= 0 {
		return core.New(core.KindValidation, "INVALID_QUANTITY", "transfer quantity must be positive")
	}
	return nil
}

func (c TransferInventory) Authorize(p Principal) error {
	return RequirePermission(p, PermInventoryWrite)
}

func (c TransferInventory) Handle(ctx context.Context) (releaseResult, error) {
	return releaseResult{}, c.Engine.Transfer(ctx, c.ItemID, c.FromLocation, c.ToLocation, c.Quantity, c.Actor)
}

// AdjustInventory wraps inventory.Engine.Adjust (spec.md §4.5 adjust()),
// the manual correction path cycle counts and shrinkage writeoffs use.
type AdjustInventory struct {
	Engine     *inventory.Engine
	ItemID     string
	LocationID string
	Delta      int64
	Reason     string
	Actor      string
}

func (c AdjustInventory) Validate() error {
	if c.ItemID == "" || c.LocationID == "" {
		return core.New(core.KindValidation, "MISSING_ITEM_OR_LOCATION", "item and location ids are required")
	}
	if c.Delta == 0 {
		return core.New(core.KindValidation, "ZERO_DELTA", "adjustment delta must be non-zero")
	}
	if c.Reason == "" {
		return core.New(core.KindValidation, "MISSING_REASON", "adjustment reason is required")
	}
	return nil
}

func (c AdjustInventory) Authorize(p Principal) error {
	return RequirePermission(p, PermInventoryWrite)
}

func (c AdjustInventory) Handle(ctx context.Context) (releaseResult, error) {
	return releaseResult{}, c.Engine.Adjust(ctx, c.ItemID, c.LocationID, c.Delta, c.Reason, c.Actor)
}

// CycleCountInventory wraps inventory.Engine.CycleCount (SPEC_FULL.md's
// addition reconciling a physical count against the recorded on_hand via
// adjust()).
type CycleCountInventory struct {
	Engine        *inventory.Engine
	ItemID        string
	LocationID    string
	CountedOnHand int64
	Actor         string
}

func (c CycleCountInventory) Validate() error {
	if c.ItemID == "" || c.LocationID == "" {
		return core.New(core.KindValidation, "MISSING_ITEM_OR_LOCATION", "item and location ids are required")
	}
	if c.CountedOnHand < 0 {
		return core.New(core.KindValidation, "INVALID_QUANTITY", "counted on-hand quantity cannot be negative")
	}
	return nil
}

func (c CycleCountInventory) Authorize(p Principal) error {
	return RequirePermission(p, PermInventoryWrite)
}

func (c CycleCountInventory) Handle(ctx context.Context) (releaseResult, error) {
	return releaseResult{}, c.Engine.CycleCount(ctx, c.ItemID, c.LocationID, c.CountedOnHand, c.Actor)
}
