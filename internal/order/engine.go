package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/google/uuid"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/gateway"
	"github.com/timour/stateset-core/internal/inventory"
	"github.com/timour/stateset-core/internal/metrics"
	"github.com/timour/stateset-core/internal/outbox"
)

// referenceType is the inventory reservation reference_type orders use, so
// a release/consume walking back through inventory_reservations can tell
// what kind of aggregate holds the reservation.
const referenceType = "order"

// Engine is the Order Aggregate's operation surface (spec.md §4.6):
// create/submit/allocate/ship/deliver/close/hold/release/cancel/refund plus
// split/merge, all wrapped in a gateway transaction with its own outbox
// append, generalizing Tim275-oms's orders service layer onto the
// version-column aggregate model.
type Engine struct {
	gw      *gateway.Gateway
	store   *Store
	inv     *inventory.Engine
	outbox  outbox.Appender
	logger  *slog.Logger
	metrics *metrics.Core
	taxRate decimal.Decimal
}

// NewEngine wires the order store, the Inventory Engine allocate/ship/
// release calls route through, and the shared outbox appender.
func NewEngine(gw *gateway.Gateway, store *Store, inv *inventory.Engine, ob outbox.Appender, logger *slog.Logger, m *metrics.Core, taxRate decimal.Decimal) *Engine {
	return &Engine{gw: gw, store: store, inv: inv, outbox: ob, logger: logger, metrics: m, taxRate: taxRate}
}

// Create opens a new Draft order, allocating its tenant-scoped order_number
// and recomputing totals from the items the caller supplies (spec.md §4.6
// create()).
func (e *Engine) Create(ctx context.Context, o Order) (Order, error) {
	o.ID = uuid.NewString()
	o.Status = StatusDraft
	if o.Currency == "" {
		return Order{}, core.New(core.KindValidation, "MISSING_CURRENCY", "order currency is required")
	}

	err := e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		number, err := e.store.NextOrderNumber(ctx, tx, o.TenantID)
		if err != nil {
			return err
		}
		o.OrderNumber = number

		if err := RecomputeTotals(&o, e.taxRate); err != nil {
			return err
		}

		if err := e.store.Insert(ctx, tx, o); err != nil {
			return err
		}

		evt, err := outbox.New("order", o.ID, "order.created", o.ID, o)
		if err != nil {
			return fmt.Errorf("order: failed to build order.created event: %w", err)
		}
		return e.outbox.Append(ctx, tx, evt)
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// transition is the shared mutator every event-driven operation below goes
// through: lock the row, validate the (from, event) edge, let apply mutate
// the in-memory copy, persist with the optimistic guard, and append the
// resulting domain event, all in one transaction.
func (e *Engine) transition(ctx context.Context, id string, event Event, apply func(tx *gateway.Tx, o *Order) error) (result Order, err error) {
	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		o, err := e.store.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		to, err := checkTransition(o, event)
		if err != nil {
			return err
		}
		if event == EventHold {
			o.PriorStatus = o.Status
		}
		o.Status = to

		if apply != nil {
			if err := apply(tx, &o); err != nil {
				return err
			}
		}

		outcome, err := e.store.UpdateOptimistic(ctx, tx, o)
		if err != nil {
			return err
		}
		if outcome == gateway.Stale {
			return core.StaleVersion("order", o.ID, o.Version)
		}
		o.Version++

		evt, err := outbox.New("order", o.ID, "order."+string(event), o.ID, o)
		if err != nil {
			return fmt.Errorf("order: failed to build order.%s event: %w", event, err)
		}
		if err := e.outbox.Append(ctx, tx, evt); err != nil {
			return err
		}

		result = o
		return nil
	})
	return result, err
}

// Submit moves a Draft order to Pending (spec.md §4.6 submit()), the
// customer-facing "place the order" action. Allocation of inventory happens
// separately in Allocate, since submission itself makes no inventory
// promise yet.
func (e *Engine) Submit(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, EventSubmit, nil)
}

// Allocate reserves inventory for every item line and moves the order to
// Allocated (spec.md §4.6 allocate()). Reservation happens against the
// Inventory Engine outside this transaction (it owns its own), then the
// resulting reservation ids are linked inside the order's transaction; if
// the order's version changed between the two steps the reservations are
// released again so nothing is left dangling.
func (e *Engine) Allocate(ctx context.Context, id, locationID string) (Order, error) {
	o, err := e.store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if _, err := checkTransition(o, EventAllocate); err != nil {
		return Order{}, err
	}

	var lines []inventory.ReservationLine
	for _, item := range o.Items {
		lines = append(lines, inventory.ReservationLine{
			ItemID:        item.ProductID,
			LocationID:    locationID,
			Quantity:      item.Quantity,
			ReferenceType: referenceType,
			ReferenceID:   o.ID,
		})
	}

	batch, err := e.inv.Reserve(ctx, lines, 0, "order-engine")
	if err != nil {
		return Order{}, err
	}

	result, err := e.transition(ctx, id, EventAllocate, func(tx *gateway.Tx, cur *Order) error {
		var ids []string
		for _, r := range batch.Reservations {
			ids = append(ids, r.ID)
		}
		return e.store.LinkReservations(ctx, tx, cur.ID, ids)
	})
	if err != nil {
		for _, r := range batch.Reservations {
			if relErr := e.inv.Release(ctx, r.ID, "order-engine-rollback"); relErr != nil {
				e.logger.Error("order: failed to release reservation after allocate rollback",
					slog.String("reservation_id", r.ID), slog.Any("error", relErr))
			}
		}
		return Order{}, err
	}
	return result, nil
}

// Ship consumes every reservation linked to the order (converting allocated
// stock into a permanent on_hand reduction) and moves the order to Shipped
// (spec.md §4.6 ship()).
func (e *Engine) Ship(ctx context.Context, id string) (Order, error) {
	reservationIDs, err := e.linkedReservations(ctx, id)
	if err != nil {
		return Order{}, err
	}
	for _, rID := range reservationIDs {
		if _, err := e.inv.Consume(ctx, rID, "order-engine"); err != nil {
			return Order{}, err
		}
	}
	return e.transition(ctx, id, EventShip, nil)
}

// Deliver records carrier confirmation of delivery (spec.md §4.6 deliver()).
func (e *Engine) Deliver(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, EventDeliver, nil)
}

// Close finalizes a Delivered order (spec.md §4.6 close()).
func (e *Engine) Close(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, EventClose, nil)
}

// Hold suspends a Pending or Allocated order, remembering its prior status
// so Release can restore it (spec.md §4.6 hold()).
func (e *Engine) Hold(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, EventHold, nil)
}

// Release resumes a held order back to whatever state it was held from.
func (e *Engine) Release(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, EventRelease, func(tx *gateway.Tx, o *Order) error {
		o.PriorStatus = ""
		return nil
	})
}

// Cancel terminates an order before it ships, releasing any reservations it
// had allocated (spec.md §4.6 cancel()).
func (e *Engine) Cancel(ctx context.Context, id string) (Order, error) {
	reservationIDs, err := e.linkedReservations(ctx, id)
	if err != nil {
		return Order{}, err
	}
	result, err := e.transition(ctx, id, EventCancel, nil)
	if err != nil {
		return Order{}, err
	}
	for _, rID := range reservationIDs {
		if relErr := e.inv.Release(ctx, rID, "order-engine"); relErr != nil {
			e.logger.Error("order: failed to release reservation on cancel",
				slog.String("reservation_id", rID), slog.Any("error", relErr))
		}
	}
	return result, nil
}

// Refund moves a Shipped or Delivered order to Refunded (spec.md §4.6
// refund()). Returning shipped inventory to stock, if any, is the Returns
// flow's job, not this transition's.
func (e *Engine) Refund(ctx context.Context, id string) (Order, error) {
	return e.transition(ctx, id, EventRefund, nil)
}

// LinkPaymentIntent attaches intentID to the order without changing its
// status, used by the checkout engine once it has authorized payment for an
// order it just created (spec.md §4.7 "link order.payment_intent_id").
func (e *Engine) LinkPaymentIntent(ctx context.Context, id, intentID string) (Order, error) {
	var result Order
	err := e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		o, err := e.store.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		o.PaymentIntentID = intentID
		outcome, err := e.store.UpdateOptimistic(ctx, tx, o)
		if err != nil {
			return err
		}
		if outcome == gateway.Stale {
			return core.StaleVersion("order", o.ID, o.Version)
		}
		o.Version++
		result = o
		return nil
	})
	return result, err
}

// linkedReservations reads the order's reservation ids in a transaction of
// its own, separate from the caller's order transition, used by callers that
// need to act on the inventory engine before or after that transition.
func (e *Engine) linkedReservations(ctx context.Context, id string) (ids []string, err error) {
	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		ids, err = e.store.ReservationIDs(ctx, tx, id)
		return err
	})
	return ids, err
}

// Split moves a subset of an order's items onto a newly created sibling
// order, both left in Draft/Pending state (SPEC_FULL.md's addition of
// spec.md §9's split() operation, grounded on the same item-ownership
// invariant Create enforces). The original order keeps its remaining
// items and totals are recomputed on both sides.
func (e *Engine) Split(ctx context.Context, id string, moveItemIDs []string) (original, split Order, err error) {
	move := make(map[string]bool, len(moveItemIDs))
	for _, itemID := range moveItemIDs {
		move[itemID] = true
	}

	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		o, err := e.store.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status != StatusDraft && o.Status != StatusPending {
			return core.InvalidTransition("order", string(o.Status), "split")
		}

		var kept, moved []Item
		for _, item := range o.Items {
			if move[item.ID] {
				moved = append(moved, item)
			} else {
				kept = append(kept, item)
			}
		}
		if len(moved) == 0 {
			return core.New(core.KindValidation, "NOTHING_TO_SPLIT", "no matching items to split off")
		}

		number, err := e.store.NextOrderNumber(ctx, tx, o.TenantID)
		if err != nil {
			return err
		}
		newOrder := Order{
			ID: uuid.NewString(), OrderNumber: number, TenantID: o.TenantID, CustomerID: o.CustomerID,
			Status: o.Status, Currency: o.Currency, Items: moved,
			BillingAddress: o.BillingAddress, ShippingAddress: o.ShippingAddress,
		}
		if err := RecomputeTotals(&newOrder, e.taxRate); err != nil {
			return err
		}
		if err := e.store.Insert(ctx, tx, newOrder); err != nil {
			return err
		}

		o.Items = kept
		if err := RecomputeTotals(&o, e.taxRate); err != nil {
			return err
		}
		if err := e.store.ReplaceItems(ctx, tx, o.ID, kept); err != nil {
			return err
		}
		updateOutcome, err := e.store.UpdateOptimistic(ctx, tx, o)
		if err != nil {
			return err
		}
		if updateOutcome == gateway.Stale {
			return core.StaleVersion("order", o.ID, o.Version)
		}

		for _, evt := range []struct {
			aggID, typ string
			payload    any
		}{
			{o.ID, "order.split", o},
			{newOrder.ID, "order.created", newOrder},
		} {
			built, err := outbox.New("order", evt.aggID, evt.typ, evt.aggID, evt.payload)
			if err != nil {
				return fmt.Errorf("order: failed to build %s event: %w", evt.typ, err)
			}
			if err := e.outbox.Append(ctx, tx, built); err != nil {
				return err
			}
		}

		original, split = o, newOrder
		return nil
	})
	return original, split, err
}

// Merge absorbs source's items into target and cancels source, leaving a
// merged_into pointer behind (SPEC_FULL.md's addition of spec.md §9's
// merge() operation). Both orders must be Draft or Pending and share a
// currency and tenant.
func (e *Engine) Merge(ctx context.Context, targetID, sourceID string) (target Order, err error) {
	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		t, err := e.store.getForUpdate(ctx, tx, targetID)
		if err != nil {
			return err
		}
		src, err := e.store.getForUpdate(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		if t.Status != StatusDraft && t.Status != StatusPending {
			return core.InvalidTransition("order", string(t.Status), "merge")
		}
		if src.Status != StatusDraft && src.Status != StatusPending {
			return core.InvalidTransition("order", string(src.Status), "merge")
		}
		if t.TenantID != src.TenantID || t.Currency != src.Currency {
			return core.New(core.KindValidation, "MERGE_MISMATCH", "orders must share a tenant and currency to merge")
		}

		t.Items = append(t.Items, src.Items...)
		if err := RecomputeTotals(&t, e.taxRate); err != nil {
			return err
		}
		if err := e.store.ReplaceItems(ctx, tx, t.ID, t.Items); err != nil {
			return err
		}
		if outcome, err := e.store.UpdateOptimistic(ctx, tx, t); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("order", t.ID, t.Version)
		}

		src.Status = StatusCanceled
		src.MergedInto = t.ID
		src.Items = nil
		if err := e.store.ReplaceItems(ctx, tx, src.ID, nil); err != nil {
			return err
		}
		if outcome, err := e.store.UpdateOptimistic(ctx, tx, src); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("order", src.ID, src.Version)
		}

		evt, err := outbox.New("order", t.ID, "order.merged", t.ID, map[string]any{"target_id": t.ID, "source_id": src.ID})
		if err != nil {
			return fmt.Errorf("order: failed to build order.merged event: %w", err)
		}
		if err := e.outbox.Append(ctx, tx, evt); err != nil {
			return err
		}

		target = t
		return nil
	})
	return target, err
}
