package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/gateway"
	"github.com/timour/stateset-core/internal/metrics"
	"github.com/timour/stateset-core/internal/outbox"
	"github.com/timour/stateset-core/internal/tracing"
)

// DefaultReservationTTL mirrors Tim275-oms's store_reservations.go
// ReservationTTL constant (15 minutes), kept as the engine's default when a
// caller doesn't specify one.
const DefaultReservationTTL = 15 * time.Minute

// DefaultExpirySweepBatch bounds how many reservations one sweeper tick
// claims.
const DefaultExpirySweepBatch = 200

// Engine is the Inventory Engine (spec.md §4.5): reserve/release/consume/
// receive/transfer/adjust/cycle-count plus a reservation-expiry sweeper,
// all wired through the Persistence Gateway's optimistic updates and the
// Outbox Engine's transactional append.
type Engine struct {
	gw      *gateway.Gateway
	store   *Store
	cache   *CachedStore
	outbox  outbox.Appender
	logger  *slog.Logger
	metrics *metrics.Core
}

// NewEngine wires a gateway, the inventory store, and the outbox appender
// every mutating operation appends its event through in the same
// transaction. cache is optional; a nil cache disables invalidation (every
// read then goes straight to the database).
func NewEngine(gw *gateway.Gateway, store *Store, cache *CachedStore, ob outbox.Appender, logger *slog.Logger, m *metrics.Core) *Engine {
	return &Engine{gw: gw, store: store, cache: cache, outbox: ob, logger: logger, metrics: m}
}

// invalidate drops any cached balance for (itemID, locationID) after a
// mutating operation commits. Safe to call with a nil cache.
func (e *Engine) invalidate(ctx context.Context, itemID, locationID string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, itemID, locationID)
	}
}

// sortedLines returns lines ordered by (item_id, location_id) ascending, the
// deterministic lock order spec.md §4.5 requires ("acquires rows in a
// deterministic order ... to prevent deadlocks").
func sortedLines(lines []ReservationLine) []ReservationLine {
	out := make([]ReservationLine, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].LocationID < out[j].LocationID
	})
	return out
}

// Reserve implements spec.md §4.5's reserve() protocol: lock each balance in
// deterministic order, verify availability, allocate, insert Active
// reservations, append Allocate transactions and the inventory.reserved
// event, all within one transaction. Any line failing availability fails
// the whole batch with the first offending item (spec.md §4.5 step 2).
func (e *Engine) Reserve(ctx context.Context, lines []ReservationLine, ttl time.Duration, actor string) (out ReservationBatch, err error) {
	ctx, span := tracing.Start(ctx, "inventory.reserve")
	defer tracing.End(span, &err)

	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	ordered := sortedLines(lines)
	expiresAt := time.Now().UTC().Add(ttl)

	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		var reservations []Reservation
		for _, line := range ordered {
			balance, err := e.store.ensureBalanceRow(ctx, tx, line.ItemID, line.LocationID)
			if err != nil {
				return err
			}
			if balance.Available() < line.Quantity {
				return core.Insufficient(line.ItemID, line.Quantity, balance.Available())
			}

			balance.Allocated += line.Quantity
			if outcome, err := e.store.updateBalance(ctx, tx, balance); err != nil {
				return err
			} else if outcome == gateway.Stale {
				return core.StaleVersion("inventory_balance", line.ItemID+"@"+line.LocationID, balance.Version)
			}

			r, err := e.store.insertReservation(ctx, tx, Reservation{
				ItemID:        line.ItemID,
				LocationID:    line.LocationID,
				Quantity:      line.Quantity,
				ReferenceType: line.ReferenceType,
				ReferenceID:   line.ReferenceID,
				Status:        ReservationActive,
				ExpiresAt:     &expiresAt,
			})
			if err != nil {
				return err
			}

			if err := e.store.insertTransaction(ctx, tx, Transaction{
				ItemID:     line.ItemID,
				LocationID: line.LocationID,
				Kind:       TxAllocate,
				Delta:      line.Quantity,
				Before:     balance.Allocated - line.Quantity,
				After:      balance.Allocated,
				Reference:  r.ID,
				Actor:      actor,
			}); err != nil {
				return err
			}

			reservations = append(reservations, r)
		}

		evt, err := outbox.New("inventory_reservation", "", "inventory.reserved", ordered[0].ReferenceID, reservations)
		if err != nil {
			return fmt.Errorf("inventory: failed to build inventory.reserved event: %w", err)
		}
		if err := e.outbox.Append(ctx, tx, evt); err != nil {
			return err
		}

		out = ReservationBatch{Reservations: reservations}
		return nil
	})
	if err != nil {
		return ReservationBatch{}, err
	}
	for _, line := range ordered {
		e.invalidate(ctx, line.ItemID, line.LocationID)
	}
	if e.metrics != nil {
		e.metrics.ReservationOutcomes.WithLabelValues("reserved").Inc()
	}
	return out, nil
}

// Release reverses a Reserve line: deallocates the balance and marks the
// reservation Released. Safe to call on an already-released reservation,
// which returns early without error.
func (e *Engine) Release(ctx context.Context, reservationID, actor string) (err error) {
	ctx, span := tracing.Start(ctx, "inventory.release", attribute.String("reservation_id", reservationID))
	defer tracing.End(span, &err)

	var released Reservation
	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		r, err := e.store.getReservationForUpdate(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != ReservationActive {
			return nil
		}
		released = r

		balance, ok, err := e.store.lockBalanceForUpdate(ctx, tx, r.ItemID, r.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return core.NotFound("inventory_balance", r.ItemID+"@"+r.LocationID)
		}

		before := balance.Allocated
		balance.Allocated -= r.Quantity
		if outcome, err := e.store.updateBalance(ctx, tx, balance); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("inventory_balance", r.ItemID+"@"+r.LocationID, balance.Version)
		}

		if err := e.store.setReservationStatus(ctx, tx, r.ID, ReservationReleased); err != nil {
			return err
		}

		if err := e.store.insertTransaction(ctx, tx, Transaction{
			ItemID: r.ItemID, LocationID: r.LocationID, Kind: TxDeallocate,
			Delta: -r.Quantity, Before: before, After: balance.Allocated, Reference: r.ID, Actor: actor,
		}); err != nil {
			return err
		}

		evt, err := outbox.New("inventory_reservation", r.ID, "inventory.released", r.ReferenceID, r)
		if err != nil {
			return fmt.Errorf("inventory: failed to build inventory.released event: %w", err)
		}
		return e.outbox.Append(ctx, tx, evt)
	})
	if err == nil && released.ID != "" {
		e.invalidate(ctx, released.ItemID, released.LocationID)
		if e.metrics != nil {
			e.metrics.ReservationOutcomes.WithLabelValues("released").Inc()
		}
	}
	return err
}

// Consume converts a reservation into a permanent reduction of on_hand,
// called when the referenced order ships (spec.md §4.5 consume()). If the
// item is lot-tracked, it draws from lots per the item's configured policy
// and returns any ExpiredLotAlerts for lots it had to skip.
func (e *Engine) Consume(ctx context.Context, reservationID, actor string) (alerts []ExpiredLotAlert, err error) {
	ctx, span := tracing.Start(ctx, "inventory.consume", attribute.String("reservation_id", reservationID))
	defer tracing.End(span, &err)

	var consumed Reservation
	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		r, err := e.store.getReservationForUpdate(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != ReservationActive {
			return core.InvalidTransition("inventory_reservation", string(r.Status), string(ReservationConsumed))
		}
		consumed = r

		balance, ok, err := e.store.lockBalanceForUpdate(ctx, tx, r.ItemID, r.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return core.NotFound("inventory_balance", r.ItemID+"@"+r.LocationID)
		}

		item, err := e.store.GetItem(ctx, r.ItemID)
		if err != nil && core.KindOf(err) != core.KindNotFound {
			return err
		}
		if item.LotTracked {
			skipped, err := e.consumeLots(ctx, tx, item, r.LocationID, r.Quantity)
			if err != nil {
				return err
			}
			alerts = skipped
		}

		beforeOnHand := balance.OnHand
		balance.OnHand -= r.Quantity
		balance.Allocated -= r.Quantity
		if outcome, err := e.store.updateBalance(ctx, tx, balance); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("inventory_balance", r.ItemID+"@"+r.LocationID, balance.Version)
		}

		if err := e.store.setReservationStatus(ctx, tx, r.ID, ReservationConsumed); err != nil {
			return err
		}

		if err := e.store.insertTransaction(ctx, tx, Transaction{
			ItemID: r.ItemID, LocationID: r.LocationID, Kind: TxShip,
			Delta: -r.Quantity, Before: beforeOnHand, After: balance.OnHand, Reference: r.ID, Actor: actor,
		}); err != nil {
			return err
		}

		evt, err := outbox.New("inventory_reservation", r.ID, "inventory.shipped", r.ReferenceID, r)
		if err != nil {
			return fmt.Errorf("inventory: failed to build inventory.shipped event: %w", err)
		}
		return e.outbox.Append(ctx, tx, evt)
	})
	if err == nil {
		e.invalidate(ctx, consumed.ItemID, consumed.LocationID)
		if e.metrics != nil {
			e.metrics.ReservationOutcomes.WithLabelValues("consumed").Inc()
		}
	}
	return alerts, err
}

// consumeLots draws quantity from an item's lots at locationID per its
// configured policy, skipping expired lots and recording an alert for each
// one skipped (SPEC_FULL.md's lot-alert expansion of spec.md §4.5).
func (e *Engine) consumeLots(ctx context.Context, tx *gateway.Tx, item Item, locationID string, quantity int64) ([]ExpiredLotAlert, error) {
	lots, err := e.store.listLots(ctx, tx, item.ID, locationID, item.LotPolicy)
	if err != nil {
		return nil, err
	}

	var alerts []ExpiredLotAlert
	remaining := quantity
	today := time.Now().UTC()
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		if lot.ExpirationDate != nil && lot.ExpirationDate.Before(today) {
			alerts = append(alerts, ExpiredLotAlert{
				ItemID: lot.ItemID, LocationID: lot.LocationID,
				LotNumber: lot.LotNumber, ExpirationDate: *lot.ExpirationDate,
			})
			continue
		}
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}
		if err := e.store.decrementLot(ctx, tx, lot, take); err != nil {
			return nil, err
		}
		remaining -= take
	}
	if remaining > 0 {
		return nil, core.Insufficient(item.ID, quantity, quantity-remaining)
	}
	return alerts, nil
}

// Receive increases on_hand for (item, location), optionally into a named
// lot, and appends a Receive transaction and inventory.received event
// (spec.md §4.5 receive()).
func (e *Engine) Receive(ctx context.Context, itemID, locationID string, quantity int64, lot *Lot, actor string) (err error) {
	ctx, span := tracing.Start(ctx, "inventory.receive", attribute.String("item_id", itemID))
	defer tracing.End(span, &err)

	if quantity <= 0 {
		return core.New(core.KindValidation, "INVALID_QUANTITY", "receive quantity must be positive")
	}

	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		balance, err := e.store.ensureBalanceRow(ctx, tx, itemID, locationID)
		if err != nil {
			return err
		}

		before := balance.OnHand
		balance.OnHand += quantity
		if outcome, err := e.store.updateBalance(ctx, tx, balance); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("inventory_balance", itemID+"@"+locationID, balance.Version)
		}

		if lot != nil {
			l := *lot
			l.ItemID = itemID
			l.LocationID = locationID
			l.Quantity = quantity
			if l.Status == "" {
				l.Status = "ACTIVE"
			}
			if err := e.store.upsertLot(ctx, tx, l); err != nil {
				return err
			}
		}

		if err := e.store.insertTransaction(ctx, tx, Transaction{
			ItemID: itemID, LocationID: locationID, Kind: TxReceive,
			Delta: quantity, Before: before, After: balance.OnHand, Actor: actor,
		}); err != nil {
			return err
		}

		evt, err := outbox.New("inventory_balance", itemID, "inventory.received", itemID, map[string]any{
			"item_id": itemID, "location_id": locationID, "quantity": quantity,
		})
		if err != nil {
			return fmt.Errorf("inventory: failed to build inventory.received event: %w", err)
		}
		return e.outbox.Append(ctx, tx, evt)
	})
	if err == nil {
		e.invalidate(ctx, itemID, locationID)
	}
	return err
}

// Transfer moves quantity from one location to another for the same item,
// atomically decrementing on_hand at from and incrementing it at to (spec.md
// §4.5 transfer()). Lines are locked in (item, location) order to avoid
// deadlocking against a concurrent reverse transfer.
func (e *Engine) Transfer(ctx context.Context, itemID, from, to string, quantity int64, actor string) (err error) {
	ctx, span := tracing.Start(ctx, "inventory.transfer", attribute.String("item_id", itemID))
	defer tracing.End(span, &err)

	if quantity <= 0 {
		return core.New(core.KindValidation, "INVALID_QUANTITY", "transfer quantity must be positive")
	}

	firstLoc, secondLoc := from, to
	if secondLoc < firstLoc {
		firstLoc, secondLoc = secondLoc, firstLoc
	}

	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		firstBalance, err := e.store.ensureBalanceRow(ctx, tx, itemID, firstLoc)
		if err != nil {
			return err
		}
		secondBalance, err := e.store.ensureBalanceRow(ctx, tx, itemID, secondLoc)
		if err != nil {
			return err
		}

		balances := map[string]Balance{firstLoc: firstBalance, secondLoc: secondBalance}
		fromBalance, toBalance := balances[from], balances[to]

		if fromBalance.Available() < quantity {
			return core.Insufficient(itemID, quantity, fromBalance.Available())
		}

		fromBefore := fromBalance.OnHand
		fromBalance.OnHand -= quantity
		if outcome, err := e.store.updateBalance(ctx, tx, fromBalance); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("inventory_balance", itemID+"@"+from, fromBalance.Version)
		}

		toBefore := toBalance.OnHand
		toBalance.OnHand += quantity
		if outcome, err := e.store.updateBalance(ctx, tx, toBalance); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("inventory_balance", itemID+"@"+to, toBalance.Version)
		}

		if err := e.store.insertTransaction(ctx, tx, Transaction{
			ItemID: itemID, LocationID: from, Kind: TxTransferOut,
			Delta: -quantity, Before: fromBefore, After: fromBalance.OnHand, Actor: actor,
		}); err != nil {
			return err
		}
		if err := e.store.insertTransaction(ctx, tx, Transaction{
			ItemID: itemID, LocationID: to, Kind: TxTransferIn,
			Delta: quantity, Before: toBefore, After: toBalance.OnHand, Actor: actor,
		}); err != nil {
			return err
		}

		evt, err := outbox.New("inventory_balance", itemID, "inventory.transferred", itemID, map[string]any{
			"item_id": itemID, "from": from, "to": to, "quantity": quantity,
		})
		if err != nil {
			return fmt.Errorf("inventory: failed to build inventory.transferred event: %w", err)
		}
		return e.outbox.Append(ctx, tx, evt)
	})
	if err == nil {
		e.invalidate(ctx, itemID, from)
		e.invalidate(ctx, itemID, to)
	}
	return err
}

// Adjust applies delta (positive or negative) to on_hand directly, used by
// cycle counts and shrinkage corrections (spec.md §4.5 adjust()). on_hand
// may never drop below allocated as a result.
func (e *Engine) Adjust(ctx context.Context, itemID, locationID string, delta int64, reason, actor string) (err error) {
	ctx, span := tracing.Start(ctx, "inventory.adjust", attribute.String("item_id", itemID))
	defer tracing.End(span, &err)

	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		balance, err := e.store.ensureBalanceRow(ctx, tx, itemID, locationID)
		if err != nil {
			return err
		}

		before := balance.OnHand
		newOnHand := balance.OnHand + delta
		if newOnHand < balance.Allocated {
			return core.New(core.KindValidation, "ADJUST_BELOW_ALLOCATED",
				fmt.Sprintf("adjustment would drop on_hand to %d, below allocated %d", newOnHand, balance.Allocated))
		}
		balance.OnHand = newOnHand
		if outcome, err := e.store.updateBalance(ctx, tx, balance); err != nil {
			return err
		} else if outcome == gateway.Stale {
			return core.StaleVersion("inventory_balance", itemID+"@"+locationID, balance.Version)
		}

		if err := e.store.insertTransaction(ctx, tx, Transaction{
			ItemID: itemID, LocationID: locationID, Kind: TxAdjust,
			Delta: delta, Before: before, After: balance.OnHand, Reference: reason, Actor: actor,
		}); err != nil {
			return err
		}

		evt, err := outbox.New("inventory_balance", itemID, "inventory.adjusted", itemID, map[string]any{
			"item_id": itemID, "location_id": locationID, "delta": delta, "reason": reason,
		})
		if err != nil {
			return fmt.Errorf("inventory: failed to build inventory.adjusted event: %w", err)
		}
		return e.outbox.Append(ctx, tx, evt)
	})
	if err == nil {
		e.invalidate(ctx, itemID, locationID)
	}
	return err
}

// CycleCount reconciles a counted on_hand quantity against the system
// balance for (item, location), applying the difference through Adjust.
// This is the SPEC_FULL.md-added operation generalizing Tim275-oms's manual
// DecrementQuantity into a full count-and-reconcile workflow.
func (e *Engine) CycleCount(ctx context.Context, itemID, locationID string, countedOnHand int64, actor string) (err error) {
	balance, err := e.store.GetBalance(ctx, itemID, locationID)
	if err != nil && core.KindOf(err) != core.KindNotFound {
		return err
	}
	delta := countedOnHand - balance.OnHand
	if delta == 0 {
		return nil
	}
	return e.Adjust(ctx, itemID, locationID, delta, "cycle_count", actor)
}

// ExpireReservations is the periodic sweeper of spec.md §4.5's "Expiry"
// section: it claims a batch of Active reservations past expires_at using
// SKIP LOCKED (restart-safe, multi-node-safe), reverses their allocation,
// and marks them Expired, one reservation per sub-transaction so a single
// poisoned row can't block the rest of the batch.
func (e *Engine) ExpireReservations(ctx context.Context, batchSize int) (expired int, err error) {
	if batchSize <= 0 {
		batchSize = DefaultExpirySweepBatch
	}

	var candidates []Reservation
	err = e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
		var err error
		candidates, err = e.store.listExpiredActiveReservations(ctx, tx, batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, r := range candidates {
		sweepErr := e.gw.WithTx(ctx, func(ctx context.Context, tx *gateway.Tx) error {
			fresh, err := e.store.getReservationForUpdate(ctx, tx, r.ID)
			if err != nil {
				return err
			}
			if fresh.Status != ReservationActive {
				return nil
			}

			balance, ok, err := e.store.lockBalanceForUpdate(ctx, tx, fresh.ItemID, fresh.LocationID)
			if err != nil {
				return err
			}
			if !ok {
				return core.NotFound("inventory_balance", fresh.ItemID+"@"+fresh.LocationID)
			}

			before := balance.Allocated
			balance.Allocated -= fresh.Quantity
			if outcome, err := e.store.updateBalance(ctx, tx, balance); err != nil {
				return err
			} else if outcome == gateway.Stale {
				return core.StaleVersion("inventory_balance", fresh.ItemID+"@"+fresh.LocationID, balance.Version)
			}

			if err := e.store.setReservationStatus(ctx, tx, fresh.ID, ReservationExpired); err != nil {
				return err
			}

			if err := e.store.insertTransaction(ctx, tx, Transaction{
				ItemID: fresh.ItemID, LocationID: fresh.LocationID, Kind: TxDeallocate,
				Delta: -fresh.Quantity, Before: before, After: balance.Allocated, Reference: fresh.ID, Actor: "sweeper",
			}); err != nil {
				return err
			}

			evt, err := outbox.New("inventory_reservation", fresh.ID, "inventory.expired", fresh.ReferenceID, fresh)
			if err != nil {
				return fmt.Errorf("inventory: failed to build inventory.expired event: %w", err)
			}
			return e.outbox.Append(ctx, tx, evt)
		})
		if sweepErr != nil {
			e.logger.Error("inventory: failed to expire reservation", slog.String("reservation_id", r.ID), slog.Any("error", sweepErr))
			continue
		}
		e.invalidate(ctx, r.ItemID, r.LocationID)
		expired++
	}
	if e.metrics != nil && expired > 0 {
		e.metrics.ReservationOutcomes.WithLabelValues("expired").Add(float64(expired))
	}
	return expired, nil
}

// Probe reports whether itemID has any available quantity across
// locationIDs, used by the checkout engine's fulfillment-option resolution
// (spec.md §4.7: "all items available in some location"). A missing balance
// row counts as zero available rather than an error.
func (e *Engine) Probe(ctx context.Context, itemID string, locationIDs []string) (bool, error) {
	for _, loc := range locationIDs {
		balance, err := e.store.GetBalance(ctx, itemID, loc)
		if err != nil {
			if core.KindOf(err) == core.KindNotFound {
				continue
			}
			return false, err
		}
		if balance.Available() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// RunSweeper runs ExpireReservations on a ticker until ctx is cancelled, the
// same run-until-cancelled shape as the outbox dispatcher.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireReservations(ctx, DefaultExpirySweepBatch); err != nil {
				e.logger.Error("inventory: sweeper tick failed", slog.Any("error", err))
			}
		}
	}
}
