package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/gateway"
)

// Store is the Postgres-backed data-access surface for inventory_items,
// inventory_balances, inventory_reservations, inventory_transactions, and
// inventory_lots. Generalizes Tim275-oms's store_postgres.go (single
// quantity/reserved_quantity columns on one items table) into the spec's
// on_hand/allocated/version balance model plus a separate append-only
// transaction log.
type Store struct {
	gw *gateway.Gateway
}

// NewStore wraps a Gateway.
func NewStore(gw *gateway.Gateway) *Store {
	return &Store{gw: gw}
}

// GetItem loads an item master by id.
func (s *Store) GetItem(ctx context.Context, id string) (Item, error) {
	var it Item
	err := s.gw.ReadDB().QueryRowContext(ctx, `
		SELECT id, sku, description, uom, reorder_point, safety_stock, lot_tracked, lot_policy
		FROM inventory_items WHERE id = $1
	`, id).Scan(&it.ID, &it.SKU, &it.Description, &it.UoM, &it.ReorderPoint, &it.SafetyStock, &it.LotTracked, &it.LotPolicy)
	if err == sql.ErrNoRows {
		return Item{}, core.NotFound("inventory_item", id)
	}
	if err != nil {
		return Item{}, fmt.Errorf("inventory: failed to get item %s: %w", id, err)
	}
	return it, nil
}

// GetBalance loads a single (item, location) balance row. Returns a
// core.NotFound error if no row exists yet.
func (s *Store) GetBalance(ctx context.Context, itemID, locationID string) (Balance, error) {
	return s.getBalance(ctx, s.gw.ReadDB(), itemID, locationID)
}

func (s *Store) getBalance(ctx context.Context, q querier, itemID, locationID string) (Balance, error) {
	var b Balance
	err := q.QueryRowContext(ctx, `
		SELECT item_id, location_id, on_hand, allocated, version, last_movement_at
		FROM inventory_balances WHERE item_id = $1 AND location_id = $2
	`, itemID, locationID).Scan(&b.ItemID, &b.LocationID, &b.OnHand, &b.Allocated, &b.Version, &b.LastMovementAt)
	if err == sql.ErrNoRows {
		return Balance{}, core.NotFound("inventory_balance", itemID+"@"+locationID)
	}
	if err != nil {
		return Balance{}, fmt.Errorf("inventory: failed to get balance %s@%s: %w", itemID, locationID, err)
	}
	return b, nil
}

// querier is satisfied by both *sql.DB and *gateway.Tx, letting read helpers
// run either outside or inside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// lockBalanceForUpdate reads a balance row with FOR UPDATE inside tx, used
// by every mutating operation to serialize concurrent writers on the same
// row (spec.md §4.5: "lock the balance row (or read with version)"). Unlike
// GetBalance this never returns core.NotFound silently useful for the
// caller to decide whether to initialize a zero balance.
func (s *Store) lockBalanceForUpdate(ctx context.Context, tx *gateway.Tx, itemID, locationID string) (Balance, bool, error) {
	var b Balance
	err := tx.QueryRowContext(ctx, `
		SELECT item_id, location_id, on_hand, allocated, version, last_movement_at
		FROM inventory_balances WHERE item_id = $1 AND location_id = $2
		FOR UPDATE
	`, itemID, locationID).Scan(&b.ItemID, &b.LocationID, &b.OnHand, &b.Allocated, &b.Version, &b.LastMovementAt)
	if err == sql.ErrNoRows {
		return Balance{}, false, nil
	}
	if err != nil {
		return Balance{}, false, fmt.Errorf("inventory: failed to lock balance %s@%s: %w", itemID, locationID, err)
	}
	return b, true, nil
}

// ensureBalanceRow creates a zero balance row if one doesn't exist, then
// locks and returns it, so every mutating path can assume a row is present.
func (s *Store) ensureBalanceRow(ctx context.Context, tx *gateway.Tx, itemID, locationID string) (Balance, error) {
	b, ok, err := s.lockBalanceForUpdate(ctx, tx, itemID, locationID)
	if err != nil {
		return Balance{}, err
	}
	if ok {
		return b, nil
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_balances (item_id, location_id, on_hand, allocated, version, last_movement_at)
		VALUES ($1, $2, 0, 0, 1, now())
		ON CONFLICT (item_id, location_id) DO NOTHING
	`, itemID, locationID)
	if err != nil {
		return Balance{}, fmt.Errorf("inventory: failed to initialize balance %s@%s: %w", itemID, locationID, err)
	}
	b, ok, err = s.lockBalanceForUpdate(ctx, tx, itemID, locationID)
	if err != nil {
		return Balance{}, err
	}
	if !ok {
		return Balance{}, fmt.Errorf("inventory: balance %s@%s missing immediately after insert", itemID, locationID)
	}
	return b, nil
}

// updateBalance applies the optimistic compare-and-set described in
// spec.md §4.1, writing on_hand/allocated and incrementing version only if
// the row's version still matches expected.
func (s *Store) updateBalance(ctx context.Context, tx *gateway.Tx, b Balance) (gateway.Outcome, error) {
	outcome, err := tx.ExecOptimistic(ctx, `
		UPDATE inventory_balances
		SET on_hand = $1, allocated = $2, version = version + 1, last_movement_at = now()
		WHERE item_id = $3 AND location_id = $4 AND version = $5
	`, b.OnHand, b.Allocated, b.ItemID, b.LocationID, b.Version)
	if err != nil {
		return outcome, fmt.Errorf("inventory: failed to update balance %s@%s: %w", b.ItemID, b.LocationID, err)
	}
	return outcome, nil
}

// insertReservation inserts an Active reservation row within tx.
func (s *Store) insertReservation(ctx context.Context, tx *gateway.Tx, r Reservation) (Reservation, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_reservations
			(id, item_id, location_id, quantity, reference_type, reference_id, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.ItemID, r.LocationID, r.Quantity, r.ReferenceType, r.ReferenceID, r.Status, r.ExpiresAt, r.CreatedAt)
	if err != nil {
		return Reservation{}, fmt.Errorf("inventory: failed to insert reservation for %s@%s: %w", r.ItemID, r.LocationID, err)
	}
	return r, nil
}

// getReservationForUpdate loads a reservation row with FOR UPDATE so its status
// transition is serialized against concurrent release/consume/expiry.
func (s *Store) getReservationForUpdate(ctx context.Context, tx *gateway.Tx, id string) (Reservation, error) {
	var r Reservation
	err := tx.QueryRowContext(ctx, `
		SELECT id, item_id, location_id, quantity, reference_type, reference_id, status, expires_at, created_at
		FROM inventory_reservations WHERE id = $1
		FOR UPDATE
	`, id).Scan(&r.ID, &r.ItemID, &r.LocationID, &r.Quantity, &r.ReferenceType, &r.ReferenceID, &r.Status, &r.ExpiresAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return Reservation{}, core.NotFound("inventory_reservation", id)
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("inventory: failed to lock reservation %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) setReservationStatus(ctx context.Context, tx *gateway.Tx, id string, status ReservationStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE inventory_reservations SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("inventory: failed to set reservation %s status %s: %w", id, status, err)
	}
	return nil
}

// listExpiredActiveReservations returns up to limit Active reservations
// past their expiry, for the sweeper (spec.md §4.5 "Expiry").
func (s *Store) listExpiredActiveReservations(ctx context.Context, tx *gateway.Tx, limit int) ([]Reservation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, item_id, location_id, quantity, reference_type, reference_id, status, expires_at, created_at
		FROM inventory_reservations
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < now()
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, ReservationActive, limit)
	if err != nil {
		return nil, fmt.Errorf("inventory: failed to query expired reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		if err := rows.Scan(&r.ID, &r.ItemID, &r.LocationID, &r.Quantity, &r.ReferenceType, &r.ReferenceID, &r.Status, &r.ExpiresAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("inventory: failed to scan expired reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// insertTransaction appends an audit row. Never updated after insert.
func (s *Store) insertTransaction(ctx context.Context, tx *gateway.Tx, t Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (id, item_id, location_id, kind, delta, before, after, reference, actor, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.ItemID, t.LocationID, t.Kind, t.Delta, t.Before, t.After, t.Reference, t.Actor, t.At)
	if err != nil {
		return fmt.Errorf("inventory: failed to append %s transaction for %s@%s: %w", t.Kind, t.ItemID, t.LocationID, err)
	}
	return nil
}

// listLots returns every lot for (item, location) ordered by selection
// priority: FIFO orders earliest manufacture_date first, LIFO reverses it.
// Expired lots are included (the caller skips them and records an alert) so
// the caller can distinguish "nothing left" from "only expired stock left".
func (s *Store) listLots(ctx context.Context, tx *gateway.Tx, itemID, locationID string, policy LotPolicy) ([]Lot, error) {
	order := "manufacture_date ASC NULLS LAST"
	if policy == LotLIFO {
		order = "manufacture_date DESC NULLS LAST"
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT lot_number, item_id, location_id, quantity, manufacture_date, expiration_date, cost_amount, status
		FROM inventory_lots
		WHERE item_id = $1 AND location_id = $2 AND quantity > 0
		ORDER BY %s
		FOR UPDATE
	`, order), itemID, locationID)
	if err != nil {
		return nil, fmt.Errorf("inventory: failed to list lots for %s@%s: %w", itemID, locationID, err)
	}
	defer rows.Close()

	var out []Lot
	for rows.Next() {
		var l Lot
		if err := rows.Scan(&l.LotNumber, &l.ItemID, &l.LocationID, &l.Quantity, &l.ManufactureDate, &l.ExpirationDate, &l.CostAmount, &l.Status); err != nil {
			return nil, fmt.Errorf("inventory: failed to scan lot: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) decrementLot(ctx context.Context, tx *gateway.Tx, l Lot, by int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE inventory_lots SET quantity = quantity - $1 WHERE lot_number = $2 AND item_id = $3 AND location_id = $4`,
		by, l.LotNumber, l.ItemID, l.LocationID)
	if err != nil {
		return fmt.Errorf("inventory: failed to decrement lot %s: %w", l.LotNumber, err)
	}
	return nil
}

// upsertLot increments quantity for an existing lot or inserts a new one,
// used by receive().
func (s *Store) upsertLot(ctx context.Context, tx *gateway.Tx, l Lot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_lots (lot_number, item_id, location_id, quantity, manufacture_date, expiration_date, cost_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lot_number, item_id, location_id)
		DO UPDATE SET quantity = inventory_lots.quantity + excluded.quantity
	`, l.LotNumber, l.ItemID, l.LocationID, l.Quantity, l.ManufactureDate, l.ExpirationDate, l.CostAmount, l.Status)
	if err != nil {
		return fmt.Errorf("inventory: failed to upsert lot %s: %w", l.LotNumber, err)
	}
	return nil
}
