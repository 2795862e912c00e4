package order

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/gateway"
	"github.com/timour/stateset-core/internal/money"
)

// Store is the Postgres-backed data-access surface for orders and
// order_items, generalizing Tim275-oms's orders/store.go (Mongo bson.M
// document CRUD) onto the version-column optimistic-locking model
// internal/gateway provides.
type Store struct {
	gw *gateway.Gateway
}

// NewStore wraps a Gateway.
func NewStore(gw *gateway.Gateway) *Store {
	return &Store{gw: gw}
}

// NextOrderNumber allocates the next monotonic order_number for tenantID
// within tx, per spec.md §3 ("order_number ... monotonic per tenant").
func (s *Store) NextOrderNumber(ctx context.Context, tx *gateway.Tx, tenantID string) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO order_number_counters (tenant_id, next_value)
		VALUES ($1, 2)
		ON CONFLICT (tenant_id) DO UPDATE SET next_value = order_number_counters.next_value + 1
		RETURNING next_value - 1
	`, tenantID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("order: failed to allocate order number for tenant %s: %w", tenantID, err)
	}
	return next, nil
}

// Insert creates a new order row plus its items within tx. o.ID and
// o.OrderNumber must already be set.
func (s *Store) Insert(ctx context.Context, tx *gateway.Tx, o Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders
			(id, order_number, tenant_id, customer_id, status, currency,
			 subtotal_amount, tax_amount, shipping_amount, discount_amount, total_amount,
			 billing_address, shipping_address, notes, tags, payment_intent_id, prior_status, merged_into,
			 version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,1,now(),now())
	`, o.ID, o.OrderNumber, o.TenantID, o.CustomerID, o.Status, o.Currency,
		o.Subtotal.Amount, o.Tax.Amount, o.Shipping.Amount, o.Discount.Amount, o.Total.Amount,
		addressJSON(o.BillingAddress), addressJSON(o.ShippingAddress), pq.Array(o.Notes), pq.Array(o.Tags),
		nullString(o.PaymentIntentID), nullString(string(o.PriorStatus)), nullString(o.MergedInto))
	if err != nil {
		return fmt.Errorf("order: failed to insert order %s: %w", o.ID, err)
	}
	for _, item := range o.Items {
		if err := s.insertItem(ctx, tx, o.ID, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertItem(ctx context.Context, tx *gateway.Tx, orderID string, item Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, sku, quantity, unit_amount, discount_amount, tax_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.ID, orderID, item.ProductID, item.SKU, item.Quantity, item.UnitPrice.Amount, item.LineDiscount.Amount, item.LineTax.Amount)
	if err != nil {
		return fmt.Errorf("order: failed to insert item %s for order %s: %w", item.ID, orderID, err)
	}
	return nil
}

// Get loads an order and its items outside any transaction (a query per
// spec.md §2: "Queries bypass the mediator's transaction machinery").
func (s *Store) Get(ctx context.Context, id string) (Order, error) {
	o, err := s.scanOrder(ctx, s.gw.ReadDB().QueryRowContext(ctx, selectOrderSQL+" WHERE id = $1", id))
	if err != nil {
		return Order{}, err
	}
	items, err := s.listItems(ctx, s.gw.ReadDB(), id)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

// getForUpdate loads an order with FOR UPDATE inside tx, the lock every
// mutating handler takes before checking its version and transition.
func (s *Store) getForUpdate(ctx context.Context, tx *gateway.Tx, id string) (Order, error) {
	o, err := s.scanOrder(ctx, tx.QueryRowContext(ctx, selectOrderSQL+" WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return Order{}, err
	}
	items, err := s.listItems(ctx, tx, id)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

const selectOrderSQL = `
	SELECT id, order_number, tenant_id, customer_id, status, currency,
	       subtotal_amount, tax_amount, shipping_amount, discount_amount, total_amount,
	       billing_address, shipping_address, notes, tags,
	       coalesce(payment_intent_id::text, ''), coalesce(prior_status, ''), coalesce(merged_into::text, ''),
	       version, created_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOrder(ctx context.Context, row rowScanner) (Order, error) {
	var o Order
	var billing, shipping []byte
	var notes, tags pq.StringArray
	var priorStatus string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.TenantID, &o.CustomerID, &o.Status, &o.Currency,
		&o.Subtotal.Amount, &o.Tax.Amount, &o.Shipping.Amount, &o.Discount.Amount, &o.Total.Amount,
		&billing, &shipping, &notes, &tags,
		&o.PaymentIntentID, &priorStatus, &o.MergedInto,
		&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return Order{}, core.NotFound("order", "")
	}
	if err != nil {
		return Order{}, fmt.Errorf("order: failed to scan order: %w", err)
	}
	o.PriorStatus = Status(priorStatus)
	o.Notes = []string(notes)
	o.Tags = []string(tags)
	o.BillingAddress = addressFromJSON(billing)
	o.ShippingAddress = addressFromJSON(shipping)
	o.Subtotal.Currency, o.Tax.Currency, o.Shipping.Currency, o.Discount.Currency, o.Total.Currency = o.Currency, o.Currency, o.Currency, o.Currency, o.Currency
	return o, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) listItems(ctx context.Context, q querier, orderID string) ([]Item, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, sku, quantity, unit_amount, discount_amount, tax_amount
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: failed to list items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.SKU, &it.Quantity, &it.UnitPrice.Amount, &it.LineDiscount.Amount, &it.LineTax.Amount); err != nil {
			return nil, fmt.Errorf("order: failed to scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateOptimistic writes o's mutable fields guarded by o.Version, per
// spec.md §4.1, incrementing the version. Returns gateway.Stale when
// another writer already advanced the row.
func (s *Store) UpdateOptimistic(ctx context.Context, tx *gateway.Tx, o Order) (gateway.Outcome, error) {
	outcome, err := tx.ExecOptimistic(ctx, `
		UPDATE orders
		SET status = $1, prior_status = $2, subtotal_amount = $3, tax_amount = $4, shipping_amount = $5,
		    discount_amount = $6, total_amount = $7, notes = $8, tags = $9,
		    payment_intent_id = $10, merged_into = $11, version = version + 1, updated_at = now()
		WHERE id = $12 AND version = $13
	`, o.Status, nullString(string(o.PriorStatus)), o.Subtotal.Amount, o.Tax.Amount, o.Shipping.Amount,
		o.Discount.Amount, o.Total.Amount, pq.Array(o.Notes), pq.Array(o.Tags),
		nullString(o.PaymentIntentID), nullString(o.MergedInto), o.ID, o.Version)
	if err != nil {
		return outcome, fmt.Errorf("order: failed to update order %s: %w", o.ID, err)
	}
	return outcome, nil
}

// ReplaceItems deletes and reinserts o's items, used by split() when moving
// lines between orders. Items are immutable once Shipped (spec.md §3), so
// callers must only do this in Draft/Pending/Allocated.
func (s *Store) ReplaceItems(ctx context.Context, tx *gateway.Tx, orderID string, items []Item) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("order: failed to clear items for order %s: %w", orderID, err)
	}
	for _, item := range items {
		if err := s.insertItem(ctx, tx, orderID, item); err != nil {
			return err
		}
	}
	return nil
}

// LinkReservations records the surrogate order->reservation links spec.md
// §9 calls for.
func (s *Store) LinkReservations(ctx context.Context, tx *gateway.Tx, orderID string, reservationIDs []string) error {
	for _, rID := range reservationIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_reservations (order_id, reservation_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, orderID, rID)
		if err != nil {
			return fmt.Errorf("order: failed to link reservation %s to order %s: %w", rID, orderID, err)
		}
	}
	return nil
}

// ReservationIDs returns every reservation id linked to orderID.
func (s *Store) ReservationIDs(ctx context.Context, tx *gateway.Tx, orderID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT reservation_id FROM order_reservations WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: failed to list reservations for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("order: failed to scan reservation id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func addressJSON(a *Address) []byte {
	if a == nil {
		return nil
	}
	b, _ := marshalAddress(a)
	return b
}

func addressFromJSON(b []byte) *Address {
	if len(b) == 0 {
		return nil
	}
	a, err := unmarshalAddress(b)
	if err != nil {
		return nil
	}
	return a
}

var _ = money.Money{} // keep money imported for callers constructing Order fields from this package
