package checkout

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/timour/stateset-core/internal/core"
	"github.com/timour/stateset-core/internal/gateway"
)

// IntentStore is the Postgres-backed store for PaymentIntent, generalizing
// internal/inventory/store.go's querier/FOR UPDATE pattern onto a row with
// no version column: spec.md §3 says intents "transition only forward", so
// a plain row lock is enough to serialize the authorize->capture->void
// sequence without needing optimistic retry.
type IntentStore struct {
	gw *gateway.Gateway
}

// NewIntentStore wraps a Gateway.
func NewIntentStore(gw *gateway.Gateway) *IntentStore {
	return &IntentStore{gw: gw}
}

// Insert creates a new PaymentIntent row within tx. intent.ID is generated
// if empty.
func (s *IntentStore) Insert(ctx context.Context, tx *gateway.Tx, intent PaymentIntent) (PaymentIntent, error) {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payment_intents
			(id, session_id, order_id, status, amount, currency, provider, provider_ref,
			 authorized_at, captured_at, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),NULL,'')
	`, intent.ID, nullString(intent.SessionID), nullString(intent.OrderID), intent.Status,
		intent.Amount.Amount, intent.Amount.Currency, intent.Provider, intent.ProviderRef)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("checkout: failed to insert payment intent %s: %w", intent.ID, err)
	}
	return intent, nil
}

// GetForUpdate locks a PaymentIntent row inside tx, for a caller that wants
// to validate its current status before a transition. The engine's own
// transitions call UpdateStatus without taking this lock first.
func (s *IntentStore) GetForUpdate(ctx context.Context, tx *gateway.Tx, id string) (PaymentIntent, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, coalesce(session_id::text,''), coalesce(order_id::text,''), status,
		       amount, currency, provider, provider_ref, authorized_at, captured_at, last_error
		FROM payment_intents WHERE id = $1 FOR UPDATE
	`, id)
	return scanIntent(row)
}

// Get loads a PaymentIntent outside any transaction, for read-only callers.
func (s *IntentStore) Get(ctx context.Context, id string) (PaymentIntent, error) {
	row := s.gw.ReadDB().QueryRowContext(ctx, `
		SELECT id, coalesce(session_id::text,''), coalesce(order_id::text,''), status,
		       amount, currency, provider, provider_ref, authorized_at, captured_at, last_error
		FROM payment_intents WHERE id = $1
	`, id)
	return scanIntent(row)
}

func scanIntent(row *sql.Row) (PaymentIntent, error) {
	var intent PaymentIntent
	var capturedAt sql.NullTime
	err := row.Scan(&intent.ID, &intent.SessionID, &intent.OrderID, &intent.Status,
		&intent.Amount.Amount, &intent.Amount.Currency, &intent.Provider, &intent.ProviderRef,
		&intent.AuthorizedAt, &capturedAt, &intent.LastError)
	if err == sql.ErrNoRows {
		return PaymentIntent{}, core.NotFound("payment_intent", "")
	}
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("checkout: failed to scan payment intent: %w", err)
	}
	if capturedAt.Valid {
		intent.CapturedAt = &capturedAt.Time
	}
	return intent, nil
}

// UpdateStatus moves an intent forward to status, optionally setting
// orderID and/or lastError. Callers are expected to have validated the
// transition themselves (the allowed forward edges are Authorized->Captured,
// Authorized->Canceled, Authorized->Failed).
func (s *IntentStore) UpdateStatus(ctx context.Context, tx *gateway.Tx, id string, status PaymentIntentStatus, orderID, lastError string) error {
	var err error
	if status == IntentCaptured {
		_, err = tx.ExecContext(ctx, `
			UPDATE payment_intents SET status = $1, order_id = coalesce(nullif($2, ''), order_id),
			       last_error = $3, captured_at = now()
			WHERE id = $4
		`, status, orderID, lastError, id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE payment_intents SET status = $1, order_id = coalesce(nullif($2, ''), order_id), last_error = $3
			WHERE id = $4
		`, status, orderID, lastError, id)
	}
	if err != nil {
		return fmt.Errorf("checkout: failed to update payment intent %s: %w", id, err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
