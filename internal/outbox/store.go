package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/timour/stateset-core/internal/gateway"
)

// Appender is the narrow interface command handlers depend on: append an
// event within the caller's own transaction. Kept separate from the full
// Store so packages like internal/inventory and internal/order only need to
// know how to append, not how the dispatcher claims or marks rows.
type Appender interface {
	Append(ctx context.Context, tx *gateway.Tx, event Event) error
}

// Store is the outbox table's full data-access surface: append (used by
// command handlers) plus claim/mark (used by the dispatcher loop).
type Store struct {
	db *sql.DB
}

// NewStore wraps a *sql.DB (typically the gateway's primary pool; the
// dispatcher does its own claiming transactions independent of business
// transactions).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts event within tx, assigning an id if the caller didn't set
// one. This is the one write path into outbox_events available to command
// handlers (spec.md §3 "Ownership").
func (s *Store) Append(ctx context.Context, tx *gateway.Tx, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.AvailableAt.IsZero() {
		event.AvailableAt = time.Now().UTC()
	}
	headers, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("outbox: failed to marshal headers: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events
			(id, aggregate_type, aggregate_id, event_type, payload, headers, status, attempts, available_at, partition_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, now(), now())
	`, event.ID, event.AggregateType, event.AggregateID, event.EventType, []byte(event.Payload), headers, StatusPending, event.AvailableAt, event.PartitionKey)
	if err != nil {
		return fmt.Errorf("outbox: failed to append event %s: %w", event.EventType, err)
	}
	return nil
}

// Claim locks up to limit Pending-and-due rows using FOR UPDATE SKIP LOCKED
// so multiple dispatcher instances can run concurrently without
// double-delivering, then marks them Processing within the same
// transaction, per spec.md §4.2 steps 1-2.
func (s *Store) Claim(ctx context.Context, limit int) ([]Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("outbox: failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, headers, status, attempts, available_at, partition_key, created_at, updated_at
		FROM outbox_events
		WHERE status = $1 AND available_at <= now()
		ORDER BY partition_key, created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: failed to query claimable events: %w", err)
	}

	var events []Event
	var ids []string
	for rows.Next() {
		var e Event
		var headers []byte
		var aggID, partKey sql.NullString
		if err := rows.Scan(&e.ID, &e.AggregateType, &aggID, &e.EventType, &e.Payload, &headers, &e.Status, &e.Attempts, &e.AvailableAt, &partKey, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox: failed to scan claimable event: %w", err)
		}
		e.AggregateID = aggID.String
		e.PartitionKey = partKey.String
		if len(headers) > 0 {
			_ = json.Unmarshal(headers, &e.Headers)
		}
		events = append(events, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("outbox: rows error: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE outbox_events SET status = $1, updated_at = now() WHERE id = ANY($2)`, StatusProcessing, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("outbox: failed to mark events processing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("outbox: failed to commit claim: %w", err)
	}
	for i := range events {
		events[i].Status = StatusProcessing
	}
	return events, nil
}

// MarkDelivered transitions a claimed row to its terminal success state.
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox_events SET status = $1, processed_at = now(), updated_at = now() WHERE id = $2`, StatusDelivered, id)
	if err != nil {
		return fmt.Errorf("outbox: failed to mark %s delivered: %w", id, err)
	}
	return nil
}

// MarkRetry reverts a claimed row to Pending with a backoff delay, or to
// Failed (dead-letter) once attempts reaches MaxAttempts, per spec.md §4.2
// step 4.
func (s *Store) MarkRetry(ctx context.Context, id string, attempts int, deliveryErr error) error {
	if attempts >= MaxAttempts {
		_, err := s.db.ExecContext(ctx, `UPDATE outbox_events SET status = $1, attempts = $2, error = $3, updated_at = now() WHERE id = $4`,
			StatusFailed, attempts, deliveryErr.Error(), id)
		if err != nil {
			return fmt.Errorf("outbox: failed to dead-letter %s: %w", id, err)
		}
		return nil
	}

	availableAt := time.Now().UTC().Add(Backoff(attempts))
	_, err := s.db.ExecContext(ctx, `UPDATE outbox_events SET status = $1, attempts = $2, available_at = $3, error = $4, updated_at = now() WHERE id = $5`,
		StatusPending, attempts, availableAt, deliveryErr.Error(), id)
	if err != nil {
		return fmt.Errorf("outbox: failed to requeue %s: %w", id, err)
	}
	return nil
}

// ReleaseClaimed reverts a claimed-but-not-yet-processed row back to Pending
// without incrementing attempts, used when a dispatcher is cancelled
// mid-delivery (spec.md §5: "any claimed outbox rows are released").
func (s *Store) ReleaseClaimed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox_events SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		StatusPending, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("outbox: failed to release claimed event %s: %w", id, err)
	}
	return nil
}
