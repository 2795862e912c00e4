// Package outbox implements the Outbox Engine (spec.md §4.2): events are
// appended to a table in the same transaction as the business write that
// produced them, then drained by a background dispatcher to the in-process
// event bus and to webhook subscribers. Grounded on Tim275-oms's
// common/broker/broker.go for the exchange/DLQ/retry shape, re-targeted from
// order/payment/kitchen fan-out onto outbox row delivery.
package outbox

import (
	"encoding/json"
	"math/rand"
	"time"
)

// Status is the lifecycle state of an OutboxEvent row.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusDelivered  Status = "DELIVERED"
	StatusFailed     Status = "FAILED"
)

// MaxAttempts is the configured ceiling after which an event is marked
// Failed and left for operator attention (spec.md §4.2).
const MaxAttempts = 10

// Event is one outbox row: the business row and this row were committed in
// the same transaction (testable property 3 in spec.md §8).
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Headers       map[string]string
	Status        Status
	Attempts      int
	AvailableAt   time.Time
	ProcessedAt   *time.Time
	Error         string
	PartitionKey  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New constructs an Event ready to Append, JSON-encoding payload.
func New(aggregateType, aggregateID, eventType, partitionKey string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		Status:        StatusPending,
		PartitionKey:  partitionKey,
	}, nil
}

// Backoff computes the dispatcher's exponential-with-jitter delay before an
// event becomes available again after a retryable delivery failure,
// spec.md §4.2 ("available_at = now() + backoff(attempts)").
func Backoff(attempts int) time.Duration {
	base := time.Second
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d > 2*time.Minute {
			d = 2 * time.Minute
			break
		}
	}
	jitter := time.Duration(float64(d) * 0.2 * (rand.Float64()*2 - 1))
	d += jitter
	if d < 0 {
		d = base
	}
	return d
}
