package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/timour/stateset-core/internal/metrics"
)

// ClaimBatchSize bounds how many rows the dispatcher claims per poll.
const ClaimBatchSize = 50

// Dispatcher is the background loop described in spec.md §4.2: claim,
// deliver, mark. Safe to run on multiple nodes since claiming uses
// FOR UPDATE SKIP LOCKED.
type Dispatcher struct {
	store   *Store
	bus     *Bus
	webhook *WebhookDispatcher
	logger  *slog.Logger
	metrics *metrics.Core

	pollInterval time.Duration
}

// NewDispatcher wires the claim store, in-process bus, and webhook
// dispatcher into one polling loop.
func NewDispatcher(store *Store, bus *Bus, webhook *WebhookDispatcher, logger *slog.Logger, m *metrics.Core) *Dispatcher {
	return &Dispatcher{
		store:        store,
		bus:          bus,
		webhook:      webhook,
		logger:       logger,
		metrics:      m,
		pollInterval: 500 * time.Millisecond,
	}
}

// Run polls until ctx is cancelled. On cancellation, any rows this
// dispatcher claimed but had not finished delivering are released back to
// Pending (spec.md §5: cancellation never leaves partial state committed).
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

func (d *Dispatcher) pollOnce(ctx context.Context) {
	events, err := d.store.Claim(ctx, ClaimBatchSize)
	if err != nil {
		d.logger.Error("outbox: claim failed", slog.Any("error", err))
		return
	}

	// Serialize per partition key within this batch: events sharing a key
	// were already ordered by Claim's ORDER BY; deliver them in sequence
	// rather than concurrently so a later event never overtakes an earlier
	// one for the same aggregate.
	byKey := make(map[string][]Event)
	var noKey []Event
	for _, e := range events {
		if e.PartitionKey == "" {
			noKey = append(noKey, e)
			continue
		}
		byKey[e.PartitionKey] = append(byKey[e.PartitionKey], e)
	}

	for _, e := range noKey {
		d.deliver(ctx, e)
	}
	for _, group := range byKey {
		for _, e := range group {
			d.deliver(ctx, e)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	select {
	case <-ctx.Done():
		if err := d.store.ReleaseClaimed(context.Background(), event.ID); err != nil {
			d.logger.Error("outbox: failed to release claimed event on cancellation", slog.Any("error", err))
		}
		return
	default:
	}

	d.bus.Publish(ctx, event)

	var err error
	if d.webhook != nil {
		err = d.webhook.DeliverAll(ctx, event)
	}

	if err == nil {
		if markErr := d.store.MarkDelivered(ctx, event.ID); markErr != nil {
			d.logger.Error("outbox: failed to mark delivered", slog.Any("error", markErr))
			return
		}
		d.metrics.OutboxEventsTotal.WithLabelValues(event.EventType, string(StatusDelivered)).Inc()
		return
	}

	attempts := event.Attempts + 1
	if markErr := d.store.MarkRetry(ctx, event.ID, attempts, err); markErr != nil {
		d.logger.Error("outbox: failed to mark retry", slog.Any("error", markErr))
		return
	}

	status := StatusPending
	if attempts >= MaxAttempts {
		status = StatusFailed
		d.logger.Warn("outbox: event dead-lettered", slog.String("event_id", event.ID), slog.String("event_type", event.EventType))
	}
	d.metrics.OutboxEventsTotal.WithLabelValues(event.EventType, string(status)).Inc()
	d.metrics.WebhookAttempts.Observe(float64(attempts))
}
