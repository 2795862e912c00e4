package outbox

import "context"

// Bus is the in-process event bus (spec.md §4.8): a bounded
// multi-producer, single-consumer-per-subscriber fan-out. Subscribers drain
// asynchronously; a slow subscriber cannot block publication to others.
type Bus struct {
	capacity    int
	subscribers map[string][]chan Event
}

// NewBus constructs a Bus with the given per-subscriber channel capacity
// (spec.md §4.8 default 1024-2048, surfaced as event_channel_capacity).
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bus{capacity: capacity, subscribers: make(map[string][]chan Event)}
}

// Subscribe registers a new channel that receives every event published
// after this call. eventType "*" subscribes to all event types.
func (b *Bus) Subscribe(eventType string) <-chan Event {
	ch := make(chan Event, b.capacity)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// Publish fans event out to every subscriber of its event type and every
// wildcard subscriber. A full subscriber channel drops the event for that
// subscriber rather than blocking the publisher, since outbox delivery is
// already at-least-once and retried by the dispatcher independent of the
// bus.
func (b *Bus) Publish(ctx context.Context, event Event) {
	for _, ch := range b.subscribers[event.EventType] {
		select {
		case ch <- event:
		default:
		}
	}
	for _, ch := range b.subscribers["*"] {
		select {
		case ch <- event:
		default:
		}
	}
}
