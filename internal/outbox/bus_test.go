package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversToMatchingSubscriber(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe("order.created")
	other := bus.Subscribe("order.paid")

	bus.Publish(context.Background(), Event{EventType: "order.created", ID: "evt_1"})

	select {
	case got := <-sub:
		require.Equal(t, "evt_1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event on matching subscriber")
	}

	select {
	case <-other:
		t.Fatal("non-matching subscriber should not receive event")
	default:
	}
}

func TestBusWildcardReceivesEverything(t *testing.T) {
	bus := NewBus(4)
	all := bus.Subscribe("*")

	bus.Publish(context.Background(), Event{EventType: "order.created", ID: "evt_1"})
	bus.Publish(context.Background(), Event{EventType: "inventory.reserved", ID: "evt_2"})

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			got[e.ID] = true
		case <-time.After(time.Second):
			t.Fatal("expected wildcard subscriber to receive both events")
		}
	}
	require.True(t, got["evt_1"])
	require.True(t, got["evt_2"])
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe("order.created")

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), Event{EventType: "order.created", ID: "evt_1"})
		bus.Publish(context.Background(), Event{EventType: "order.created", ID: "evt_2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish should not block when subscriber channel is full")
	}
	<-sub
}
