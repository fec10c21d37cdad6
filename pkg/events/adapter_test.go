package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/bus"
	"github.com/chris-alexander-pop/pktbus/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusAdapter_PublishSubscribe(t *testing.T) {
	b := bus.New("events-test", bus.DefaultRoutingConfig())
	defer b.Close()

	adapter := events.NewBusAdapter(b)
	defer adapter.Close()

	received := make(chan events.Event, 1)
	err := adapter.Subscribe(context.Background(), "orders", func(ctx context.Context, e events.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	err = adapter.Publish(context.Background(), "orders", events.Event{
		Type:    "order.created",
		Source:  "orders-service",
		Payload: "order-42",
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, "order.created", e.Type)
		assert.Equal(t, "order-42", e.Payload)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event was not delivered within timeout")
	}
}

func TestBusAdapter_CloseStopsDelivery(t *testing.T) {
	b := bus.New("events-test-close", bus.DefaultRoutingConfig())
	defer b.Close()

	adapter := events.NewBusAdapter(b)

	received := make(chan events.Event, 4)
	err := adapter.Subscribe(context.Background(), "metrics", func(ctx context.Context, e events.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, adapter.Close())

	// After Close, the drain goroutine has stopped and the subscription
	// was removed, so a publish on the same topic has no listener left.
	_ = adapter.Publish(context.Background(), "metrics", events.Event{Type: "metric.tick"})

	select {
	case <-received:
		t.Fatal("event delivered after adapter Close")
	case <-time.After(100 * time.Millisecond):
	}
}
