package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/bus"
	"github.com/chris-alexander-pop/pktbus/pkg/channel"
	"github.com/chris-alexander-pop/pktbus/pkg/concurrency"
	"github.com/chris-alexander-pop/pktbus/pkg/logger"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
)

// busAdapter implements Bus as a thin facade over a *bus.Bus: every
// Event is wrapped in a message.Owned[Event] Message and routed through
// the topic tree, so code written against this package's simpler
// interface still gets pattern matching, priority ordering, and
// delivery statistics for free.
type busAdapter struct {
	bus *bus.Bus

	mu   sync.Mutex
	subs map[string][]*subscription

	nextSubscriberID uint32
}

type subscription struct {
	subID  bus.SubscriptionID
	ch     channel.Channel
	cancel context.CancelFunc
}

// NewBusAdapter wraps b so it satisfies the Bus interface.
func NewBusAdapter(b *bus.Bus) Bus {
	return &busAdapter{bus: b, subs: make(map[string][]*subscription)}
}

func (a *busAdapter) Publish(ctx context.Context, topic string, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	m := message.New(event.Type, message.WithPayload(message.NewOwned(event)))
	return a.bus.Publish(topic, m)
}

func (a *busAdapter) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := channel.NewSPSC(topic+"-events", channel.DefaultConfig())
	if err != nil {
		return err
	}

	subscriberID := message.SubscriberID(atomic.AddUint32(&a.nextSubscriberID, 1))
	subID, err := a.bus.Subscribe(topic, ch, subscriberID, message.PriorityNormal)
	if err != nil {
		return err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{subID: subID, ch: ch, cancel: cancel}

	a.mu.Lock()
	a.subs[topic] = append(a.subs[topic], sub)
	a.mu.Unlock()

	concurrency.SafeGo(subCtx, func() {
		a.drain(subCtx, topic, sub, handler)
	})

	return nil
}

func (a *busAdapter) drain(ctx context.Context, topic string, sub *subscription, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m, err := sub.ch.Receive(200 * time.Millisecond)
		if err != nil {
			continue
		}
		owned, ok := m.Payload().(*message.Owned[Event])
		if !ok {
			logger.L().ErrorContext(ctx, "events adapter: unexpected payload carrier on event message")
			continue
		}
		event, ok := owned.Take()
		if !ok {
			continue
		}
		if err := handler(ctx, event); err != nil {
			logger.L().ErrorContext(ctx, "events adapter: handler returned error", "topic", topic, "error", err)
		}
	}
}

// Close unsubscribes every handler registered through this adapter and
// stops their drain goroutines. The underlying *bus.Bus is left
// running: it may be shared by other collaborators.
func (a *busAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, subs := range a.subs {
		for _, sub := range subs {
			sub.cancel()
			_ = a.bus.Unsubscribe(sub.subID)
			sub.ch.Close()
		}
	}
	a.subs = make(map[string][]*subscription)
	return nil
}
