// Package bridge connects an external pkg/messaging broker (Kafka,
// the in-memory adapter, or any future adapter) to an in-process
// pkg/bus topic. Neither direction is part of the core: a bridge is
// just another producer/consumer collaborator, the same shape as a
// live network source or offline file playback feeding the bus, or the
// bus publishing out to downstream systems.
package bridge

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/bus"
	"github.com/chris-alexander-pop/pktbus/pkg/channel"
	"github.com/chris-alexander-pop/pktbus/pkg/logger"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
	"github.com/chris-alexander-pop/pktbus/pkg/messaging"
	"github.com/chris-alexander-pop/pktbus/pkg/resilience"
)

// outboundPollInterval bounds how long Outbound.run blocks on a single
// Receive call before checking for shutdown, matching the polling shape
// channel.Channel's own blocking Receive already uses internally.
const outboundPollInterval = 100 * time.Millisecond

func subscriberIDFor(name string) message.SubscriberID {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return message.SubscriberID(h.Sum32())
}

// Inbound drains an external broker topic onto an internal bus topic.
// Each consumed messaging.Message is wrapped in a message.Owned[[]byte]
// Message and published; the bus's own drop/backpressure policy takes
// over from there.
type Inbound struct {
	consumer messaging.Consumer
	bus      *bus.Bus
	topic    string

	cancel context.CancelFunc
	done   chan struct{}
}

// FromBroker starts draining c onto bus's topic. The returned Inbound
// must be Closed to stop the drain goroutine and release the consumer.
func FromBroker(c messaging.Consumer, b *bus.Bus, topic string) (*Inbound, error) {
	ctx, cancel := context.WithCancel(context.Background())
	in := &Inbound{consumer: c, bus: b, topic: topic, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(in.done)
		err := c.Consume(ctx, in.handle)
		if err != nil && ctx.Err() == nil {
			logger.L().ErrorContext(ctx, "inbound bridge consumer stopped", "topic", topic, "error", err)
		}
	}()

	return in, nil
}

func (in *Inbound) handle(ctx context.Context, msg *messaging.Message) error {
	m := message.New("bridge.inbound", message.WithPayload(message.NewOwned(msg.Payload)))
	return in.bus.Publish(in.topic, m)
}

// Close stops the drain goroutine and releases the underlying consumer.
func (in *Inbound) Close() error {
	in.cancel()
	<-in.done
	return in.consumer.Close()
}

// Outbound subscribes on an internal bus topic and republishes every
// delivered Message to an external broker producer. Publish failures
// are retried with resilience.Retry on the Outbound's own goroutine; a
// publish that still fails after retrying is logged and the message is
// dropped. It is not counted in the bus's delivery statistics.
type Outbound struct {
	bus      *bus.Bus
	subID    bus.SubscriptionID
	producer messaging.Producer
	ch       channel.Channel
	retryCfg resilience.RetryConfig

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// ToBroker subscribes on bus's topic and republishes every delivered
// Message to p. The returned Outbound must be Closed to unsubscribe
// and release the producer.
func ToBroker(b *bus.Bus, topic string, p messaging.Producer) (*Outbound, error) {
	ch, err := channel.NewSPSC("bridge-outbound-"+topic, channel.DefaultConfig())
	if err != nil {
		return nil, err
	}
	subID, err := b.Subscribe(topic, ch, subscriberIDFor("bridge-outbound-"+topic), message.PriorityNormal)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := &Outbound{
		bus:      b,
		subID:    subID,
		producer: p,
		ch:       ch,
		retryCfg: resilience.DefaultRetryConfig(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go out.run(ctx)

	return out, nil
}

func (out *Outbound) run(ctx context.Context) {
	defer close(out.done)
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := out.ch.Receive(outboundPollInterval)
		if err != nil {
			continue
		}
		out.publish(ctx, m)
	}
}

func (out *Outbound) publish(ctx context.Context, m *message.Message) {
	payload := encodePayload(m)
	err := resilience.Retry(ctx, out.retryCfg, func(ctx context.Context) error {
		return out.producer.Publish(ctx, &messaging.Message{
			Topic:   out.ch.Name(),
			Payload: payload,
		})
	})
	if err != nil {
		logger.L().ErrorContext(ctx, "outbound bridge publish failed after retries", "error", err)
	}
}

func encodePayload(m *message.Message) []byte {
	return m.Serialize()
}

// Close unsubscribes from the bus, stops the publish goroutine, and
// releases the underlying producer.
func (out *Outbound) Close() error {
	var err error
	out.once.Do(func() {
		_ = out.bus.Unsubscribe(out.subID)
		out.cancel()
		out.ch.Close()
		<-out.done
		err = out.producer.Close()
	})
	return err
}
