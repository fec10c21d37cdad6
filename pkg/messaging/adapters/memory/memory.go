// Package memory is an in-process messaging.Broker: topics are Go
// channels, with no network or serialization involved. It exists for
// tests and for local development wiring of pkg/messaging/bridge
// without a live broker.
package memory

import (
	"context"
	"sync"

	"github.com/chris-alexander-pop/pktbus/pkg/messaging"
	"github.com/google/uuid"
)

// Config configures the in-memory broker.
type Config struct {
	// BufferSize is the channel capacity backing each topic.
	BufferSize int
}

// Broker is a messaging.Broker backed entirely by Go channels.
type Broker struct {
	cfg Config

	mu     sync.Mutex
	topics map[string]chan *messaging.Message
	closed bool
}

// New constructs an in-memory Broker.
func New(cfg Config) *Broker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	return &Broker{cfg: cfg, topics: make(map[string]chan *messaging.Message)}
}

func (b *Broker) topicChan(topic string) chan *messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[topic]
	if !ok {
		ch = make(chan *messaging.Message, b.cfg.BufferSize)
		b.topics[topic] = ch
	}
	return ch
}

func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	if b.isClosed() {
		return nil, messaging.ErrClosed(nil)
	}
	return &producer{broker: b, topic: topic}, nil
}

func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	if b.isClosed() {
		return nil, messaging.ErrClosed(nil)
	}
	return &consumer{broker: b, topic: topic, done: make(chan struct{})}, nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ch := range b.topics {
		close(ch)
	}
	return nil
}

func (b *Broker) Healthy(ctx context.Context) bool {
	return !b.isClosed()
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type producer struct {
	broker *Broker
	topic  string
}

func (p *producer) Publish(ctx context.Context, msg *messaging.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	ch := p.broker.topicChan(p.topic)
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return messaging.ErrTimeout("publish", ctx.Err())
	default:
		return messaging.ErrQueueFull(nil)
	}
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	for _, m := range msgs {
		if err := p.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *producer) Close() error { return nil }

type consumer struct {
	broker *Broker
	topic  string
	group  string
	done   chan struct{}
}

func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	ch := c.broker.topicChan(c.topic)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := handler(ctx, msg); err != nil {
				return messaging.ErrConsumeFailed(err)
			}
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		}
	}
}

func (c *consumer) Close() error {
	close(c.done)
	return nil
}
