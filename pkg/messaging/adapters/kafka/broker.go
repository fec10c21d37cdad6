// Package kafka adapts github.com/IBM/sarama onto pkg/messaging's
// Broker/Producer/Consumer interfaces, so pkg/messaging/bridge can move
// records between an external Kafka cluster and an in-process pkg/bus
// topic without the core ever importing a network dependency.
package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/chris-alexander-pop/pktbus/pkg/messaging"
)

// Config configures the Kafka adapter.
type Config struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Version string   `env:"KAFKA_VERSION" env-default:"2.8.0"`
}

// Broker is a sarama-backed messaging.Broker.
type Broker struct {
	cfg    Config
	client sarama.Client

	mu        sync.Mutex
	producers map[string]*producer
}

// New connects to the configured Kafka brokers.
func New(cfg Config) (*Broker, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	if v, err := sarama.ParseKafkaVersion(cfg.Version); err == nil {
		saramaCfg.Version = v
	}

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}

	return &Broker{cfg: cfg, client: client, producers: make(map[string]*producer)}, nil
}

// Producer returns a cached sync producer for topic, creating one on
// first use.
func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.producers[topic]; ok {
		return p, nil
	}

	sp, err := sarama.NewSyncProducerFromClient(b.client)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	p := &producer{broker: b, topic: topic, producer: sp}
	b.producers[topic] = p
	return p, nil
}

// Consumer returns a consumer-group-backed Consumer for topic. An
// empty group is replaced by the fixed group "pktbus-<topic>", so all
// consumers created with an empty group for the same topic share one
// group and Kafka balances partitions among them; there is no fan-out.
func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	if group == "" {
		group = "pktbus-" + topic
	}
	cg, err := sarama.NewConsumerGroupFromClient(group, b.client)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}
	return &consumer{topic: topic, group: group, cg: cg}, nil
}

// Close shuts down every cached producer and the underlying client.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.producers {
		_ = p.producer.Close()
	}
	return b.client.Close()
}

// Healthy reports whether the client can still reach the cluster
// controller before the given context is done or two seconds pass,
// whichever comes first.
func (b *Broker) Healthy(ctx context.Context) bool {
	done := make(chan bool, 1)
	go func() {
		_, err := b.client.Controller()
		done <- err == nil
	}()
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	case <-time.After(2 * time.Second):
		return false
	}
}
