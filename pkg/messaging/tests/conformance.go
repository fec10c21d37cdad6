// Package tests holds a broker-agnostic conformance suite shared by
// every pkg/messaging adapter, so each adapter's own _test.go only
// needs to construct a broker and hand it to RunBrokerTests.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBrokerTests exercises the basic Producer/Consumer contract against
// broker: publish then consume must observe the published payload, and
// Healthy must report true for a freshly constructed broker.
func RunBrokerTests(t *testing.T, broker messaging.Broker) {
	t.Helper()

	t.Run("Healthy", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.True(t, broker.Healthy(ctx))
	})

	t.Run("PublishAndConsume", func(t *testing.T) {
		topic := "conformance-publish-consume"
		producer, err := broker.Producer(topic)
		require.NoError(t, err)
		defer producer.Close()

		consumer, err := broker.Consumer(topic, "")
		require.NoError(t, err)
		defer consumer.Close()

		received := make(chan *messaging.Message, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		go func() {
			_ = consumer.Consume(ctx, func(_ context.Context, msg *messaging.Message) error {
				received <- msg
				return nil
			})
		}()

		require.NoError(t, producer.Publish(ctx, &messaging.Message{
			Topic:   topic,
			Payload: []byte("conformance-payload"),
		}))

		select {
		case msg := <-received:
			assert.Equal(t, []byte("conformance-payload"), msg.Payload)
		case <-ctx.Done():
			t.Fatal("timed out waiting for published message to be consumed")
		}
	})

	t.Run("PublishBatch", func(t *testing.T) {
		topic := "conformance-publish-batch"
		producer, err := broker.Producer(topic)
		require.NoError(t, err)
		defer producer.Close()

		consumer, err := broker.Consumer(topic, "")
		require.NoError(t, err)
		defer consumer.Close()

		const n = 3
		received := make(chan *messaging.Message, n)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		go func() {
			_ = consumer.Consume(ctx, func(_ context.Context, msg *messaging.Message) error {
				received <- msg
				return nil
			})
		}()

		batch := make([]*messaging.Message, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, &messaging.Message{Topic: topic, Payload: []byte{byte(i)}})
		}
		require.NoError(t, producer.PublishBatch(ctx, batch))

		seen := 0
		for seen < n {
			select {
			case <-received:
				seen++
			case <-ctx.Done():
				t.Fatalf("timed out after receiving %d/%d batched messages", seen, n)
			}
		}
	})
}
