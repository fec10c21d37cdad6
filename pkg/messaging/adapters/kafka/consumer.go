package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/chris-alexander-pop/pktbus/pkg/messaging"
)

// consumer drives a sarama consumer group and adapts each claimed
// record onto a messaging.MessageHandler.
type consumer struct {
	topic string
	group string
	cg    sarama.ConsumerGroup
}

// Consume blocks until ctx is canceled, re-joining the consumer group
// after each rebalance, per sarama's own documented consume loop shape.
func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	h := &groupHandler{handler: handler}
	for {
		if err := c.cg.Consume(ctx, []string{c.topic}, h); err != nil {
			return messaging.ErrConsumeFailed(err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *consumer) Close() error {
	return c.cg.Close()
}

// groupHandler implements sarama.ConsumerGroupHandler by forwarding
// each claimed record to the wrapped messaging.MessageHandler.
type groupHandler struct {
	handler messaging.MessageHandler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case rec, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			msg := &messaging.Message{
				Topic:     rec.Topic,
				Key:       rec.Key,
				Payload:   rec.Value,
				Timestamp: rec.Timestamp,
				Headers:   make(map[string]string, len(rec.Headers)),
				Metadata: messaging.MessageMetadata{
					Partition: rec.Partition,
					Offset:    rec.Offset,
				},
			}
			for _, h := range rec.Headers {
				msg.Headers[string(h.Key)] = string(h.Value)
			}
			if err := h.handler(sess.Context(), msg); err != nil {
				continue // left unmarked; marking a later record commits past it
			}
			sess.MarkMessage(rec, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
