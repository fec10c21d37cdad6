package bus_test

import (
	"testing"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/bus"
	"github.com/chris-alexander-pop/pktbus/pkg/channel"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	cfg := bus.DefaultRoutingConfig()
	cfg.MaintenanceInterval = time.Hour // never fires during the test
	b := bus.New("test", cfg)
	t.Cleanup(b.Close)
	return b
}

func newTestChannel(t *testing.T, name string) channel.Channel {
	t.Helper()
	ch, err := channel.NewSPSC(name, channel.DefaultConfig())
	require.NoError(t, err)
	return ch
}

// TestTopicHierarchyDelivery checks that a wildcard, a
// trailing-wildcard, and an exact subscription must each receive
// exactly one copy of a matching publish, and an unrelated topic must
// reach only the trailing-wildcard subscriber.
func TestTopicHierarchyDelivery(t *testing.T) {
	b := newTestBus(t)

	chA := newTestChannel(t, "A")
	chB := newTestChannel(t, "B")
	chC := newTestChannel(t, "C")

	_, err := b.SubscribePattern("sensor/temperature/*", chA, 1, message.PriorityNormal)
	require.NoError(t, err)
	_, err = b.SubscribePattern("sensor/**", chB, 2, message.PriorityNormal)
	require.NoError(t, err)
	_, err = b.Subscribe("sensor/temperature/room1", chC, 3, message.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, b.Publish("sensor/temperature/room1", message.New("reading")))

	for _, ch := range []channel.Channel{chA, chB, chC} {
		m, err := ch.TryReceive()
		require.NoError(t, err)
		assert.NotNil(t, m)
		_, err = ch.TryReceive()
		assert.Error(t, err, "must have received exactly one message")
	}

	require.NoError(t, b.Publish("sensor/humidity/room1", message.New("reading")))

	_, errA := chA.TryReceive()
	assert.Error(t, errA, "pattern sensor/temperature/* must not match sensor/humidity/room1")
	mB, errB := chB.TryReceive()
	require.NoError(t, errB)
	assert.NotNil(t, mB)
	_, errC := chC.TryReceive()
	assert.Error(t, errC, "exact subscription on a different topic must not receive")
}

// TestPriorityOrderingWithinPublish checks that, among
// subscriptions on the same topic, the higher-priority one is handed
// the message no later than the lower-priority one (equal Sent
// timestamps are accepted, since both can fall within one clock tick).
func TestPriorityOrderingWithinPublish(t *testing.T) {
	b := newTestBus(t)

	chHigh := newTestChannel(t, "high")
	chLow := newTestChannel(t, "low")

	_, err := b.Subscribe("topic", chLow, 1, message.PriorityLow)
	require.NoError(t, err)
	_, err = b.Subscribe("topic", chHigh, 2, message.PriorityHigh)
	require.NoError(t, err)

	require.NoError(t, b.Publish("topic", message.New("evt")))

	lowMsg, err := chLow.TryReceive()
	require.NoError(t, err)
	highMsg, err := chHigh.TryReceive()
	require.NoError(t, err)

	assert.True(t, highMsg.Timing().Sent.Before(lowMsg.Timing().Sent) || highMsg.Timing().Sent.Equal(lowMsg.Timing().Sent),
		"higher-priority subscription must be sent no later than the lower-priority one")
}

func TestPublish_PolicyViolationOnFanOutUniquePayload(t *testing.T) {
	b := newTestBus(t)

	ch1 := newTestChannel(t, "u1")
	ch2 := newTestChannel(t, "u2")
	_, err := b.Subscribe("t", ch1, 1, message.PriorityNormal)
	require.NoError(t, err)
	_, err = b.Subscribe("t", ch2, 2, message.PriorityNormal)
	require.NoError(t, err)

	payload := 42
	m := message.New("evt", message.WithPayload(message.NewUnique(&payload)))
	err = b.Publish("t", m)
	assert.ErrorIs(t, err, bus.ErrPolicyViolation)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := newTestBus(t)
	ch := newTestChannel(t, "c")
	id, err := b.Subscribe("t", ch, 1, message.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, b.Unsubscribe(id))
	err = b.Unsubscribe(id)
	assert.ErrorIs(t, err, bus.ErrUnknownSubscription)
}

func TestPauseSkipsDeliveryWithoutAffectingSubscription(t *testing.T) {
	b := newTestBus(t)
	ch := newTestChannel(t, "c")
	id, err := b.Subscribe("t", ch, 1, message.PriorityNormal)
	require.NoError(t, err)

	require.NoError(t, b.Pause(id))
	require.NoError(t, b.Publish("t", message.New("evt")))
	_, err = ch.TryReceive()
	assert.Error(t, err, "paused subscription must not receive")

	require.NoError(t, b.Resume(id))
	require.NoError(t, b.Publish("t", message.New("evt")))
	m, err := ch.TryReceive()
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestStatistics_TrackPublishAndDelivery(t *testing.T) {
	b := newTestBus(t)
	ch := newTestChannel(t, "c")
	_, err := b.Subscribe("t", ch, 1, message.PriorityNormal)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish("t", message.New("evt")))
	}

	stats := b.Statistics()
	assert.Equal(t, uint64(3), stats.MessagesPublished)
	assert.Equal(t, uint64(3), stats.MessagesDelivered)
	assert.Equal(t, uint64(3), stats.MessagesPerTopic["t"])
	assert.LessOrEqual(t, stats.MessagesDelivered, stats.MessagesPublished*1)
}
