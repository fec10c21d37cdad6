package bus

import (
	"sync/atomic"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/channel"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
)

// SubscriptionID identifies a registered subscription.
type SubscriptionID uint64

var nextSubID atomic.Uint64

func newSubscriptionID() SubscriptionID {
	return SubscriptionID(nextSubID.Add(1))
}

// Filter is a per-subscription predicate over a Message; a Message is
// only delivered to the subscription if Filter returns true.
type Filter func(*message.Message) bool

// Subscription is a registered interest in a topic or pattern. It
// implements pkg/topic.Subscription so the Topic Tree can enumerate
// and order it without importing pkg/bus.
type Subscription struct {
	id           SubscriptionID
	subscriberID message.SubscriberID
	topic        string // exact topic, or pattern when isPattern
	isPattern    bool
	filter       Filter
	channel      channel.Channel
	priority     atomic.Int32
	active       atomic.Bool
	createdAt    time.Time

	messagesReceived atomic.Uint64
}

func newSubscription(topic string, isPattern bool, subscriberID message.SubscriberID, ch channel.Channel, priority message.Priority, filter Filter) *Subscription {
	s := &Subscription{
		id:           newSubscriptionID(),
		subscriberID: subscriberID,
		topic:        topic,
		isPattern:    isPattern,
		filter:       filter,
		channel:      ch,
		createdAt:    time.Now(),
	}
	s.priority.Store(int32(priority))
	s.active.Store(true)
	return s
}

// ID satisfies pkg/topic.Subscription.
func (s *Subscription) ID() uint64 { return uint64(s.id) }

// Priority satisfies pkg/topic.Subscription.
func (s *Subscription) Priority() int32 { return s.priority.Load() }

// Active satisfies pkg/topic.Subscription; a paused subscription
// reports false and delivery skips it.
func (s *Subscription) Active() bool { return s.active.Load() }

// SetPriority changes the subscription's delivery priority. Effective
// on subsequent publishes.
func (s *Subscription) SetPriority(p message.Priority) { s.priority.Store(int32(p)) }

// Pause marks the subscription inactive: delivery skips it without
// affecting its delivered count.
func (s *Subscription) Pause() { s.active.Store(false) }

// Resume marks the subscription active again.
func (s *Subscription) Resume() { s.active.Store(true) }

// Channel returns the subscription's delivery channel.
func (s *Subscription) Channel() channel.Channel { return s.channel }

// SubscriberID returns the caller-chosen subscriber tag.
func (s *Subscription) SubscriberID() message.SubscriberID { return s.subscriberID }

// Topic returns the exact topic or pattern this subscription was
// registered against.
func (s *Subscription) Topic() string { return s.topic }

// MessagesReceived returns the count of messages successfully handed
// to this subscription's Channel.
func (s *Subscription) MessagesReceived() uint64 { return s.messagesReceived.Load() }

func (s *Subscription) recordDelivery() { s.messagesReceived.Add(1) }

func (s *Subscription) passesFilter(m *message.Message) bool {
	if s.filter == nil {
		return true
	}
	return s.filter(m)
}
