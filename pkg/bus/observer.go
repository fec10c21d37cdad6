package bus

// Observer receives Bus lifecycle events, mirroring pkg/channel's
// Observer. Implementations must not block: the Bus invokes these
// synchronously on the publish hot path but never while holding a
// topic or bus lock.
type Observer interface {
	OnMessagePublished(topic string, messageID uint64)
	OnMessageDelivered(topic string, subscriptionID SubscriptionID)
	OnDeliveryFailed(topic string, subscriptionID SubscriptionID, description string)
	OnSubscriptionCreated(subscriptionID SubscriptionID, topic string)
	OnSubscriptionRemoved(subscriptionID SubscriptionID, topic string)
	OnTopicCreated(topic string)
	OnTopicDeleted(topic string)
}

// NoopObserver implements Observer with no-ops.
type NoopObserver struct{}

func (NoopObserver) OnMessagePublished(string, uint64)               {}
func (NoopObserver) OnMessageDelivered(string, SubscriptionID)       {}
func (NoopObserver) OnDeliveryFailed(string, SubscriptionID, string) {}
func (NoopObserver) OnSubscriptionCreated(SubscriptionID, string)    {}
func (NoopObserver) OnSubscriptionRemoved(SubscriptionID, string)    {}
func (NoopObserver) OnTopicCreated(string)                           {}
func (NoopObserver) OnTopicDeleted(string)                           {}
