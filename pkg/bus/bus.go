// Package bus implements the topic-addressed publish/subscribe core:
// hierarchical topics, wildcard subscriptions, per-subscription and
// global content filters, priority-ordered delivery, and per-Bus
// statistics. See pkg/topic for the namespace and pkg/channel for the
// per-subscription delivery carrier.
package bus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/channel"
	"github.com/chris-alexander-pop/pktbus/pkg/concurrency"
	"github.com/chris-alexander-pop/pktbus/pkg/errors"
	"github.com/chris-alexander-pop/pktbus/pkg/logger"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
	"github.com/chris-alexander-pop/pktbus/pkg/topic"
)

// Bus is a named message bus: topic tree, subscription registry,
// delivery loop, optional global filter, and statistics.
type Bus struct {
	name string
	cfg  RoutingConfig

	tree *topic.Tree

	subsMu sync.RWMutex
	subs   map[SubscriptionID]*Subscription

	globalFilter Filter
	obs          Observer

	stats *busStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Bus with the given name and routing policy.
func New(name string, cfg RoutingConfig) *Bus {
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = 60 * time.Second
	}
	b := &Bus{
		name:  name,
		cfg:   cfg,
		subs:  make(map[SubscriptionID]*Subscription),
		obs:   NoopObserver{},
		stats: newBusStats(cfg.EnableStatistics),
	}
	b.tree = topic.New(topic.Config{
		MaxTopics:                cfg.MaxTopics,
		MaxSubscriptionsPerTopic: cfg.MaxSubscriptionsPerTopic,
		OnNodeCreated:            func(path string) { b.obs.OnTopicCreated(path) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	concurrency.SafeGo(ctx, func() {
		defer b.wg.Done()
		b.runMaintenance(ctx)
	})

	return b
}

// Name returns the bus's name.
func (b *Bus) Name() string { return b.name }

// SetObserver installs the Bus's event sink. Passing nil installs a
// no-op observer.
func (b *Bus) SetObserver(o Observer) {
	if o == nil {
		o = NoopObserver{}
	}
	b.obs = o
}

// SetGlobalFilter installs a predicate applied to every published
// Message before any per-subscription filter. Passing nil removes it.
func (b *Bus) SetGlobalFilter(f Filter) {
	b.globalFilter = f
}

// Close stops the maintenance goroutine. It does not close any
// subscription's Channel: those are owned by their subscribers.
func (b *Bus) Close() {
	b.cancel()
	b.wg.Wait()
}

// Subscribe registers ch under the exact topic path.
func (b *Bus) Subscribe(topicPath string, ch channel.Channel, subscriberID message.SubscriberID, priority message.Priority) (SubscriptionID, error) {
	return b.subscribe(topicPath, false, ch, subscriberID, priority, nil)
}

// SubscribeWithFilter registers ch under the exact topic path with a
// per-subscription predicate applied after the global filter.
func (b *Bus) SubscribeWithFilter(topicPath string, ch channel.Channel, subscriberID message.SubscriberID, priority message.Priority, filter Filter) (SubscriptionID, error) {
	return b.subscribe(topicPath, false, ch, subscriberID, priority, filter)
}

// SubscribePattern registers ch against a wildcard pattern (see
// pkg/topic's grammar: "*" matches one segment, "**" matches one or
// more trailing segments).
func (b *Bus) SubscribePattern(pattern string, ch channel.Channel, subscriberID message.SubscriberID, priority message.Priority) (SubscriptionID, error) {
	return b.subscribe(pattern, true, ch, subscriberID, priority, nil)
}

func (b *Bus) subscribe(path string, isPattern bool, ch channel.Channel, subscriberID message.SubscriberID, priority message.Priority, filter Filter) (SubscriptionID, error) {
	if ch == nil {
		return 0, errors.New(CodeInvalidArgument, "channel is nil", nil)
	}
	if isPattern && !b.cfg.EnablePatternMatching {
		return 0, errors.New(CodeInvalidArgument, "pattern matching is disabled on this bus", nil)
	}
	if filter != nil && !b.cfg.EnableMessageFiltering {
		return 0, errors.New(CodeInvalidArgument, "message filtering is disabled on this bus", nil)
	}

	sub := newSubscription(path, isPattern, subscriberID, ch, priority, filter)

	if isPattern {
		if err := b.tree.AddPattern(path, sub); err != nil {
			return 0, err
		}
	} else {
		node, err := b.tree.FindOrCreate(path)
		if err != nil {
			return 0, err
		}
		if err := node.AddSubscription(sub, b.cfg.MaxSubscriptionsPerTopic); err != nil {
			return 0, err
		}
	}

	b.subsMu.Lock()
	b.subs[sub.id] = sub
	b.subsMu.Unlock()

	b.stats.subscriberAdded(path)
	b.obs.OnSubscriptionCreated(sub.id, path)
	logger.L().Debug("bus: subscription created", "bus", b.name, "topic", path, "pattern", isPattern, "subscription_id", uint64(sub.id))

	return sub.id, nil
}

// Unsubscribe removes a single subscription by id. Idempotent: a
// second call with the same id returns ErrUnknownSubscription without
// further side effects.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	b.subsMu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.subsMu.Unlock()
		return ErrUnknownSubscription
	}
	delete(b.subs, id)
	b.subsMu.Unlock()

	b.removeFromTree(sub)
	b.stats.subscriberRemoved(sub.Topic())
	b.obs.OnSubscriptionRemoved(id, sub.Topic())
	return nil
}

func (b *Bus) removeFromTree(sub *Subscription) {
	if sub.isPattern {
		b.tree.RemovePattern(uint64(sub.id))
		return
	}
	if node, ok := b.tree.Lookup(sub.topic); ok {
		node.RemoveSubscription(uint64(sub.id))
	}
}

// UnsubscribeAll removes every subscription owned by subscriberID.
func (b *Bus) UnsubscribeAll(subscriberID message.SubscriberID) {
	for _, id := range b.subscriptionIDsFor(subscriberID, "") {
		_ = b.Unsubscribe(id)
	}
}

// UnsubscribeFromTopic removes subscriberID's subscriptions on exactly
// topicPath (patterns are unaffected).
func (b *Bus) UnsubscribeFromTopic(topicPath string, subscriberID message.SubscriberID) {
	for _, id := range b.subscriptionIDsFor(subscriberID, topicPath) {
		_ = b.Unsubscribe(id)
	}
}

func (b *Bus) subscriptionIDsFor(subscriberID message.SubscriberID, topicPath string) []SubscriptionID {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	var out []SubscriptionID
	for id, sub := range b.subs {
		if sub.SubscriberID() != subscriberID {
			continue
		}
		if topicPath != "" && sub.topic != topicPath {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Pause marks a subscription inactive: publishes skip it without
// affecting its delivered count. Resume reverses this. SetPriority
// changes a subscription's delivery priority, effective on subsequent
// publishes. All three return ErrUnknownSubscription for an unknown id.
func (b *Bus) Pause(id SubscriptionID) error {
	sub, ok := b.lookupSub(id)
	if !ok {
		return ErrUnknownSubscription
	}
	sub.Pause()
	return nil
}

func (b *Bus) Resume(id SubscriptionID) error {
	sub, ok := b.lookupSub(id)
	if !ok {
		return ErrUnknownSubscription
	}
	sub.Resume()
	return nil
}

func (b *Bus) SetPriority(id SubscriptionID, priority message.Priority) error {
	sub, ok := b.lookupSub(id)
	if !ok {
		return ErrUnknownSubscription
	}
	sub.SetPriority(priority)
	return nil
}

func (b *Bus) lookupSub(id SubscriptionID) (*Subscription, bool) {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()
	sub, ok := b.subs[id]
	return sub, ok
}

// Publish resolves topicPath's surviving subscriptions and hands
// m (or a per-subscription clone) to each one's Channel, bounded by the
// Bus's DeliveryTimeout. It returns a structural error
// (InvalidArgument, CapacityExceeded, PolicyViolation) without
// delivering to anyone; transient per-subscription failures (Full,
// Timeout) are recorded in statistics and reported through Observer,
// never returned to the caller.
func (b *Bus) Publish(topicPath string, m *message.Message) error {
	if m == nil {
		return ErrNilMessage
	}

	survivors, err := b.resolve(topicPath, m)
	if err != nil {
		return err
	}

	if m.Payload() != nil && m.Payload().Kind() == message.KindUnique && len(survivors) > 1 {
		for _, sub := range survivors {
			b.obs.OnDeliveryFailed(topicPath, sub.id, "unique payload published to more than one subscriber")
		}
		return ErrPolicyViolation
	}

	b.stats.recordPublished(topicPath)
	b.obs.OnMessagePublished(topicPath, uint64(m.ID()))

	for _, sub := range survivors {
		b.deliverOne(topicPath, sub, m)
	}
	return nil
}

// PublishBatch calls Publish for each message in msgs. Enumeration of
// topicPath's subscriptions happens once per message, not once for the
// whole batch: subscriptions may change between sends in the same
// batch, so each send re-derives its target set. Nothing is shared
// across the batch: each message goes through its own Publish call.
func (b *Bus) PublishBatch(topicPath string, msgs []*message.Message) error {
	for _, m := range msgs {
		if err := b.Publish(topicPath, m); err != nil {
			return err
		}
	}
	return nil
}

// resolve enumerates topicPath's subscriptions and applies filters,
// expiration, and active/paused checks, returning the survivors in
// priority order.
func (b *Bus) resolve(topicPath string, m *message.Message) ([]*Subscription, error) {
	candidates, err := b.tree.Enumerate(topicPath)
	if err != nil {
		return nil, err
	}

	if b.cfg.EnableMessageFiltering && b.globalFilter != nil && !b.globalFilter(m) {
		return nil, nil
	}
	if m.Expired() {
		return nil, nil
	}

	out := make([]*Subscription, 0, len(candidates))
	for _, c := range candidates {
		sub, ok := c.(*Subscription)
		if !ok || !sub.Active() {
			continue
		}
		if b.cfg.EnableMessageFiltering && !sub.passesFilter(m) {
			continue
		}
		out = append(out, sub)
	}

	// Enumerate returns candidates in priority order. With priority
	// routing disabled, fall back to registration order: subscription
	// ids are monotonic, so ascending id is insertion order.
	if !b.cfg.EnablePriorityRouting {
		sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	}
	return out, nil
}

// deliverOne hands m to a single subscription's Channel, applying the
// Bus's delivery-timeout/drop-on-timeout policy, and records per-call
// delivery latency statistics.
func (b *Bus) deliverOne(topicPath string, sub *Subscription, m *message.Message) {
	clone := m.Clone()

	start := time.Now()
	err := sub.Channel().TimedSend(clone, b.cfg.DeliveryTimeout)
	if err != nil {
		if b.cfg.DropOnTimeout {
			b.stats.recordFailed(topicPath)
			b.obs.OnDeliveryFailed(topicPath, sub.id, err.Error())
			return
		}
		// Caller's own channel governs the retry/block policy from here:
		// the Bus-level delivery timeout has been exhausted, but
		// drop_on_timeout=false means the publisher accepts blocking
		// according to the channel's own blocking_send/send_timeout.
		if err2 := sub.Channel().Send(clone); err2 != nil {
			b.stats.recordFailed(topicPath)
			b.obs.OnDeliveryFailed(topicPath, sub.id, err2.Error())
			return
		}
	}

	elapsed := time.Since(start)
	sub.recordDelivery()
	b.stats.recordDelivered(topicPath, elapsed)
	b.obs.OnMessageDelivered(topicPath, sub.id)
}

// runMaintenance periodically scans the subscription registry for
// subscriptions whose Channel has closed and removes them.
func (b *Bus) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reapClosed()
		}
	}
}

func (b *Bus) reapClosed() {
	b.subsMu.RLock()
	var dead []SubscriptionID
	for id, sub := range b.subs {
		if !sub.Channel().IsOpen() {
			dead = append(dead, id)
		}
	}
	b.subsMu.RUnlock()

	for _, id := range dead {
		if err := b.Unsubscribe(id); err == nil {
			logger.L().Debug("bus: reaped closed subscription", "bus", b.name, "subscription_id", uint64(id))
		}
	}
}

// Statistics returns a point-in-time snapshot of the Bus's counters.
func (b *Bus) Statistics() Statistics { return b.stats.snapshot() }

// ResetStatistics zeroes all counters.
func (b *Bus) ResetStatistics() { b.stats.reset() }
