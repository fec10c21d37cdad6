package channel

import (
	"sync/atomic"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/datastructures/queue/disruptor"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
)

// MPSCChannel is backed by the lock-free CAS ring buffer and supports
// any number of concurrent producers with a single logical consumer
// (the consumer-side methods may still be called from more than one
// goroutine since the underlying buffer is fully MPMC, but the variant
// is selected for the N-producer/1-consumer topology).
type MPSCChannel struct {
	name string
	cfg  Config
	buf  *disruptor.Buffer[*message.Message]

	open atomic.Bool

	stats *stats

	handler MessageHandler
	errH    ErrorHandler
	obs     Observer
}

// NewMPSC creates an MPSCChannel with the given name and configuration.
func NewMPSC(name string, cfg Config) (*MPSCChannel, error) {
	b, err := disruptor.New[*message.Message](cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	c := &MPSCChannel{
		name:  name,
		cfg:   cfg,
		buf:   b,
		stats: newStats(cfg.EnableStatistics),
		obs:   NoopObserver{},
	}
	c.open.Store(true)
	return c, nil
}

func (c *MPSCChannel) Name() string   { return c.name }
func (c *MPSCChannel) Config() Config { return c.cfg }

func (c *MPSCChannel) Send(m *message.Message) error {
	if c.cfg.BlockingSend {
		return c.TimedSend(m, c.cfg.SendTimeout)
	}
	return c.TrySend(m)
}

func (c *MPSCChannel) TrySend(m *message.Message) error {
	if !c.IsOpen() {
		return ErrClosed
	}
	if m == nil {
		return ErrInvalidArgument
	}
	if expiredFor(c.cfg, m) {
		c.stats.recordExpired()
		c.obs.OnMessageDropped(m)
		return ErrExpired
	}
	m.Freeze()
	if c.buf.TryPush(m) {
		m.MarkSent()
		c.stats.recordSend(false)
		c.obs.OnMessageSent(m)
		return nil
	}
	if c.cfg.DropOnFull {
		c.stats.recordSend(true)
		c.obs.OnMessageDropped(m)
		c.obs.OnQueueFull()
		return nil
	}
	c.obs.OnQueueFull()
	return ErrFull
}

func (c *MPSCChannel) TimedSend(m *message.Message, timeout time.Duration) error {
	if timeout <= 0 {
		return c.TrySend(m)
	}
	deadline := time.Now().Add(timeout)
	for {
		if err := c.TrySend(m); err != ErrFull {
			return err
		}
		if time.Now().After(deadline) {
			c.obs.OnErrorOccurred("send timed out")
			return ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// Receive blocks until a message arrives, the channel closes, or the
// timeout elapses. A zero timeout is non-blocking; a negative timeout
// waits indefinitely.
func (c *MPSCChannel) Receive(timeout time.Duration) (*message.Message, error) {
	if timeout == 0 {
		return c.TryReceive()
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		m, err := c.TryReceive()
		if err != ErrEmpty {
			return m, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *MPSCChannel) TryReceive() (*message.Message, error) {
	if !c.IsOpen() && c.buf.Empty() {
		return nil, ErrClosed
	}
	m, ok := c.buf.TryPop()
	if !ok {
		return nil, ErrEmpty
	}
	if expiredFor(c.cfg, m) {
		c.stats.recordExpired()
		c.obs.OnMessageDropped(m)
		return c.TryReceive()
	}
	m.MarkReceived()
	c.stats.recordReceive(m.Timing().Latency())
	c.obs.OnMessageReceived(m)
	if c.handler != nil {
		c.handler(m)
	}
	return m, nil
}

// ReceiveBatch drains up to max ready messages, waiting up to timeout
// for the first one. Expired messages are dropped and do not count
// toward max.
func (c *MPSCChannel) ReceiveBatch(max int, timeout time.Duration) []*message.Message {
	out := make([]*message.Message, 0, max)
	first, err := c.Receive(timeout)
	if err != nil {
		return out
	}
	out = append(out, first)
	for len(out) < max {
		m, ok := c.buf.TryPop()
		if !ok {
			break
		}
		if expiredFor(c.cfg, m) {
			c.stats.recordExpired()
			c.obs.OnMessageDropped(m)
			continue
		}
		m.MarkReceived()
		c.stats.recordReceive(m.Timing().Latency())
		c.obs.OnMessageReceived(m)
		out = append(out, m)
	}
	return out
}

func (c *MPSCChannel) Open() { c.open.Store(true) }
func (c *MPSCChannel) Close() {
	c.open.Store(false)
}
func (c *MPSCChannel) IsOpen() bool { return c.open.Load() }

// Flush drains and discards every currently queued message without
// stamping Received or updating receive statistics.
func (c *MPSCChannel) Flush() {
	for {
		if _, ok := c.buf.TryPop(); !ok {
			return
		}
	}
}

func (c *MPSCChannel) Clear() { c.buf.Clear() }

func (c *MPSCChannel) Size() int     { return int(c.buf.Size()) }
func (c *MPSCChannel) Empty() bool   { return c.buf.Empty() }
func (c *MPSCChannel) Full() bool    { return c.buf.Full() }
func (c *MPSCChannel) Capacity() int { return c.buf.Capacity() }

func (c *MPSCChannel) Statistics() Statistics {
	return c.stats.snapshot(int(c.buf.Size()))
}
func (c *MPSCChannel) ResetStatistics() { c.stats.reset() }

func (c *MPSCChannel) SetMessageHandler(h MessageHandler) { c.handler = h }
func (c *MPSCChannel) SetErrorHandler(h ErrorHandler)     { c.errH = h }
func (c *MPSCChannel) SetObserver(o Observer) {
	if o == nil {
		o = NoopObserver{}
	}
	c.obs = o
}

var _ Channel = (*MPSCChannel)(nil)
var _ BatchReceiver = (*MPSCChannel)(nil)
