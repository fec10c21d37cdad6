package channel

import (
	"sync/atomic"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/datastructures/queue/ring"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
)

// SPSCChannel is backed by the lock-free single-producer/single-consumer
// ring buffer. Exactly one goroutine may send and exactly one may
// receive; see pkg/datastructures/queue/ring for the concurrency
// contract. TimedSend/Receive poll rather than block on a condition
// variable, since introducing a mutex here would defeat the point of
// the lock-free buffer underneath.
type SPSCChannel struct {
	name string
	cfg  Config
	buf  *ring.Buffer[*message.Message]

	open atomic.Bool

	stats *stats

	handler MessageHandler
	errH    ErrorHandler
	obs     Observer
}

// NewSPSC creates an SPSCChannel with the given name and configuration.
func NewSPSC(name string, cfg Config) (*SPSCChannel, error) {
	b, err := ring.New[*message.Message](cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	c := &SPSCChannel{
		name:  name,
		cfg:   cfg,
		buf:   b,
		stats: newStats(cfg.EnableStatistics),
		obs:   NoopObserver{},
	}
	c.open.Store(true)
	return c, nil
}

func (c *SPSCChannel) Name() string   { return c.name }
func (c *SPSCChannel) Config() Config { return c.cfg }

func (c *SPSCChannel) Send(m *message.Message) error {
	if c.cfg.BlockingSend {
		return c.TimedSend(m, c.cfg.SendTimeout)
	}
	return c.TrySend(m)
}

func (c *SPSCChannel) TrySend(m *message.Message) error {
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

func (c *SPSCChannel) TimedSend(m *message.Message, timeout time.Duration) error {
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
func (c *SPSCChannel) Receive(timeout time.Duration) (*message.Message, error) {
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

func (c *SPSCChannel) TryReceive() (*message.Message, error) {
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

func (c *SPSCChannel) Open()        { c.open.Store(true) }
func (c *SPSCChannel) Close()       { c.open.Store(false) }
func (c *SPSCChannel) IsOpen() bool { return c.open.Load() }

// Flush drains and discards every currently queued message without
// stamping Received or updating receive statistics.
func (c *SPSCChannel) Flush() {
	for {
		if _, ok := c.buf.TryPop(); !ok {
			return
		}
	}
}

func (c *SPSCChannel) Clear() { c.buf.Clear() }

func (c *SPSCChannel) Size() int     { return c.buf.Size() }
func (c *SPSCChannel) Empty() bool   { return c.buf.Empty() }
func (c *SPSCChannel) Full() bool    { return c.buf.Full() }
func (c *SPSCChannel) Capacity() int { return c.buf.Capacity() }

func (c *SPSCChannel) Statistics() Statistics { return c.stats.snapshot(c.buf.Size()) }
func (c *SPSCChannel) ResetStatistics()       { c.stats.reset() }

func (c *SPSCChannel) SetMessageHandler(h MessageHandler) { c.handler = h }
func (c *SPSCChannel) SetErrorHandler(h ErrorHandler)     { c.errH = h }
func (c *SPSCChannel) SetObserver(o Observer) {
	if o == nil {
		o = NoopObserver{}
	}
	c.obs = o
}

var _ Channel = (*SPSCChannel)(nil)
