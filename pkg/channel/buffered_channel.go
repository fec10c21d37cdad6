package channel

import (
	"sync"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/datastructures/queue"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
)

// BufferedChannel is the fully flexible variant: any number of
// producers and consumers, backed by a mutex-guarded FIFO with two
// condition variables (notFull/notEmpty) rather than a lock-free ring.
type BufferedChannel struct {
	name string
	cfg  Config

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	queue    *queue.Queue[*message.Message]
	open     bool

	stats *stats

	handler MessageHandler
	errH    ErrorHandler
	obs     Observer
}

// NewBuffered creates a BufferedChannel with the given name and
// configuration.
func NewBuffered(name string, cfg Config) *BufferedChannel {
	c := &BufferedChannel{
		name:  name,
		cfg:   cfg,
		queue: queue.New[*message.Message](),
		open:  true,
		stats: newStats(cfg.EnableStatistics),
		obs:   NoopObserver{},
	}
	c.notFull = sync.NewCond(&c.mu)
	c.notEmpty = sync.NewCond(&c.mu)
	return c
}

func (c *BufferedChannel) Name() string   { return c.name }
func (c *BufferedChannel) Config() Config { return c.cfg }

func (c *BufferedChannel) Send(m *message.Message) error {
	if c.cfg.BlockingSend {
		return c.TimedSend(m, c.cfg.SendTimeout)
	}
	return c.TrySend(m)
}

func (c *BufferedChannel) TrySend(m *message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
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
	if c.queue.Len() >= c.cfg.BufferSize {
		if c.cfg.DropOnFull {
			c.stats.recordSend(true)
			c.obs.OnMessageDropped(m)
			c.obs.OnQueueFull()
			return nil
		}
		c.obs.OnQueueFull()
		return ErrFull
	}

	m.Freeze()
	m.MarkSent()
	c.queue.Enqueue(m)
	c.stats.recordSend(false)
	c.obs.OnMessageSent(m)
	c.notEmpty.Signal()
	return nil
}

func (c *BufferedChannel) TimedSend(m *message.Message, timeout time.Duration) error {
	if timeout <= 0 {
		return c.TrySend(m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
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

	deadline := time.Now().Add(timeout)
	for c.open && c.queue.Len() >= c.cfg.BufferSize {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.obs.OnErrorOccurred("send timed out")
			return ErrTimeout
		}
		waitOn(c.notFull, remaining)
	}
	if !c.open {
		return ErrClosed
	}
	if c.queue.Len() >= c.cfg.BufferSize {
		c.obs.OnErrorOccurred("send timed out")
		return ErrTimeout
	}

	m.Freeze()
	m.MarkSent()
	c.queue.Enqueue(m)
	c.stats.recordSend(false)
	c.obs.OnMessageSent(m)
	c.notEmpty.Signal()
	return nil
}

func (c *BufferedChannel) TryReceive() (*message.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

// Receive blocks on the notEmpty condition until a message arrives, the
// channel closes, or the timeout elapses. A zero timeout is
// non-blocking; a negative timeout waits indefinitely.
func (c *BufferedChannel) Receive(timeout time.Duration) (*message.Message, error) {
	if timeout == 0 {
		return c.TryReceive()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		m, err := c.popLocked()
		if err != ErrEmpty {
			return m, err
		}
		if deadline.IsZero() {
			c.notEmpty.Wait()
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		waitOn(c.notEmpty, remaining)
	}
}

// popLocked must be called with c.mu held. It skips (and counts)
// expired messages transparently, matching the SPSC/MPSC variants.
func (c *BufferedChannel) popLocked() (*message.Message, error) {
	for {
		m, ok := c.queue.Dequeue()
		if !ok {
			if !c.open {
				return nil, ErrClosed
			}
			return nil, ErrEmpty
		}
		c.notFull.Signal()
		if expiredFor(c.cfg, m) {
			c.stats.recordExpired()
			c.obs.OnMessageDropped(m)
			continue
		}
		m.MarkReceived()
		c.stats.recordReceive(m.Timing().Latency())
		c.obs.OnMessageReceived(m)
		if c.handler != nil {
			c.handler(m)
		}
		return m, nil
	}
}

func (c *BufferedChannel) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
}

func (c *BufferedChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}

func (c *BufferedChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Flush drains and discards every currently queued message without
// stamping Received or updating receive statistics.
func (c *BufferedChannel) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Clear()
	c.notFull.Broadcast()
}

func (c *BufferedChannel) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Clear()
	c.notFull.Broadcast()
}

func (c *BufferedChannel) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

func (c *BufferedChannel) Empty() bool   { return c.Size() == 0 }
func (c *BufferedChannel) Full() bool    { return c.Size() >= c.cfg.BufferSize }
func (c *BufferedChannel) Capacity() int { return c.cfg.BufferSize }

func (c *BufferedChannel) Statistics() Statistics {
	c.mu.Lock()
	size := c.queue.Len()
	c.mu.Unlock()
	return c.stats.snapshot(size)
}
func (c *BufferedChannel) ResetStatistics() { c.stats.reset() }

func (c *BufferedChannel) SetMessageHandler(h MessageHandler) { c.handler = h }
func (c *BufferedChannel) SetErrorHandler(h ErrorHandler)     { c.errH = h }
func (c *BufferedChannel) SetObserver(o Observer) {
	if o == nil {
		o = NoopObserver{}
	}
	c.obs = o
}

// waitOn waits on cond for up to d, relying on the caller to re-check
// its predicate (sync.Cond gives no timed wait natively). It briefly
// releases the lock via Wait and relies on a companion timer goroutine
// to force a wakeup if nothing else signals first.
func waitOn(cond *sync.Cond, d time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		cond.Broadcast()
		close(done)
	})
	cond.Wait()
	if !timer.Stop() {
		<-done
	}
}

var _ Channel = (*BufferedChannel)(nil)
