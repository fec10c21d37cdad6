// Package channel implements the point-to-point message carrier that
// sits between a ring buffer (or a mutex-guarded FIFO, for the fully
// flexible variant) and a consumer: blocking/timeout/backpressure
// policy, statistics, and lifecycle.
package channel

import (
	"sync"
	"time"

	"github.com/chris-alexander-pop/pktbus/pkg/errors"
	"github.com/chris-alexander-pop/pktbus/pkg/message"
)

// MessageHandler is invoked by Receive/TryReceive after a message is
// successfully dequeued (and found not expired).
type MessageHandler func(*message.Message)

// ErrorHandler is invoked when a Channel operation fails in a way worth
// surfacing outside a direct return value.
type ErrorHandler func(description string)

// Observer receives Channel lifecycle events. Implementations must not
// block: the Channel calls observer methods synchronously on the
// send/receive hot path.
type Observer interface {
	OnMessageSent(m *message.Message)
	OnMessageReceived(m *message.Message)
	OnMessageDropped(m *message.Message)
	OnQueueFull()
	OnErrorOccurred(description string)
}

// NoopObserver implements Observer with no-ops; embed it to implement a
// subset of the interface.
type NoopObserver struct{}

func (NoopObserver) OnMessageSent(*message.Message)     {}
func (NoopObserver) OnMessageReceived(*message.Message) {}
func (NoopObserver) OnMessageDropped(*message.Message)  {}
func (NoopObserver) OnQueueFull()                       {}
func (NoopObserver) OnErrorOccurred(string)             {}

// Config controls a Channel's buffering and backpressure policy.
type Config struct {
	BufferSize       int
	DropOnFull       bool
	BlockingSend     bool
	SendTimeout      time.Duration
	EnableStatistics bool
	MessageTTL       time.Duration // zero = no per-channel expiration
}

// DefaultConfig returns a non-blocking 1024-slot configuration with
// statistics enabled.
func DefaultConfig() Config {
	return Config{
		BufferSize:       1024,
		DropOnFull:       false,
		BlockingSend:     false,
		SendTimeout:      100 * time.Millisecond,
		EnableStatistics: true,
	}
}

// HighThroughput is a preset favoring throughput over reliability: a
// large buffer with non-blocking drop-on-full sends.
func HighThroughput() Config {
	c := DefaultConfig()
	c.BufferSize = 4096
	c.DropOnFull = true
	c.BlockingSend = false
	return c
}

// Reliable is a preset favoring delivery over throughput: a moderate
// buffer with blocking sends and a one second timeout.
func Reliable() Config {
	c := DefaultConfig()
	c.BufferSize = 1024
	c.DropOnFull = false
	c.BlockingSend = true
	c.SendTimeout = time.Second
	return c
}

// Statistics is a point-in-time snapshot of a Channel's counters.
type Statistics struct {
	MessagesSent     uint64
	MessagesReceived uint64
	MessagesDropped  uint64
	MessagesExpired  uint64
	CurrentQueueSize int
	AverageLatencyUs float64
	PeakLatencyUs    int64
	ThroughputMsgSec float64
	LastResetTime    time.Time
}

// Channel is the common interface implemented by the SPSC, MPSC, and
// Buffered variants.
type Channel interface {
	Name() string
	Config() Config

	Send(m *message.Message) error
	TrySend(m *message.Message) error
	TimedSend(m *message.Message, timeout time.Duration) error

	Receive(timeout time.Duration) (*message.Message, error)
	TryReceive() (*message.Message, error)

	Open()
	Close()
	IsOpen() bool
	Flush()
	Clear()

	Size() int
	Empty() bool
	Full() bool
	Capacity() int

	Statistics() Statistics
	ResetStatistics()
	SetMessageHandler(MessageHandler)
	SetErrorHandler(ErrorHandler)
	SetObserver(Observer)
}

// BatchReceiver is implemented additionally by the MPSC variant.
type BatchReceiver interface {
	ReceiveBatch(max int, timeout time.Duration) []*message.Message
}

const throughputUpdateInterval = time.Second

// stats holds the mutable statistics state shared by all variants,
// guarded by its own mutex so delivery never needs the variant's main
// lock to update counters.
type stats struct {
	mu      sync.Mutex
	enabled bool
	s       Statistics

	lastThroughputUpdate time.Time
	messagesInPeriod     uint64
}

func newStats(enabled bool) *stats {
	return &stats{
		enabled:              enabled,
		s:                    Statistics{LastResetTime: time.Now()},
		lastThroughputUpdate: time.Now(),
	}
}

func (st *stats) recordSend(dropped bool) {
	if !st.enabled {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if dropped {
		st.s.MessagesDropped++
		return
	}
	st.s.MessagesSent++
}

func (st *stats) recordExpired() {
	if !st.enabled {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.MessagesExpired++
}

func (st *stats) recordReceive(latency time.Duration) {
	if !st.enabled {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.MessagesReceived++

	latencyUs := float64(latency.Microseconds())
	if st.s.MessagesReceived == 1 {
		st.s.AverageLatencyUs = latencyUs
	} else {
		const alpha = 0.1
		st.s.AverageLatencyUs = alpha*latencyUs + (1-alpha)*st.s.AverageLatencyUs
	}
	if latency.Microseconds() > st.s.PeakLatencyUs {
		st.s.PeakLatencyUs = latency.Microseconds()
	}

	st.messagesInPeriod++
	now := time.Now()
	elapsed := now.Sub(st.lastThroughputUpdate)
	if elapsed >= throughputUpdateInterval {
		st.s.ThroughputMsgSec = float64(st.messagesInPeriod) * 1000.0 / float64(elapsed.Milliseconds())
		st.messagesInPeriod = 0
		st.lastThroughputUpdate = now
	}
}

func (st *stats) snapshot(queueSize int) Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.s
	s.CurrentQueueSize = queueSize
	return s
}

func (st *stats) reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s = Statistics{LastResetTime: time.Now()}
	st.messagesInPeriod = 0
	st.lastThroughputUpdate = time.Now()
}

// Error codes surfaced by Channel operations.
const (
	CodeFull            = errors.CodeFull
	CodeTimeout         = errors.CodeTimeout
	CodeClosed          = errors.CodeClosed
	CodeExpired         = errors.CodeExpired
	CodeInvalidArgument = errors.CodeInvalidArgument
)

var (
	ErrFull            = errors.New(CodeFull, "channel is full", nil)
	ErrTimeout         = errors.New(CodeTimeout, "channel operation timed out", nil)
	ErrClosed          = errors.New(CodeClosed, "channel is closed", nil)
	ErrExpired         = errors.New(CodeExpired, "message expired before delivery", nil)
	ErrInvalidArgument = errors.New(CodeInvalidArgument, "invalid channel argument", nil)
)

// ErrEmpty is returned by TryReceive (and a zero-timeout Receive) when
// no message is available; the blocking Receive loops also use it
// internally to distinguish "nothing yet" from a real failure.
var ErrEmpty = errors.New(errors.CodeNotFound, "channel: no message available", nil)

// expiredFor reports whether m has outlived either its own TTL or the
// channel-level MessageTTL. Checked on both enqueue and dequeue.
func expiredFor(cfg Config, m *message.Message) bool {
	if m.Expired() {
		return true
	}
	return cfg.MessageTTL > 0 && m.Timing().Age() > cfg.MessageTTL
}
