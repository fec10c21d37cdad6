package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// AsyncHandler buffers records in a channel and hands them to the next
// handler on a background goroutine, so the logging call site never
// blocks on output I/O.
type AsyncHandler struct {
	next       slog.Handler
	records    chan asyncRecord
	dropOnFull bool
	dropped    atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

type asyncRecord struct {
	ctx context.Context
	rec slog.Record
}

// NewAsyncHandler wraps next with a bufferSize-record queue. When the
// queue is full, dropOnFull selects between dropping the record and
// falling back to a synchronous Handle call.
func NewAsyncHandler(next slog.Handler, bufferSize int, dropOnFull bool) *AsyncHandler {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	h := &AsyncHandler{
		next:       next,
		records:    make(chan asyncRecord, bufferSize),
		dropOnFull: dropOnFull,
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *AsyncHandler) run() {
	for ar := range h.records {
		_ = h.next.Handle(ar.ctx, ar.rec)
	}
	close(h.done)
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	select {
	case h.records <- asyncRecord{ctx: ctx, rec: r.Clone()}:
		return nil
	default:
	}
	if h.dropOnFull {
		h.dropped.Add(1)
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		next:       h.next.WithAttrs(attrs),
		records:    h.records,
		dropOnFull: h.dropOnFull,
		done:       h.done,
	}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		next:       h.next.WithGroup(name),
		records:    h.records,
		dropOnFull: h.dropOnFull,
		done:       h.done,
	}
}

// Close stops the background goroutine after draining buffered records.
func (h *AsyncHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.records)
		<-h.done
	})
}

// Dropped returns the count of records discarded because the buffer was
// full.
func (h *AsyncHandler) Dropped() uint64 {
	return h.dropped.Load()
}

// SamplingHandler keeps roughly rate of all records, deterministically
// (every Nth record passes, N = 1/rate). WARN and above always pass.
type SamplingHandler struct {
	next     slog.Handler
	interval uint64
	counter  atomic.Uint64
}

func NewSamplingHandler(next slog.Handler, rate float64) *SamplingHandler {
	interval := uint64(1)
	if rate > 0 && rate < 1.0 {
		interval = uint64(1.0 / rate)
	}
	return &SamplingHandler{next: next, interval: interval}
}

func (h *SamplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SamplingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < slog.LevelWarn {
		n := h.counter.Add(1)
		if n%h.interval != 0 {
			return nil
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *SamplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SamplingHandler{next: h.next.WithAttrs(attrs), interval: h.interval}
}

func (h *SamplingHandler) WithGroup(name string) slog.Handler {
	return &SamplingHandler{next: h.next.WithGroup(name), interval: h.interval}
}

// RedactHandler masks the values of well-known sensitive attribute keys
// before they reach the output handler.
type RedactHandler struct {
	next slog.Handler
}

var redactedKeys = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"credential":    {},
}

func NewRedactHandler(next slog.Handler) *RedactHandler {
	return &RedactHandler{next: next}
}

func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func redactAttr(a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactHandler{next: h.next.WithAttrs(redacted)}
}

func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{next: h.next.WithGroup(name)}
}
