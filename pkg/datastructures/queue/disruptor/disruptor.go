// Package disruptor implements a bounded, lock-free, multi-producer/
// multi-consumer ring buffer using a CAS sequence-ticket protocol on each
// slot. Any number of goroutines may call the producer-side and
// consumer-side methods concurrently.
package disruptor

import (
	"errors"
	"sync/atomic"
)

// ErrInvalidCapacity is returned by New when capacity is zero, negative,
// or would require more than half the address space after rounding.
var ErrInvalidCapacity = errors.New("disruptor: invalid capacity")

const cacheLinePad = 64 - 8

type padded64 struct {
	v atomic.Uint64
	_ [cacheLinePad]byte
}

// slot carries the sequence ticket alongside its payload. sequence
// encodes both slot state and generation: it starts at the slot's index
// i and cycles through i, i+1, i+capacity, i+capacity+1, ...
type slot[T any] struct {
	sequence atomic.Uint64
	data     T
	_        [cacheLinePad]byte
}

// Buffer is a bounded lock-free MPMC ring buffer over values of type T.
type Buffer[T any] struct {
	slots []slot[T]
	mask  uint64

	head padded64
	tail padded64

	pushes         atomic.Uint64
	pops           atomic.Uint64
	pushFailures   atomic.Uint64
	popFailures    atomic.Uint64
	casFailures    atomic.Uint64
	backPressure   atomic.Bool
	bpThreshold    atomic.Uint64
	backPressureEv atomic.Uint64
}

// Statistics is a point-in-time snapshot of Buffer counters.
type Statistics struct {
	TotalPushes        uint64
	TotalPops          uint64
	PushFailures       uint64
	PopFailures        uint64
	CASFailures        uint64
	CurrentSize        int64
	UtilizationPercent float64
	BackPressureEvents uint64
}

// New creates a Buffer whose capacity is rounded up to the next power of
// two that is at least capacity and at least 2.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	cap64 := nextPowerOfTwo(uint64(capacity))
	if cap64 < 2 {
		cap64 = 2
	}
	if cap64 > (1 << 62) {
		return nil, ErrInvalidCapacity
	}
	b := &Buffer[T]{
		slots: make([]slot[T], cap64),
		mask:  cap64 - 1,
	}
	for i := range b.slots {
		b.slots[i].sequence.Store(uint64(i))
	}
	return b, nil
}

func nextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Capacity returns the rounded buffer capacity.
func (b *Buffer[T]) Capacity() int {
	return int(b.mask + 1)
}

// TryPush attempts a non-blocking enqueue from any number of concurrent
// producers. Returns false iff the buffer is full.
func (b *Buffer[T]) TryPush(value T) bool {
	for {
		head := b.head.v.Load()
		s := &b.slots[head&b.mask]
		seq := s.sequence.Load()
		diff := int64(seq) - int64(head)

		switch {
		case diff == 0:
			if b.head.v.CompareAndSwap(head, head+1) {
				s.data = value
				s.sequence.Store(head + 1)
				b.pushes.Add(1)
				if b.backPressure.Load() {
					size := b.head.v.Load() - b.tail.v.Load()
					if size > b.bpThreshold.Load() {
						b.backPressureEv.Add(1)
					}
				}
				return true
			}
			b.casFailures.Add(1)
			// lost the race; retry from a fresh head
		case diff < 0:
			b.pushFailures.Add(1)
			return false
		default:
			// another producer is mid-write into a later generation of this
			// slot; re-read head and retry
		}
	}
}

// TryPop attempts a non-blocking dequeue from any number of concurrent
// consumers. Returns the zero value and false iff the buffer is empty.
func (b *Buffer[T]) TryPop() (T, bool) {
	var zero T
	for {
		tail := b.tail.v.Load()
		s := &b.slots[tail&b.mask]
		seq := s.sequence.Load()
		diff := int64(seq) - int64(tail+1)

		switch {
		case diff == 0:
			if b.tail.v.CompareAndSwap(tail, tail+1) {
				// The CAS above is the sole arbiter of ownership over this
				// generation of the slot: once it succeeds, no other
				// consumer can also hold it, so the read of s.data here
				// cannot race and cannot "fail" the way a separate
				// tryLoad step could. This is the resolution of the open
				// question about a reachable CAS-succeeds-then-load-fails
				// path: it is structurally unreachable in this port.
				value := s.data
				s.data = zero
				s.sequence.Store(tail + b.Capacity64())
				b.pops.Add(1)
				return value, true
			}
			b.casFailures.Add(1)
			// lost the race; retry from a fresh tail
		case diff < 0:
			b.popFailures.Add(1)
			return zero, false
		default:
			// another consumer is mid-read of this generation; re-read tail
		}
	}
}

// Capacity64 returns the capacity as a uint64, used internally for the
// slot re-arming arithmetic.
func (b *Buffer[T]) Capacity64() uint64 {
	return b.mask + 1
}

// TryPeek returns the value at the current tail without claiming it.
// Non-mutating; may race with a concurrent TryPop.
func (b *Buffer[T]) TryPeek() (T, bool) {
	var zero T
	tail := b.tail.v.Load()
	s := &b.slots[tail&b.mask]
	if s.sequence.Load() == tail+1 {
		return s.data, true
	}
	return zero, false
}

// TryPushFunc lets the caller construct the value in place via a closure
// over *T, mirroring a publish-in-slot API. It is a thin convenience
// wrapper over TryPush.
func (b *Buffer[T]) TryPushFunc(fn func(*T)) bool {
	var v T
	fn(&v)
	return b.TryPush(v)
}

// TryPopFunc pops a value and hands it to fn, mirroring a consume-in-slot
// API. Returns false iff the buffer was empty; fn is not called in that
// case.
func (b *Buffer[T]) TryPopFunc(fn func(T)) bool {
	v, ok := b.TryPop()
	if !ok {
		return false
	}
	fn(v)
	return true
}

// Size returns an approximate element count.
func (b *Buffer[T]) Size() int64 {
	return int64(b.head.v.Load() - b.tail.v.Load())
}

// Empty reports whether the buffer is (approximately) empty.
func (b *Buffer[T]) Empty() bool { return b.Size() == 0 }

// Full reports whether the buffer is (approximately) full.
func (b *Buffer[T]) Full() bool { return b.Size() >= int64(b.Capacity()) }

// Clear drains the buffer and resets all slot sequences. Single-threaded
// use only: callers must ensure no concurrent producer or consumer is
// active.
func (b *Buffer[T]) Clear() {
	for b.popOne() {
	}
	for i := range b.slots {
		var zero T
		b.slots[i].data = zero
		b.slots[i].sequence.Store(uint64(i))
	}
	b.head.v.Store(0)
	b.tail.v.Store(0)
}

func (b *Buffer[T]) popOne() bool {
	_, ok := b.TryPop()
	return ok
}

// SetBackPressure arms (or disarms) back-pressure tracking. threshold is
// a fraction of capacity in (0, 1].
func (b *Buffer[T]) SetBackPressure(enabled bool, threshold float64) {
	b.backPressure.Store(enabled)
	if threshold <= 0 {
		threshold = 0.8
	}
	b.bpThreshold.Store(uint64(threshold * float64(b.Capacity())))
}

// ShouldApplyBackPressure reports whether size currently exceeds the
// armed threshold.
func (b *Buffer[T]) ShouldApplyBackPressure() bool {
	if !b.backPressure.Load() {
		return false
	}
	return uint64(b.Size()) > b.bpThreshold.Load()
}

// GetStatistics returns a snapshot of the buffer's counters.
func (b *Buffer[T]) GetStatistics() Statistics {
	size := b.Size()
	cap := b.Capacity()
	util := 0.0
	if cap > 0 {
		util = float64(size) / float64(cap) * 100.0
	}
	return Statistics{
		TotalPushes:        b.pushes.Load(),
		TotalPops:          b.pops.Load(),
		PushFailures:       b.pushFailures.Load(),
		PopFailures:        b.popFailures.Load(),
		CASFailures:        b.casFailures.Load(),
		CurrentSize:        size,
		UtilizationPercent: util,
		BackPressureEvents: b.backPressureEv.Load(),
	}
}

// ResetStatistics zeroes all counters without touching buffer contents.
func (b *Buffer[T]) ResetStatistics() {
	b.pushes.Store(0)
	b.pops.Store(0)
	b.pushFailures.Store(0)
	b.popFailures.Store(0)
	b.casFailures.Store(0)
	b.backPressureEv.Store(0)
}
