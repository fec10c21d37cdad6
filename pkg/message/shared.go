package message

import (
	"reflect"
	"sync/atomic"
)

// Shared carries a reference-counted, read-only payload intended for
// fan-out. Clone increments the shared refcount and returns an
// independent handle over the same underlying data.
type Shared[T any] struct {
	data *T
	refs *atomic.Int64
}

// NewShared wraps v in a Shared carrier with an initial refcount of 1.
func NewShared[T any](v *T) *Shared[T] {
	refs := new(atomic.Int64)
	refs.Store(1)
	return &Shared[T]{data: v, refs: refs}
}

func (s *Shared[T]) Kind() PayloadKind { return KindShared }

func (s *Shared[T]) Size() int {
	if s.data == nil {
		return 0
	}
	t := reflect.TypeOf(*s.data)
	if t == nil {
		return 0
	}
	return int(t.Size())
}

// Get returns the shared, read-only payload. Mutation through the
// returned pointer after the first publish is undefined.
func (s *Shared[T]) Get() *T { return s.data }

// RefCount returns the current shared reference count.
func (s *Shared[T]) RefCount() int64 { return s.refs.Load() }

// Clone increments the refcount and returns a new handle sharing the
// same underlying data. Used by the Bus fan-out path when a Shared
// payload is delivered to more than one subscription.
func (s *Shared[T]) Clone() *Shared[T] {
	s.refs.Add(1)
	return &Shared[T]{data: s.data, refs: s.refs}
}

// ClonePayload implements PayloadCloner.
func (s *Shared[T]) ClonePayload() Payload { return s.Clone() }

// Release decrements the refcount and returns the value after
// decrementing. Callers that drop a Shared handle without reading the
// payload again should call Release to keep RefCount accurate.
func (s *Shared[T]) Release() int64 {
	return s.refs.Add(-1)
}
