package message

import (
	"reflect"
	"sync/atomic"
)

// Unique carries a move-only payload behind a pointer. It emulates C++
// move semantics in Go: Take transfers ownership out and zeroes the
// internal pointer, and there is deliberately no Clone — a Unique
// payload published to more than one subscription is a publisher error
// (bus.ErrPolicyViolation), not a silent copy.
type Unique[T any] struct {
	ptr   *T
	taken atomic.Bool
}

// NewUnique wraps v in a Unique carrier. v must not be nil.
func NewUnique[T any](v *T) *Unique[T] {
	return &Unique[T]{ptr: v}
}

func (u *Unique[T]) Kind() PayloadKind { return KindUnique }

func (u *Unique[T]) Size() int {
	if u.taken.Load() || u.ptr == nil {
		return 0
	}
	t := reflect.TypeOf(*u.ptr)
	if t == nil {
		return 0
	}
	return int(t.Size())
}

// Take transfers ownership of the payload out of this handle. The
// second return is false if the payload was already taken.
func (u *Unique[T]) Take() (*T, bool) {
	if !u.taken.CompareAndSwap(false, true) {
		return nil, false
	}
	p := u.ptr
	u.ptr = nil
	return p, true
}

// Present reports whether the payload has not yet been taken.
func (u *Unique[T]) Present() bool {
	return !u.taken.Load() && u.ptr != nil
}
