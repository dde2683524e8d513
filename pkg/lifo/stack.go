// Package lifo implements a lock-free, last-in-first-out stack, used by
// the connection pool as the idle-deque value for one event loop: each
// per-loop deque needs concurrent poll/offer/remove without a mutex. No
// library in the dependency stack ships a generic lock-free LIFO deque,
// so this is a standard Treiber-stack construction over atomic.Pointer —
// see DESIGN.md for why this one concern is built on sync/atomic rather
// than a third-party dependency.
package lifo

import "sync/atomic"

type node[T any] struct {
	value T
	next  *node[T]
}

// Stack is a lock-free LIFO. The zero value is ready to use.
type Stack[T any] struct {
	head atomic.Pointer[node[T]]
	size atomic.Int64
}

// New returns an empty stack.
func New[T any]() *Stack[T] {
	return &Stack[T]{}
}

// Push adds v to the front of the stack.
func (s *Stack[T]) Push(v T) {
	n := &node[T]{value: v}
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			s.size.Add(1)
			return
		}
	}
}

// Pop removes and returns the front value, if any.
func (s *Stack[T]) Pop() (T, bool) {
	for {
		old := s.head.Load()
		if old == nil {
			var zero T
			return zero, false
		}
		if s.head.CompareAndSwap(old, old.next) {
			s.size.Add(-1)
			return old.value, true
		}
	}
}

// Len returns the approximate current length. Under concurrent
// Push/Pop this is a snapshot and may be transiently off by one.
func (s *Stack[T]) Len() int {
	return int(s.size.Load())
}

// Remove deletes the first node matching pred, returning whether one was
// found. This is the pool's rarely-used cross-loop eviction path and is
// not lock-free internally: it walks and reconstructs the chain under a
// compare-and-swap retry loop, which is acceptable because Remove is a
// cold path.
func (s *Stack[T]) Remove(pred func(T) bool) bool {
	for {
		old := s.head.Load()
		kept, removed := filterOut(old, pred)
		if !removed {
			return false
		}
		if s.head.CompareAndSwap(old, kept) {
			s.size.Add(-1)
			return true
		}
	}
}

// filterOut returns a fresh chain with the first node matching pred
// removed, and whether a match was found. It never mutates existing
// nodes shared with a concurrent reader.
func filterOut[T any](head *node[T], pred func(T) bool) (*node[T], bool) {
	var values []T
	found := false
	for n := head; n != nil; n = n.next {
		if !found && pred(n.value) {
			found = true
			continue
		}
		values = append(values, n.value)
	}
	if !found {
		return head, false
	}
	var newHead *node[T]
	for i := len(values) - 1; i >= 0; i-- {
		newHead = &node[T]{value: values[i], next: newHead}
	}
	return newHead, true
}

// Drain removes and returns every value currently on the stack, in
// front-to-back (most-recently-pushed-first) order. Used by Shutdown.
func (s *Stack[T]) Drain() []T {
	old := s.head.Swap(nil)
	var out []T
	for n := old; n != nil; n = n.next {
		out = append(out, n.value)
	}
	s.size.Add(-int64(len(out)))
	return out
}
