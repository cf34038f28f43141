// Package slot provides a mutable value cell bound to a context.
//
// A Slot belongs to one goroutine of execution: a request handler or a pool worker.
// It is not synchronized. Work handed to another goroutine must carry a snapshot,
// not the slot itself.
package slot

import "context"

// Slot holds at most one value of T.
type Slot[T any] struct {
	v  T
	ok bool
}

// Set stores v.
func (s *Slot[T]) Set(v T) { s.v, s.ok = v, true }

// Get returns the stored value and whether one is present.
func (s *Slot[T]) Get() (T, bool) { return s.v, s.ok }

// Clear empties the slot.
func (s *Slot[T]) Clear() {
	var zero T
	s.v, s.ok = zero, false
}

// Swap stores (v, ok) and returns the previous contents.
func (s *Slot[T]) Swap(v T, ok bool) (T, bool) {
	pv, pok := s.v, s.ok
	if ok {
		s.v, s.ok = v, true
	} else {
		s.Clear()
	}
	return pv, pok
}

type key[T any] struct{}

// Bind returns a child context carrying s.
func Bind[T any](ctx context.Context, s *Slot[T]) context.Context {
	return context.WithValue(ctx, key[T]{}, s)
}

// From returns the slot of T bound to ctx.
func From[T any](ctx context.Context) (*Slot[T], bool) {
	s, ok := ctx.Value(key[T]{}).(*Slot[T])
	return s, ok && s != nil
}

// Ensure returns the slot of T bound to ctx, binding a fresh one if absent.
func Ensure[T any](ctx context.Context) (context.Context, *Slot[T]) {
	if s, ok := From[T](ctx); ok {
		return ctx, s
	}
	s := &Slot[T]{}
	return Bind(ctx, s), s
}
