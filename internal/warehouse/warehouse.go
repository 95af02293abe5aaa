// Package warehouse is a slot store supporting concurrent insert, lookup,
// and removal without a lock.
//
// Slots live in an address-stable arenavec and are never reused: a Handle
// refers to the same slot for the lifetime of the Warehouse, and once its
// value is removed the handle stays empty. Each slot carries a state word
// flipped from occupied to vacant by compare-and-swap, so exactly one
// remover wins.
package warehouse

import (
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/roach88/scaffolding/internal/arenavec"
)

// Handle names one slot.
type Handle int

// Index returns the slot index.
func (h Handle) Index() int { return int(h) }

const (
	slotVacant uint32 = iota
	slotOccupied
)

type slot[T any] struct {
	state atomic.Uint32
	val   T
}

// Warehouse stores values of type T in stable slots.
type Warehouse[T any] struct {
	slots *arenavec.Vec[slot[T]]
	live  atomic.Int64
}

// New builds a Warehouse. Options are passed to the underlying arenavec;
// WithMaxLen bounds the number of inserts over the Warehouse's lifetime.
func New[T any](opts ...arenavec.Option) (*Warehouse[T], error) {
	slots, err := arenavec.New[slot[T]](opts...)
	if err != nil {
		return nil, fmt.Errorf("warehouse: %w", err)
	}
	return &Warehouse[T]{slots: slots}, nil
}

// Insert stores v in a fresh slot.
func (w *Warehouse[T]) Insert(v T) (Handle, error) {
	i, err := w.slots.PushFunc(func(s *slot[T]) {
		s.val = v
		s.state.Store(slotOccupied)
	})
	if err != nil {
		return -1, fmt.Errorf("warehouse insert: %w", err)
	}
	w.live.Add(1)
	return Handle(i), nil
}

// Get returns the value in h's slot, or false once it has been removed.
// The pointer is shared with other readers and must be treated as
// read-only.
func (w *Warehouse[T]) Get(h Handle) (*T, bool) {
	s, ok := w.slots.Get(int(h))
	if !ok || s.state.Load() != slotOccupied {
		return nil, false
	}
	return &s.val, true
}

// Remove takes the value out of h's slot. Only the first caller for a given
// handle receives it; later calls return false.
func (w *Warehouse[T]) Remove(h Handle) (T, bool) {
	var zero T
	s, ok := w.slots.Get(int(h))
	if !ok {
		return zero, false
	}
	if !s.state.CompareAndSwap(slotOccupied, slotVacant) {
		return zero, false
	}
	w.live.Add(-1)
	return s.val, true
}

// Len returns the number of occupied slots.
func (w *Warehouse[T]) Len() int { return int(w.live.Load()) }

// Issued returns the number of slots handed out so far.
func (w *Warehouse[T]) Issued() int { return w.slots.Len() }

// All yields occupied slots in handle order.
func (w *Warehouse[T]) All() iter.Seq2[Handle, *T] {
	return func(yield func(Handle, *T) bool) {
		for i, s := range w.slots.All() {
			if s.state.Load() != slotOccupied {
				continue
			}
			if !yield(Handle(i), &s.val) {
				return
			}
		}
	}
}

// Sweep zeroes values left behind in vacant slots so they can be collected.
// Requires exclusive access.
func (w *Warehouse[T]) Sweep() {
	var zero T
	for _, s := range w.slots.All() {
		if s.state.Load() == slotVacant {
			s.val = zero
		}
	}
}

// Close releases the slot storage.
func (w *Warehouse[T]) Close() error {
	return w.slots.Close()
}
