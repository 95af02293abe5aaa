// Package stackvec provides a vector that keeps its first Inline elements
// inside the value and moves everything to the heap once it outgrows them.
//
// It is used for the short per-invocation lists on the hot path (declared
// arguments, issued handles, local mutation batches), which almost always
// fit inline. Element addresses are not stable across the spill.
package stackvec

import (
	"fmt"
	"iter"
)

// Inline is the number of elements stored without a heap allocation.
const Inline = 8

// Vec is a hybrid inline/heap vector. The zero value is empty and ready to
// use. A Vec must not be copied after first use.
type Vec[T any] struct {
	inline [Inline]T
	heap   []T
	n      int
}

// Of builds a Vec holding xs.
func Of[T any](xs ...T) Vec[T] {
	var v Vec[T]
	for _, x := range xs {
		v.Push(x)
	}
	return v
}

// Push appends x.
func (v *Vec[T]) Push(x T) {
	switch {
	case v.heap != nil:
		v.heap = append(v.heap, x)
	case v.n < Inline:
		v.inline[v.n] = x
	default:
		v.heap = make([]T, Inline, 2*Inline)
		copy(v.heap, v.inline[:])
		clear(v.inline[:])
		v.heap = append(v.heap, x)
	}
	v.n++
}

// Pop removes and returns the last element.
func (v *Vec[T]) Pop() (T, bool) {
	var zero T
	if v.n == 0 {
		return zero, false
	}
	v.n--
	if v.heap != nil {
		x := v.heap[v.n]
		v.heap[v.n] = zero
		v.heap = v.heap[:v.n]
		return x, true
	}
	x := v.inline[v.n]
	v.inline[v.n] = zero
	return x, true
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return v.n }

// Spilled reports whether the elements live on the heap.
func (v *Vec[T]) Spilled() bool { return v.heap != nil }

// At returns element i, panicking like a slice index when out of range.
func (v *Vec[T]) At(i int) T {
	return *v.ptr(i)
}

// Get returns a pointer to element i. The pointer is invalidated by the
// next Push that spills.
func (v *Vec[T]) Get(i int) (*T, bool) {
	if i < 0 || i >= v.n {
		return nil, false
	}
	return v.ptr(i), true
}

// Set overwrites element i.
func (v *Vec[T]) Set(i int, x T) {
	*v.ptr(i) = x
}

// Clear empties the vector and returns it to inline storage.
func (v *Vec[T]) Clear() {
	clear(v.inline[:])
	v.heap = nil
	v.n = 0
}

// All yields index/value pairs in order.
func (v *Vec[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := 0; i < v.n; i++ {
			if !yield(i, v.At(i)) {
				return
			}
		}
	}
}

// Slice returns a copy of the elements.
func (v *Vec[T]) Slice() []T {
	if v.heap != nil {
		return append([]T(nil), v.heap...)
	}
	return append([]T(nil), v.inline[:v.n]...)
}

func (v *Vec[T]) ptr(i int) *T {
	if i < 0 || i >= v.n {
		panic(fmt.Sprintf("stackvec: index %d out of range [0:%d]", i, v.n))
	}
	if v.heap != nil {
		return &v.heap[i]
	}
	return &v.inline[i]
}
