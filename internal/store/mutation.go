package store

import (
	"fmt"

	"github.com/roach88/scaffolding/internal/typemap"
)

// Mutation describes one change to one state instance.
//
// Mutations are queued during a run and applied exactly once, in FIFO
// order, by Commit. Apply runs with exclusive access to the store.
type Mutation interface {
	// Target identifies the state type the mutation changes.
	Target() typemap.ID

	// Apply performs the change.
	Apply(s *Store) error
}

// Invertible is a Mutation that can produce its own inverse.
//
// Inverse is called against the store as it is immediately before Apply.
// Applying the mutation and then the returned inverse leaves the target
// exactly as it was.
type Invertible interface {
	Mutation
	Inverse(s *Store) (Mutation, error)
}

// Cloner lets a state type with reference fields supply a deep copy.
// The store snapshots state through Clone whenever it keeps an old value
// for an inverse or hands a working copy to a write handle.
type Cloner[T any] interface {
	Clone() T
}

// Snapshot copies v, deep-copying when T implements Cloner.
func Snapshot[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	if c, ok := any(&v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

// Kind names a mutation for logs, metrics, and the journal.
func Kind(m Mutation) string {
	if k, ok := m.(interface{ Kind() string }); ok {
		return k.Kind()
	}
	return fmt.Sprintf("%T", m)
}

// Payload returns the value a mutation writes, if it carries one.
func Payload(m Mutation) (any, bool) {
	if p, ok := m.(interface{ Payload() any }); ok {
		return p.Payload(), true
	}
	return nil, false
}

// Replace sets the state of type T to Value, inserting it if absent.
type Replace[T any] struct {
	Value T
}

func (Replace[T]) Target() typemap.ID { return typemap.IDOf[T]() }

func (Replace[T]) Kind() string { return "replace" }

func (m Replace[T]) Payload() any { return m.Value }

func (m Replace[T]) Apply(s *Store) error {
	typemap.Insert(s.states, Snapshot(m.Value))
	return nil
}

// Inverse restores the previous value, or removes the state if there was none.
func (m Replace[T]) Inverse(s *Store) (Mutation, error) {
	return restore[T](s), nil
}

// Remove deletes the state of type T. Removing an absent state is a no-op.
type Remove[T any] struct{}

func (Remove[T]) Target() typemap.ID { return typemap.IDOf[T]() }

func (Remove[T]) Kind() string { return "remove" }

func (Remove[T]) Apply(s *Store) error {
	typemap.Remove[T](s.states)
	return nil
}

func (Remove[T]) Inverse(s *Store) (Mutation, error) {
	return restore[T](s), nil
}

// Update edits the existing state of type T in place.
type Update[T any] struct {
	Fn func(*T)
}

func (Update[T]) Target() typemap.ID { return typemap.IDOf[T]() }

func (Update[T]) Kind() string { return "update" }

func (m Update[T]) Apply(s *Store) error {
	p, ok := typemap.Get[T](s.states)
	if !ok {
		return NewMissingStateError(typemap.IDOf[T]().String())
	}
	m.Fn(p)
	return nil
}

func (Update[T]) Inverse(s *Store) (Mutation, error) {
	return restore[T](s), nil
}

// Func is an arbitrary, non-invertible change. A commit containing one
// clears the undo history.
type Func struct {
	ID   typemap.ID
	Name string
	Fn   func(*Store) error
}

func (m Func) Target() typemap.ID { return m.ID }

func (m Func) Kind() string {
	if m.Name != "" {
		return m.Name
	}
	return "func"
}

func (m Func) Apply(s *Store) error { return m.Fn(s) }

// Batch groups mutations. Enqueue flattens a Batch into its elements, so
// each element is applied, stamped, and inverted on its own.
type Batch []Mutation

// Target reports the zero ID; a Batch has no single target.
func (Batch) Target() typemap.ID { return typemap.ID{} }

func (Batch) Kind() string { return "batch" }

func (b Batch) Apply(s *Store) error {
	for _, m := range b {
		if err := m.Apply(s); err != nil {
			return err
		}
	}
	return nil
}

// Flatten expands nested batches into a flat, ordered list.
func Flatten(m Mutation) []Mutation {
	b, ok := m.(Batch)
	if !ok {
		if m == nil {
			return nil
		}
		return []Mutation{m}
	}
	out := make([]Mutation, 0, len(b))
	for _, e := range b {
		out = append(out, Flatten(e)...)
	}
	return out
}

// restore returns the mutation that brings T back to its current value.
func restore[T any](s *Store) Mutation {
	cur, ok := typemap.Get[T](s.states)
	if !ok {
		return Remove[T]{}
	}
	return Replace[T]{Value: Snapshot(*cur)}
}
