package engine

import (
	"fmt"

	"github.com/roach88/scaffolding/internal/store"
	"github.com/roach88/scaffolding/internal/typemap"
)

// Access is the kind of handle an argument holds on a state.
type Access int

const (
	// AccessNone marks an argument that holds no state handle.
	AccessNone Access = iota
	// AccessRead is a shared read view.
	AccessRead
	// AccessWrite is a write intent; it excludes every other handle on the
	// same state within one invocation.
	AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// conflicts reports whether a handle of kind a may not coexist with one of
// kind b on the same state.
func (a Access) conflicts(b Access) bool {
	if a == AccessNone || b == AccessNone {
		return false
	}
	return a == AccessWrite || b == AccessWrite
}

// Spec declares which state an argument touches and how. Arguments with
// AccessNone or a zero Target take no part in aliasing checks.
type Spec interface {
	Target() typemap.ID
	Access() Access
}

// Arg is a declared executable argument in type-erased form. Bind builds
// the handle for one invocation; the invocation has already checked the
// argument's claim against the others.
//
// Applications add their own argument kinds by implementing Param, either
// directly or through Custom. A handle that also implements Flusher is
// flushed after the logic succeeds.
type Arg interface {
	Spec
	Bind(inv *Invocation) (any, error)
}

// Param is an Arg whose handle has type H.
type Param[H any] interface {
	Arg
	Extract(inv *Invocation) (H, error)
}

// Flusher is implemented by handles that turn recorded changes into
// mutations when the invocation finishes.
type Flusher interface {
	Flush(inv *Invocation) error
}

// Read declares a read handle on state T. The state must be present; a
// missing state fails extraction.
func Read[T any]() Param[*Ref[T]] { return readParam[T]{} }

// Optional declares a read handle on state T that tolerates absence.
func Optional[T any]() Param[*Opt[T]] { return optionalParam[T]{} }

// Write declares a write intent on state T. When T is absent the handle
// starts from the zero value and a flush inserts it.
func Write[T any]() Param[*Mut[T]] { return writeParam[T]{} }

// Custom declares an application-defined argument. target and access feed
// the aliasing check; pass a zero ID and AccessNone for arguments that do
// not touch store state.
func Custom[H any](target typemap.ID, access Access, extract func(*Invocation) (H, error)) Param[H] {
	return &customParam[H]{target: target, access: access, extract: extract}
}

type readParam[T any] struct{}

func (readParam[T]) Target() typemap.ID { return typemap.IDOf[T]() }
func (readParam[T]) Access() Access     { return AccessRead }

func (p readParam[T]) Bind(inv *Invocation) (any, error) { return p.Extract(inv) }

func (readParam[T]) Extract(inv *Invocation) (*Ref[T], error) {
	v, ok := store.View[T](inv.store)
	if !ok {
		return nil, store.NewMissingStateError(typemap.IDOf[T]().String())
	}
	return &Ref[T]{v: v}, nil
}

type optionalParam[T any] struct{}

func (optionalParam[T]) Target() typemap.ID { return typemap.IDOf[T]() }
func (optionalParam[T]) Access() Access     { return AccessRead }

func (p optionalParam[T]) Bind(inv *Invocation) (any, error) { return p.Extract(inv) }

func (optionalParam[T]) Extract(inv *Invocation) (*Opt[T], error) {
	v, _ := store.View[T](inv.store)
	return &Opt[T]{v: v}, nil
}

type writeParam[T any] struct{}

func (writeParam[T]) Target() typemap.ID { return typemap.IDOf[T]() }
func (writeParam[T]) Access() Access     { return AccessWrite }

func (p writeParam[T]) Bind(inv *Invocation) (any, error) { return p.Extract(inv) }

func (writeParam[T]) Extract(inv *Invocation) (*Mut[T], error) {
	m := &Mut[T]{inv: inv}
	if v, ok := store.View[T](inv.store); ok {
		m.val = store.Snapshot(*v)
		m.existed = true
	}
	return m, nil
}

type customParam[H any] struct {
	target  typemap.ID
	access  Access
	extract func(*Invocation) (H, error)
}

func (p *customParam[H]) Target() typemap.ID { return p.target }
func (p *customParam[H]) Access() Access     { return p.access }

func (p *customParam[H]) Bind(inv *Invocation) (any, error) { return p.Extract(inv) }

func (p *customParam[H]) Extract(inv *Invocation) (H, error) { return p.extract(inv) }

// Ref is a read handle on committed state.
type Ref[T any] struct {
	v *T
}

// Get returns a copy of the state.
func (r *Ref[T]) Get() T { return *r.v }

// View returns the committed state itself. It must not be modified.
func (r *Ref[T]) View() *T { return r.v }

// Opt is a read handle on state that may be absent.
type Opt[T any] struct {
	v *T
}

// Get returns a copy of the state, or false if it is absent.
func (o *Opt[T]) Get() (T, bool) {
	if o.v == nil {
		var zero T
		return zero, false
	}
	return *o.v, true
}

// Present reports whether the state exists.
func (o *Opt[T]) Present() bool { return o.v != nil }

// Mut is a write-intent handle. It edits a private working copy; the store
// only changes when the resulting Replace mutation is committed.
//
// In ModeImmediate every Set and Modify emits a Replace carrying the
// working copy at that point. In ModeDelayed a single Replace is emitted
// at flush if anything changed.
type Mut[T any] struct {
	inv     *Invocation
	val     T
	existed bool
	dirty   bool
}

// Get returns the working copy.
func (m *Mut[T]) Get() T { return m.val }

// Existed reports whether the state was present when the handle was
// extracted.
func (m *Mut[T]) Existed() bool { return m.existed }

// Set replaces the working copy.
func (m *Mut[T]) Set(v T) {
	m.val = v
	m.changed()
}

// Modify edits the working copy in place.
func (m *Mut[T]) Modify(fn func(*T)) {
	fn(&m.val)
	m.changed()
}

func (m *Mut[T]) changed() {
	if m.inv.mode == ModeImmediate {
		m.inv.record(m.inv.Emit(m.mutation()))
		return
	}
	m.dirty = true
}

func (m *Mut[T]) mutation() store.Mutation {
	return store.Replace[T]{Value: store.Snapshot(m.val)}
}

// Flush emits the pending Replace, if any.
func (m *Mut[T]) Flush(inv *Invocation) error {
	if !m.dirty {
		return nil
	}
	m.dirty = false
	return inv.Emit(m.mutation())
}
