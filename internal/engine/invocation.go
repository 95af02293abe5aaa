package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/scaffolding/internal/stackvec"
	"github.com/roach88/scaffolding/internal/store"
	"github.com/roach88/scaffolding/internal/typemap"
)

// Invocation is one run of an executable. It lives for the duration of
// the call and must not be retained by logic or handles.
//
// Phases, in order:
//  1. claim: every declared argument with state access is checked against
//     the earlier ones; a conflict is an aliasing violation and nothing
//     else happens.
//  2. extract: each argument builds its handle.
//  3. execute: the logic runs.
//  4. flush: handles implementing Flusher emit their mutations, in
//     declaration order. Skipped when the logic fails.
type Invocation struct {
	exe    *Executable
	store  *store.Store
	mode   Mode
	sink   func(store.Mutation) error
	claims stackvec.Vec[claim]

	handles stackvec.Vec[any]
	emitted int
	err     error
}

type claim struct {
	id     typemap.ID
	access Access
}

// Name returns the name of the executable being run.
func (inv *Invocation) Name() string { return inv.exe.name }

// Mode returns the capture mode of the run.
func (inv *Invocation) Mode() Mode { return inv.mode }

// Store returns the store the arguments are extracted from. Argument
// implementations use it during extraction; logic should go through its
// declared handles.
func (inv *Invocation) Store() *store.Store { return inv.store }

// Emitted returns how many mutations the invocation has emitted so far.
func (inv *Invocation) Emitted() int { return inv.emitted }

// Emit hands m to the run. Sequential runs enqueue it on the store;
// parallel runs add it to the worker's local batch.
func (inv *Invocation) Emit(m store.Mutation) error {
	if m == nil {
		return nil
	}
	if err := inv.sink(m); err != nil {
		return err
	}
	inv.emitted++
	return nil
}

// record keeps the first error raised by a handle that cannot return one.
func (inv *Invocation) record(err error) {
	if err != nil && inv.err == nil {
		inv.err = err
	}
}

// Lookup returns the first bound handle of type H. Asking for a handle the
// executable did not declare is an UNDECLARED_ARGUMENT error.
func Lookup[H any](inv *Invocation) (H, error) {
	for _, h := range inv.handles.All() {
		if v, ok := h.(H); ok {
			return v, nil
		}
	}
	var zero H
	return zero, &RuntimeError{
		Code:       ErrCodeUndeclared,
		Message:    fmt.Sprintf("no declared argument yields %T", zero),
		Executable: inv.exe.name,
	}
}

// invoke runs exe once against s, handing emitted mutations to sink.
func (e *Executable) invoke(s *store.Store, mode Mode, sink func(store.Mutation) error) (err error) {
	inv := &Invocation{exe: e, store: s, mode: mode, sink: sink}

	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Code:       ErrCodePanic,
				Message:    fmt.Sprintf("panic: %v", r),
				Executable: e.name,
			}
		}
	}()

	if err := inv.claim(); err != nil {
		return err
	}
	if err := inv.extract(); err != nil {
		return err
	}
	if err := e.logic(inv); err != nil {
		return inv.failed(err)
	}
	if inv.err != nil {
		return inv.failed(inv.err)
	}
	return inv.flush()
}

func (inv *Invocation) claim() error {
	for _, a := range inv.exe.args.All() {
		c := claim{id: a.Target(), access: a.Access()}
		if c.id.IsZero() || c.access == AccessNone {
			continue
		}
		for _, held := range inv.claims.All() {
			if held.id == c.id && held.access.conflicts(c.access) {
				return NewAliasingError(inv.exe.name, c.id.String(), held.access, c.access)
			}
		}
		inv.claims.Push(c)
	}
	return nil
}

func (inv *Invocation) extract() error {
	for _, a := range inv.exe.args.All() {
		h, err := a.Bind(inv)
		if err != nil {
			return &RuntimeError{
				Code:       ErrCodeExtraction,
				Message:    "argument extraction failed",
				Executable: inv.exe.name,
				State:      stateName(a),
				Err:        err,
			}
		}
		inv.handles.Push(h)
	}
	return nil
}

func (inv *Invocation) flush() error {
	for _, h := range inv.handles.All() {
		f, ok := h.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(inv); err != nil {
			return inv.failed(fmt.Errorf("flush: %w", err))
		}
	}
	return nil
}

// failed passes runtime errors raised for this executable through and
// wraps everything else as EXECUTABLE_FAILED.
func (inv *Invocation) failed(err error) error {
	var re *RuntimeError
	if errors.As(err, &re) && re.Executable == inv.exe.name {
		return err
	}
	return &RuntimeError{
		Code:       ErrCodeFailed,
		Message:    "executable failed",
		Executable: inv.exe.name,
		Err:        err,
	}
}

func stateName(s Spec) string {
	if id := s.Target(); !id.IsZero() {
		return id.String()
	}
	return ""
}
