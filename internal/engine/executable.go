package engine

import (
	"github.com/roach88/scaffolding/internal/stackvec"
	"github.com/roach88/scaffolding/internal/typemap"
)

// Logic is the body of an executable. It reaches its handles through
// Lookup or, for the FuncN constructors, receives them as parameters.
type Logic func(inv *Invocation) error

// Executable is a named unit of logic plus the arguments it declares.
// Executables are immutable and may be run any number of times, including
// concurrently.
type Executable struct {
	name  string
	logic Logic
	args  stackvec.Vec[Arg]
}

// New creates an executable that declares args.
func New(name string, logic Logic, args ...Arg) *Executable {
	e := &Executable{name: name, logic: logic}
	for _, a := range args {
		e.args.Push(a)
	}
	return e
}

// Name returns the executable's name.
func (e *Executable) Name() string { return e.name }

// Args returns a copy of the declared arguments in declaration order.
func (e *Executable) Args() []Arg { return e.args.Slice() }

// Writes lists the states the executable declares write intent on.
func (e *Executable) Writes() []typemap.ID {
	var ids []typemap.ID
	for _, a := range e.args.All() {
		if a.Access() == AccessWrite && !a.Target().IsZero() {
			ids = append(ids, a.Target())
		}
	}
	return ids
}

// Func0 creates an executable with no arguments.
func Func0(name string, fn func() error) *Executable {
	return New(name, func(*Invocation) error { return fn() })
}

// Func1 creates an executable with one argument.
func Func1[H1 any](name string, p1 Param[H1], fn func(H1) error) *Executable {
	return New(name, func(inv *Invocation) error {
		return fn(handleAt[H1](inv, 0))
	}, p1)
}

// Func2 creates an executable with two arguments.
func Func2[H1, H2 any](name string, p1 Param[H1], p2 Param[H2], fn func(H1, H2) error) *Executable {
	return New(name, func(inv *Invocation) error {
		return fn(handleAt[H1](inv, 0), handleAt[H2](inv, 1))
	}, p1, p2)
}

// Func3 creates an executable with three arguments.
func Func3[H1, H2, H3 any](name string, p1 Param[H1], p2 Param[H2], p3 Param[H3], fn func(H1, H2, H3) error) *Executable {
	return New(name, func(inv *Invocation) error {
		return fn(handleAt[H1](inv, 0), handleAt[H2](inv, 1), handleAt[H3](inv, 2))
	}, p1, p2, p3)
}

// Func4 creates an executable with four arguments.
func Func4[H1, H2, H3, H4 any](name string, p1 Param[H1], p2 Param[H2], p3 Param[H3], p4 Param[H4], fn func(H1, H2, H3, H4) error) *Executable {
	return New(name, func(inv *Invocation) error {
		return fn(handleAt[H1](inv, 0), handleAt[H2](inv, 1), handleAt[H3](inv, 2), handleAt[H4](inv, 3))
	}, p1, p2, p3, p4)
}

// handleAt returns the handle bound for argument i. The FuncN constructors
// declare exactly the parameters they read, so the assertion cannot fail.
func handleAt[H any](inv *Invocation, i int) H {
	return inv.handles.At(i).(H)
}
