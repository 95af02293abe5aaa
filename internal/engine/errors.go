package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is returned when an executable cannot be invoked or fails.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Executable names the executable involved.
	Executable string

	// State names the state type involved, if any.
	State string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeAliasing indicates an executable declared conflicting handles
	// on one state: two write intents, or a read and a write.
	ErrCodeAliasing RuntimeErrorCode = "ALIASING_VIOLATION"

	// ErrCodeUndeclared indicates logic asked for an argument it did not
	// declare.
	ErrCodeUndeclared RuntimeErrorCode = "UNDECLARED_ARGUMENT"

	// ErrCodeExtraction indicates an argument could not be extracted, for
	// example a required state is missing.
	ErrCodeExtraction RuntimeErrorCode = "EXTRACTION_FAILED"

	// ErrCodeFailed indicates executable logic returned an error.
	ErrCodeFailed RuntimeErrorCode = "EXECUTABLE_FAILED"

	// ErrCodePanic indicates executable logic panicked.
	ErrCodePanic RuntimeErrorCode = "EXECUTABLE_PANIC"

	// ErrCodePending indicates a pass started while the store already held
	// queued mutations.
	ErrCodePending RuntimeErrorCode = "PENDING_MUTATIONS"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Executable != "" && e.State != "" {
		msg = fmt.Sprintf("%s (executable=%s, state=%s)", msg, e.Executable, e.State)
	} else if e.Executable != "" {
		msg = fmt.Sprintf("%s (executable=%s)", msg, e.Executable)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// hasCode searches the whole error tree, so a joined parallel failure
// matches if any branch carries code.
func hasCode(err error, code RuntimeErrorCode) bool {
	switch x := err.(type) {
	case nil:
		return false
	case *RuntimeError:
		return x.Code == code || hasCode(x.Err, code)
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if hasCode(e, code) {
				return true
			}
		}
		return false
	default:
		return hasCode(errors.Unwrap(err), code)
	}
}

// IsAliasingError reports whether err is an aliasing violation.
func IsAliasingError(err error) bool { return hasCode(err, ErrCodeAliasing) }

// IsUndeclaredError reports whether err is an undeclared argument access.
func IsUndeclaredError(err error) bool { return hasCode(err, ErrCodeUndeclared) }

// IsPanicError reports whether err came from a recovered panic.
func IsPanicError(err error) bool { return hasCode(err, ErrCodePanic) }

// IsPendingError reports whether a pass was refused because mutations were
// already queued.
func IsPendingError(err error) bool { return hasCode(err, ErrCodePending) }

func newPendingError(n int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodePending,
		Message: fmt.Sprintf("%d mutations queued before the pass; commit or discard them first", n),
	}
}

// NewAliasingError reports a conflicting handle request.
func NewAliasingError(executable, state string, held, requested Access) *RuntimeError {
	return &RuntimeError{
		Code:       ErrCodeAliasing,
		Message:    fmt.Sprintf("%s handle requested while %s handle is held", requested, held),
		Executable: executable,
		State:      state,
	}
}
