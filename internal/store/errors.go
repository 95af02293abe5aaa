package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodePluginCycle indicates a plugin transitively requires itself.
	ErrCodePluginCycle ErrorCode = "PLUGIN_CYCLE"

	// ErrCodePluginFailed indicates a plugin load routine returned an error.
	ErrCodePluginFailed ErrorCode = "PLUGIN_FAILED"

	// ErrCodeMissingState indicates a state type was never inserted.
	ErrCodeMissingState ErrorCode = "MISSING_STATE"

	// ErrCodeApplyFailed indicates a mutation could not be applied.
	ErrCodeApplyFailed ErrorCode = "APPLY_FAILED"

	// ErrCodeQueueFull indicates the mutation queue reached its capacity.
	ErrCodeQueueFull ErrorCode = "QUEUE_FULL"

	// ErrCodeNothingToUndo indicates the undo stack is empty.
	ErrCodeNothingToUndo ErrorCode = "NOTHING_TO_UNDO"

	// ErrCodeNothingToRedo indicates the redo stack is empty.
	ErrCodeNothingToRedo ErrorCode = "NOTHING_TO_REDO"
)

// Error is returned by store operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Plugin names the plugin involved, if any.
	Plugin string

	// Target names the state type involved, if any.
	Target string

	// Path is the plugin chain for cycle errors, first to last.
	Path []string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	switch {
	case len(e.Path) > 0:
		fmt.Fprintf(&b, " (path=%s)", strings.Join(e.Path, " -> "))
	case e.Plugin != "":
		fmt.Fprintf(&b, " (plugin=%s)", e.Plugin)
	case e.Target != "":
		fmt.Fprintf(&b, " (state=%s)", e.Target)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// hasCode walks every *Error in the chain, so an APPLY_FAILED wrapping a
// MISSING_STATE matches both.
func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *Error
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}

// IsCycleError reports whether err is a plugin dependency cycle.
func IsCycleError(err error) bool { return hasCode(err, ErrCodePluginCycle) }

// IsMissingState reports whether err is a missing-state error.
func IsMissingState(err error) bool { return hasCode(err, ErrCodeMissingState) }

// IsApplyFailed reports whether err is a failed mutation application.
func IsApplyFailed(err error) bool { return hasCode(err, ErrCodeApplyFailed) }

// IsQueueFull reports whether err is a full mutation queue.
func IsQueueFull(err error) bool { return hasCode(err, ErrCodeQueueFull) }

// IsNothingToUndo reports whether err came from Undo on empty history.
func IsNothingToUndo(err error) bool { return hasCode(err, ErrCodeNothingToUndo) }

// IsNothingToRedo reports whether err came from Redo with nothing undone.
func IsNothingToRedo(err error) bool { return hasCode(err, ErrCodeNothingToRedo) }

// NewMissingStateError reports that target was never inserted.
func NewMissingStateError(target string) *Error {
	return &Error{
		Code:    ErrCodeMissingState,
		Message: "state was never inserted; is the plugin that provides it loaded?",
		Target:  target,
	}
}
