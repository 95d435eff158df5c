package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch package.
var (
	// ErrInvalidArgument is returned when a nil action or listener is supplied.
	ErrInvalidArgument = errors.New("dispatch: invalid argument")

	// ErrIllegalState is returned when Dispatch is called while a dispatch is
	// already in progress.
	ErrIllegalState = errors.New("dispatch: cannot dispatch in the middle of a dispatch")

	// ErrListenerFailure is matched by every *ListenerError.
	ErrListenerFailure = errors.New("dispatch: listener failed")

	// ErrUnknownHandle is returned by Unregister for a handle it does not hold.
	ErrUnknownHandle = errors.New("dispatch: unknown listener handle")
)

// ListenerError reports the listener that stopped a dispatch round.
// Listeners after Index were not invoked for that round.
type ListenerError struct {
	Index  int
	Handle Handle
	Source Source
	Err    error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("dispatch: listener %d (%s) failed: %v", e.Index, e.Handle, e.Err)
}

// Unwrap exposes both ErrListenerFailure and the listener's own error to
// errors.Is / errors.As.
func (e *ListenerError) Unwrap() []error {
	return []error{ErrListenerFailure, e.Err}
}
