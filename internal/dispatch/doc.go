// Package dispatch implements the Flux action dispatcher: a single-writer,
// synchronous hub that fans every action out to an ordered set of listeners.
//
// Producers call Dispatch with an action. The dispatcher invokes each
// registered listener, in registration order, on the caller's goroutine and
// returns once every listener has seen the action or one of them failed.
//
// Key features:
//   - Registration order is delivery order (one global sequence)
//   - Single-flight guard: dispatching while a dispatch is in progress fails
//     with ErrIllegalState instead of queueing or deadlocking
//   - Guard is released on every exit path, including a listener panic
//   - Fail-fast delivery: the first listener error stops the round and is
//     returned as a *ListenerError
//   - Legacy source tagging (DispatchFromView / DispatchFromServer) funnels
//     into the same code path as Dispatch
//   - Optional Unregister; each round iterates a snapshot of the sequence
//
// Error handling:
//   - nil action or listener → ErrInvalidArgument
//   - dispatch during dispatch → ErrIllegalState (outer round undisturbed)
//   - listener returns error → *ListenerError wrapping ErrListenerFailure
//   - unknown handle on Unregister → ErrUnknownHandle
//
// Typical wiring:
//
//	d := dispatch.New(dispatch.WithLogger(log.WithComponent("dispatch")))
//	if _, err := d.Register(todos.Handle); err != nil {
//	    return err
//	}
//	err := d.Dispatch(action.AddTodo{ID: action.NewID(), Title: "milk"})
package dispatch
