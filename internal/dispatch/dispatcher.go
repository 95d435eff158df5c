package dispatch

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/fluxd/internal/log"
)

// Handle identifies one registration. Registering the same function twice
// yields two handles and two deliveries per round.
type Handle string

// State is the dispatcher's position in its two-state machine.
type State int

const (
	StateIdle State = iota
	StateDispatching
)

func (s State) String() string {
	if s == StateDispatching {
		return "dispatching"
	}
	return "idle"
}

// Observer is told the outcome of every dispatch round that reached its
// listeners. It runs after the guard has been released.
type Observer interface {
	ObserveDispatch(msg Message, err error, elapsed time.Duration)
}

// rounds numbers dispatch rounds process-wide.
var rounds atomic.Uint64

type entry struct {
	handle Handle
	fn     func(Message) error
}

// Dispatcher fans actions out to registered listeners in registration order.
// The zero value is not usable; construct with New.
type Dispatcher struct {
	mu          sync.Mutex
	listeners   []entry
	dispatching bool

	logger   *slog.Logger
	observer Observer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver installs an Observer for completed dispatch rounds.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// New creates an idle Dispatcher with no listeners.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger: log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register appends l to the listener sequence.
func (d *Dispatcher) Register(l Listener) (Handle, error) {
	if l == nil {
		return "", fmt.Errorf("%w: listener is nil", ErrInvalidArgument)
	}
	return d.add(func(m Message) error { return l(m.Action) }), nil
}

// RegisterLegacy appends a source-aware listener to the same sequence used by
// Register, so both forms share one global order.
func (d *Dispatcher) RegisterLegacy(l LegacyListener) (Handle, error) {
	if l == nil {
		return "", fmt.Errorf("%w: listener is nil", ErrInvalidArgument)
	}
	return d.add(l), nil
}

func (d *Dispatcher) add(fn func(Message) error) Handle {
	h := Handle(uuid.NewString())

	d.mu.Lock()
	d.listeners = append(d.listeners, entry{handle: h, fn: fn})
	n := len(d.listeners)
	d.mu.Unlock()

	d.logger.Debug("listener registered", "handle", string(h), "position", n-1)
	return h
}

// Unregister removes the listener registered under h. A round already in
// progress keeps delivering to its snapshot; the removal applies from the
// next round.
func (d *Dispatcher) Unregister(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := slices.IndexFunc(d.listeners, func(e entry) bool { return e.handle == h })
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownHandle, h)
	}
	d.listeners = slices.Delete(slices.Clone(d.listeners), i, i+1)
	d.logger.Debug("listener unregistered", "handle", string(h))
	return nil
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Dispatching reports whether a round is in progress.
func (d *Dispatcher) Dispatching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatching
}

// State returns StateDispatching while a round is in progress, StateIdle otherwise.
func (d *Dispatcher) State() State {
	if d.Dispatching() {
		return StateDispatching
	}
	return StateIdle
}

// Dispatch delivers a to every registered listener, in registration order.
// Rounds are single-flight and never queue: a call made while another round
// is in progress, whether re-entrant or from another goroutine, returns
// ErrIllegalState at once and leaves the running round undisturbed. Callers
// that need to wait their turn serialise in front of the dispatcher.
func (d *Dispatcher) Dispatch(a Action) error {
	return d.dispatch(Message{Source: SourceNone, Action: a})
}

// DispatchFromView is Dispatch with the action tagged as view-originated.
func (d *Dispatcher) DispatchFromView(a Action) error {
	return d.dispatch(Message{Source: SourceView, Action: a})
}

// DispatchFromServer is Dispatch with the action tagged as server-originated.
func (d *Dispatcher) DispatchFromServer(a Action) error {
	return d.dispatch(Message{Source: SourceServer, Action: a})
}

func (d *Dispatcher) dispatch(msg Message) error {
	if isAbsent(msg.Action) {
		return fmt.Errorf("%w: action is nil", ErrInvalidArgument)
	}

	d.mu.Lock()
	if d.dispatching {
		d.mu.Unlock()
		d.logger.Warn("dispatch rejected: dispatch in progress",
			"source", msg.Source.String(),
			"action", fmt.Sprintf("%T", msg.Action),
		)
		return ErrIllegalState
	}
	if len(d.listeners) == 0 {
		d.mu.Unlock()
		return nil
	}
	d.dispatching = true
	snapshot := d.listeners
	msg.Round = rounds.Add(1)
	d.mu.Unlock()

	start := time.Now()
	err := d.deliver(snapshot, msg)
	elapsed := time.Since(start)

	if err != nil {
		d.logger.Warn("dispatch failed", "source", msg.Source.String(), "error", err)
	} else {
		d.logger.Debug("dispatch delivered",
			"source", msg.Source.String(),
			"listeners", len(snapshot),
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if d.observer != nil {
		d.observer.ObserveDispatch(msg, err, elapsed)
	}
	return err
}

// deliver runs one round over snapshot and releases the guard on every exit,
// panics included.
func (d *Dispatcher) deliver(snapshot []entry, msg Message) error {
	defer func() {
		d.mu.Lock()
		d.dispatching = false
		d.mu.Unlock()
	}()

	for i, e := range snapshot {
		if err := e.fn(msg); err != nil {
			return &ListenerError{Index: i, Handle: e.handle, Source: msg.Source, Err: err}
		}
	}
	return nil
}
