package dispatch

import (
	"fmt"
	"reflect"
)

// Action is an opaque value describing something that happened. The
// dispatcher never inspects it beyond rejecting nil.
type Action any

// Source tags where an action originated. It only matters to legacy
// listeners; delivery is identical for every source.
type Source int

const (
	// SourceNone is the neutral tag stamped by Dispatch.
	SourceNone Source = iota
	// SourceView marks actions raised by the UI.
	SourceView
	// SourceServer marks actions raised by a server channel (HTTP, sync).
	SourceServer
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceView:
		return "view"
	case SourceServer:
		return "server"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// ParseSource is the inverse of Source.String.
func ParseSource(s string) (Source, error) {
	switch s {
	case "", "none":
		return SourceNone, nil
	case "view":
		return SourceView, nil
	case "server":
		return SourceServer, nil
	}
	return SourceNone, fmt.Errorf("unknown source %q", s)
}

// Message is the envelope every listener is stored against: the action plus
// its source tag.
type Message struct {
	Source Source
	Action Action

	// Round numbers the dispatch round that carried the message. It is set by
	// the dispatcher, unique across every dispatcher in the process, and shared
	// by the listeners and the Observer of that round.
	Round uint64
}

// Listener receives every dispatched action.
type Listener func(Action) error

// LegacyListener receives every dispatched action together with its source
// tag.
type LegacyListener func(Message) error

// isAbsent reports whether a is nil, including typed nils hidden in the
// interface.
func isAbsent(a Action) bool {
	if a == nil {
		return true
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
