// Package action defines the todo actions that flow through the dispatcher
// and their wire names.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Wire names.
const (
	TypeAddTodo        = "todo.add"
	TypeToggleTodo     = "todo.toggle"
	TypeRenameTodo     = "todo.rename"
	TypeRemoveTodo     = "todo.remove"
	TypeClearCompleted = "todo.clear_completed"
)

// ErrUnknownType is returned by Decode for an unregistered wire name.
var ErrUnknownType = errors.New("unknown action type")

// AddTodo creates a todo. ID is generated when empty.
type AddTodo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ToggleTodo flips a todo's completed flag.
type ToggleTodo struct {
	ID string `json:"id"`
}

// RenameTodo replaces a todo's title.
type RenameTodo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// RemoveTodo deletes a todo.
type RemoveTodo struct {
	ID string `json:"id"`
}

// ClearCompleted deletes every completed todo.
type ClearCompleted struct{}

// NewID returns a fresh todo id.
func NewID() string {
	return uuid.NewString()
}

// Type returns the wire name of a, or "" for values this package does not define.
func Type(a any) string {
	switch a.(type) {
	case AddTodo:
		return TypeAddTodo
	case ToggleTodo:
		return TypeToggleTodo
	case RenameTodo:
		return TypeRenameTodo
	case RemoveTodo:
		return TypeRemoveTodo
	case ClearCompleted:
		return TypeClearCompleted
	}
	return ""
}

// Types lists every wire name, sorted.
func Types() []string {
	out := []string{TypeAddTodo, TypeToggleTodo, TypeRenameTodo, TypeRemoveTodo, TypeClearCompleted}
	sort.Strings(out)
	return out
}

// Decode builds the action named typ from its JSON body. An empty body is
// treated as {}.
func Decode(typ string, body []byte) (any, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}

	switch typ {
	case TypeAddTodo:
		var a AddTodo
		if err := unmarshal(typ, body, &a); err != nil {
			return nil, err
		}
		if a.ID == "" {
			a.ID = NewID()
		}
		return a, nil
	case TypeToggleTodo:
		var a ToggleTodo
		if err := unmarshal(typ, body, &a); err != nil {
			return nil, err
		}
		return a, nil
	case TypeRenameTodo:
		var a RenameTodo
		if err := unmarshal(typ, body, &a); err != nil {
			return nil, err
		}
		return a, nil
	case TypeRemoveTodo:
		var a RemoveTodo
		if err := unmarshal(typ, body, &a); err != nil {
			return nil, err
		}
		return a, nil
	case TypeClearCompleted:
		var a ClearCompleted
		if err := unmarshal(typ, body, &a); err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
}

// Encode returns the wire name and JSON body of a.
func Encode(a any) (string, []byte, error) {
	typ := Type(a)
	if typ == "" {
		return "", nil, fmt.Errorf("%w: %T", ErrUnknownType, a)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return typ, body, nil
}

func unmarshal(typ string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", typ, err)
	}
	return nil
}
