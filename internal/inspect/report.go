// Package inspect renders the history of a single todo from the action
// journal.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/fluxd/internal/journal"
	"github.com/mattjoyce/fluxd/internal/store"
)

// ErrUnknownTodo is returned when neither the store nor the journal knows
// the id.
var ErrUnknownTodo = errors.New("no todo or journal history for id")

// Todos looks up current todo state.
type Todos interface {
	Get(id string) (store.Todo, bool)
}

// History returns journal entries that name a todo, oldest first.
type History interface {
	ForTodo(ctx context.Context, todoID string) ([]journal.Entry, error)
}

// Report is the structured form of a todo history.
type Report struct {
	TodoID  string     `json:"todo_id"`
	State   string     `json:"state"`
	Title   string     `json:"title,omitempty"`
	Created *time.Time `json:"created_at,omitempty"`
	Rounds  int        `json:"rounds"`
	Failed  int        `json:"failed"`
	Steps   []Step     `json:"steps"`
}

// Step is one journaled action that named the todo.
type Step struct {
	Seq          int64           `json:"seq"`
	Type         string          `json:"type"`
	Source       string          `json:"source"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at"`
	DurationMS   *int64          `json:"duration_ms,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// Gather assembles the report for id.
func Gather(ctx context.Context, todos Todos, history History, id string) (*Report, error) {
	entries, err := history.ForTodo(ctx, id)
	if err != nil {
		return nil, err
	}

	r := &Report{TodoID: id, State: "removed", Steps: make([]Step, 0, len(entries))}
	if t, ok := todos.Get(id); ok {
		r.Title = t.Title
		created := t.CreatedAt
		r.Created = &created
		r.State = "open"
		if t.Completed {
			r.State = "completed"
		}
	} else if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTodo, id)
	}

	for _, e := range entries {
		r.Steps = append(r.Steps, Step{
			Seq:          e.Seq,
			Type:         e.Type,
			Source:       e.Source,
			Status:       e.Status,
			Error:        e.Error,
			DispatchedAt: e.DispatchedAt,
			DurationMS:   e.DurationMS,
			Payload:      e.Payload,
		})
		if e.Status == journal.StatusFailed {
			r.Failed++
		}
	}
	r.Rounds = len(r.Steps)
	return r, nil
}

// BuildReport renders a terminal-friendly history for id.
func BuildReport(ctx context.Context, todos Todos, history History, id string) (string, error) {
	r, err := Gather(ctx, todos, history, id)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Todo History\n")
	fmt.Fprintf(&out, "Todo ID     : %s\n", r.TodoID)
	fmt.Fprintf(&out, "State       : %s\n", r.State)
	fmt.Fprintf(&out, "Title       : %s\n", renderUnset(r.Title, "<unknown>"))
	if r.Created != nil {
		fmt.Fprintf(&out, "Created     : %s\n", r.Created.Format(time.RFC3339))
	}
	fmt.Fprintf(&out, "Rounds      : %d (%d failed)\n", r.Rounds, r.Failed)

	if len(r.Steps) == 0 {
		fmt.Fprintf(&out, "\nNo journaled actions (journal disabled or pruned).\n")
		return out.String(), nil
	}
	fmt.Fprintf(&out, "\n")

	for i, step := range r.Steps {
		fmt.Fprintf(&out, "[%d] %s from %s :: %s\n", i+1, step.Type, step.Source, step.Status)
		fmt.Fprintf(&out, "    seq        : %d\n", step.Seq)
		fmt.Fprintf(&out, "    at         : %s\n", step.DispatchedAt.Format(time.RFC3339Nano))
		if step.DurationMS != nil {
			fmt.Fprintf(&out, "    duration   : %dms\n", *step.DurationMS)
		}
		if step.Error != "" {
			fmt.Fprintf(&out, "    error      : %s\n", step.Error)
		}
		fmt.Fprintf(&out, "    payload    :\n")
		for _, line := range strings.Split(prettyJSON(step.Payload), "\n") {
			fmt.Fprintf(&out, "      %s\n", line)
		}
	}
	return out.String(), nil
}

// BuildJSONReport renders the report as indented JSON.
func BuildJSONReport(ctx context.Context, todos Todos, history History, id string) (string, error) {
	r, err := Gather(ctx, todos, history, id)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
