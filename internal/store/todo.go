package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/events"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/state"
)

// TodoStoreName is the snapshot key of the todo store.
const TodoStoreName = "todos"

const (
	maxTitleLen     = 200
	persistDeadline = 5 * time.Second
)

var (
	// ErrNotFound is returned when an action names a todo that does not exist.
	ErrNotFound = errors.New("todo not found")
	// ErrInvalidTodo is returned for actions carrying invalid fields.
	ErrInvalidTodo = errors.New("invalid todo")
	// ErrDuplicate is returned when AddTodo reuses an existing id.
	ErrDuplicate = errors.New("todo already exists")
)

// Todo is one item in the store.
type Todo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshotter persists store snapshots. *state.Store satisfies it.
type Snapshotter interface {
	Get(ctx context.Context, name string) (state.Snapshot, error)
	Put(ctx context.Context, name string, state json.RawMessage) (int64, error)
}

// Publisher announces store changes. *events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any) events.Event
}

type todoSnapshot struct {
	Todos []Todo `json:"todos"`
}

// TodoStore owns the todo list. It is a dispatch.Listener via Handle.
type TodoStore struct {
	mu      sync.RWMutex
	todos   []Todo
	version int64

	snapshots Snapshotter
	feed      Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewTodoStore creates an empty store. snapshots and feed may be nil.
func NewTodoStore(snapshots Snapshotter, feed Publisher) *TodoStore {
	return &TodoStore{
		snapshots: snapshots,
		feed:      feed,
		logger:    log.WithStore(TodoStoreName),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register adds the store to d as a modern listener.
func (s *TodoStore) Register(d *dispatch.Dispatcher) (dispatch.Handle, error) {
	return d.Register(s.Handle)
}

// Load restores the last persisted snapshot.
func (s *TodoStore) Load(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Get(ctx, TodoStoreName)
	if err != nil {
		return fmt.Errorf("load todo snapshot: %w", err)
	}

	var decoded todoSnapshot
	if err := json.Unmarshal(snap.State, &decoded); err != nil {
		return fmt.Errorf("decode todo snapshot: %w", err)
	}

	s.mu.Lock()
	s.todos = decoded.Todos
	s.version = snap.Version
	s.mu.Unlock()

	s.logger.Info("todo store loaded", "todos", len(decoded.Todos), "version", snap.Version)
	return nil
}

// Handle applies one action. Actions the store does not own are ignored.
// The new state is persisted before it becomes visible; a failed write
// leaves the store unchanged.
func (s *TodoStore) Handle(a dispatch.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, change, err := s.apply(a)
	if err != nil {
		return err
	}
	if change == nil {
		return nil
	}

	if err := s.persistLocked(next); err != nil {
		return err
	}
	s.todos = next

	s.logger.Debug("todo store applied action", "action_type", action.Type(a), "todos", len(next))
	if s.feed != nil {
		s.feed.Publish(change.typ, change.data)
	}
	return nil
}

type change struct {
	typ  string
	data any
}

// apply computes the next todo list without touching s.todos.
func (s *TodoStore) apply(a dispatch.Action) ([]Todo, *change, error) {
	switch a := a.(type) {
	case action.AddTodo:
		title, err := normalizeTitle(a.Title)
		if err != nil {
			return nil, nil, err
		}
		if a.ID == "" {
			return nil, nil, fmt.Errorf("%w: id is empty", ErrInvalidTodo)
		}
		if s.indexLocked(a.ID) >= 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicate, a.ID)
		}
		t := Todo{ID: a.ID, Title: title, CreatedAt: s.now()}
		return append(slices.Clone(s.todos), t), &change{events.TypeTodoChanged, t}, nil

	case action.ToggleTodo:
		i, err := s.mustIndexLocked(a.ID)
		if err != nil {
			return nil, nil, err
		}
		next := slices.Clone(s.todos)
		next[i].Completed = !next[i].Completed
		return next, &change{events.TypeTodoChanged, next[i]}, nil

	case action.RenameTodo:
		i, err := s.mustIndexLocked(a.ID)
		if err != nil {
			return nil, nil, err
		}
		title, err := normalizeTitle(a.Title)
		if err != nil {
			return nil, nil, err
		}
		next := slices.Clone(s.todos)
		next[i].Title = title
		return next, &change{events.TypeTodoChanged, next[i]}, nil

	case action.RemoveTodo:
		i, err := s.mustIndexLocked(a.ID)
		if err != nil {
			return nil, nil, err
		}
		next := slices.Delete(slices.Clone(s.todos), i, i+1)
		return next, &change{events.TypeTodoRemoved, map[string]string{"id": a.ID}}, nil

	case action.ClearCompleted:
		next := slices.DeleteFunc(slices.Clone(s.todos), func(t Todo) bool { return t.Completed })
		removed := len(s.todos) - len(next)
		if removed == 0 {
			return nil, nil, nil
		}
		return next, &change{events.TypeTodosCleared, map[string]int{"removed": removed}}, nil
	}
	return nil, nil, nil
}

func (s *TodoStore) persistLocked(next []Todo) error {
	if s.snapshots == nil {
		s.version++
		return nil
	}

	raw, err := json.Marshal(todoSnapshot{Todos: next})
	if err != nil {
		return fmt.Errorf("encode todo snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistDeadline)
	defer cancel()
	version, err := s.snapshots.Put(ctx, TodoStoreName, raw)
	if err != nil {
		return fmt.Errorf("persist todo snapshot: %w", err)
	}
	s.version = version
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is empty", ErrInvalidTodo)
	}
	if len(title) > maxTitleLen {
		return "", fmt.Errorf("%w: title exceeds %d bytes", ErrInvalidTodo, maxTitleLen)
	}
	return title, nil
}

func (s *TodoStore) indexLocked(id string) int {
	return slices.IndexFunc(s.todos, func(t Todo) bool { return t.ID == id })
}

func (s *TodoStore) mustIndexLocked(id string) (int, error) {
	i := s.indexLocked(id)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return i, nil
}

// List returns the todos in insertion order.
func (s *TodoStore) List() []Todo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.todos)
}

// Get returns the todo with id.
func (s *TodoStore) Get(id string) (Todo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.todos[i], true
	}
	return Todo{}, false
}

// Counts returns the total and completed number of todos.
func (s *TodoStore) Counts() (total, completed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.todos {
		if t.Completed {
			completed++
		}
	}
	return len(s.todos), completed
}

// Version returns the snapshot version of the current state.
func (s *TodoStore) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
