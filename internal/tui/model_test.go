package tui

import (
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/events"
	"github.com/mattjoyce/fluxd/internal/log"
	"github.com/mattjoyce/fluxd/internal/store"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

type harness struct {
	d     *dispatch.Dispatcher
	todos *store.TodoStore
	hub   *events.Hub
	model Model
	seen  []dispatch.Message
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		d:   dispatch.New(),
		hub: events.NewHub(16),
	}
	_, err := h.d.RegisterLegacy(func(m dispatch.Message) error {
		h.seen = append(h.seen, m)
		return nil
	})
	require.NoError(t, err)

	h.todos = store.NewTodoStore(nil, h.hub)
	_, err = h.todos.Register(h.d)
	require.NoError(t, err)

	h.model = New(h.d, h.todos, h.hub)
	t.Cleanup(h.model.Close)
	return h
}

func (h *harness) send(msg tea.Msg) {
	next, _ := h.model.Update(msg)
	h.model = next.(Model)
}

func (h *harness) keys(s string) {
	for _, r := range s {
		h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func (h *harness) enter() { h.send(tea.KeyMsg{Type: tea.KeyEnter}) }

func TestAddTodoDispatchesFromView(t *testing.T) {
	h := newHarness(t)

	h.keys("a")
	assert.Equal(t, modeAdd, h.model.mode)
	h.keys("milk")
	h.enter()

	assert.Equal(t, modeBrowse, h.model.mode)
	require.Len(t, h.model.items, 1)
	assert.Equal(t, "milk", h.model.items[0].Title)

	require.Len(t, h.seen, 1)
	assert.Equal(t, dispatch.SourceView, h.seen[0].Source)
	assert.IsType(t, action.AddTodo{}, h.seen[0].Action)
}

func TestToggleRenameRemove(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.d.Dispatch(action.AddTodo{ID: "a", Title: "milk"}))
	require.NoError(t, h.d.Dispatch(action.AddTodo{ID: "b", Title: "bread"}))
	h.send(eventMsg(events.Event{ID: 2, Type: events.TypeTodoChanged}))
	require.Len(t, h.model.items, 2)

	h.send(tea.KeyMsg{Type: tea.KeySpace})
	got, _ := h.todos.Get("a")
	assert.True(t, got.Completed)

	h.keys("j")
	assert.Equal(t, 1, h.model.cursor)
	h.keys("e")
	assert.Equal(t, "bread", h.model.input.Value())
	h.keys(" rolls")
	h.enter()
	got, _ = h.todos.Get("b")
	assert.Equal(t, "bread rolls", got.Title)

	h.keys("d")
	_, ok := h.todos.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 0, h.model.cursor, "cursor clamps to the remaining items")

	h.keys("c")
	assert.Empty(t, h.todos.List())
}

func TestRejectedActionKeepsInputOpen(t *testing.T) {
	h := newHarness(t)

	h.keys("a")
	h.enter() // empty title

	assert.Equal(t, modeAdd, h.model.mode)
	assert.Contains(t, h.model.lastError, "title is empty")
	assert.Contains(t, h.model.View(), "title is empty")

	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, modeBrowse, h.model.mode)
}

func TestChangeEventsRefreshAndLog(t *testing.T) {
	h := newHarness(t)

	// Another producer changes the store.
	require.NoError(t, h.d.DispatchFromServer(action.AddTodo{ID: "a", Title: "milk"}))
	assert.Empty(t, h.model.items)

	ev := <-h.model.feed
	h.send(eventMsg(ev))
	require.Len(t, h.model.items, 1)
	require.Len(t, h.model.eventLog, 1)
	assert.Contains(t, h.model.View(), "milk")

	for i := range maxEventLog + 3 {
		h.send(eventMsg(events.Event{ID: int64(i + 10), Type: events.TypeTodoChanged}))
	}
	assert.Len(t, h.model.eventLog, maxEventLog)
}

func TestFeedClosed(t *testing.T) {
	h := newHarness(t)
	h.hub.Close()

	msg := h.model.Init()()
	assert.IsType(t, feedClosedMsg{}, msg)
	h.send(msg)
	assert.Nil(t, h.model.Init())
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	_, cmd := h.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
