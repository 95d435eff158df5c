// Package tui is the interactive todo view. Keypresses become view-sourced
// actions on the dispatcher; the screen redraws from the store whenever the
// change feed reports an update.
package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/fluxd/internal/action"
	"github.com/mattjoyce/fluxd/internal/dispatch"
	"github.com/mattjoyce/fluxd/internal/events"
	"github.com/mattjoyce/fluxd/internal/store"
)

const maxEventLog = 8

// ViewDispatcher is how the view produces actions.
type ViewDispatcher interface {
	DispatchFromView(a dispatch.Action) error
}

// TodoView is the read side of the todo store.
type TodoView interface {
	List() []store.Todo
	Counts() (total, completed int)
}

// Feed is the change feed the view follows.
type Feed interface {
	Subscribe() (<-chan events.Event, func())
}

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeRename
)

type eventMsg events.Event

type feedClosedMsg struct{}

// Model is the BubbleTea model for the todo TUI.
type Model struct {
	dispatcher ViewDispatcher
	todos      TodoView
	feed       <-chan events.Event
	unsub      func()

	width  int
	height int

	items    []store.Todo
	cursor   int
	mode     mode
	input    textinput.Model
	keys     keyMap
	help     help.Model
	theme    Theme
	eventLog []events.Event

	lastError string
}

// New creates a todo TUI model. feed may be nil, in which case the view only
// refreshes after its own dispatches.
func New(d ViewDispatcher, todos TodoView, feed Feed) Model {
	input := textinput.New()
	input.Placeholder = "what needs doing?"
	input.CharLimit = 200

	m := Model{
		dispatcher: d,
		todos:      todos,
		input:      input,
		keys:       defaultKeyMap(),
		help:       help.New(),
		theme:      NewDefaultTheme(),
		unsub:      func() {},
	}
	if feed != nil {
		m.feed, m.unsub = feed.Subscribe()
	}
	m.refresh()
	return m
}

// Close drops the change feed subscription.
func (m Model) Close() { m.unsub() }

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.feed)
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return feedClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.refresh()
		return m, waitForEvent(m.feed)

	case feedClosedMsg:
		m.feed = nil
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Add):
		return m.startInput(modeAdd, "")
	case key.Matches(msg, m.keys.Rename):
		if t, ok := m.selected(); ok {
			return m.startInput(modeRename, t.Title)
		}
	case key.Matches(msg, m.keys.Toggle):
		if t, ok := m.selected(); ok {
			m.dispatch(action.ToggleTodo{ID: t.ID})
		}
	case key.Matches(msg, m.keys.Remove):
		if t, ok := m.selected(); ok {
			m.dispatch(action.RemoveTodo{ID: t.ID})
		}
	case key.Matches(msg, m.keys.Clear):
		m.dispatch(action.ClearCompleted{})
	}
	return m, nil
}

func (m Model) startInput(md mode, value string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.stopInput()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		title := m.input.Value()
		switch m.mode {
		case modeAdd:
			m.dispatch(action.AddTodo{ID: action.NewID(), Title: title})
		case modeRename:
			if t, ok := m.selected(); ok {
				m.dispatch(action.RenameTodo{ID: t.ID, Title: title})
			}
		}
		if m.lastError == "" {
			m.stopInput()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) stopInput() {
	m.mode = modeBrowse
	m.input.Reset()
	m.input.Blur()
}

// dispatch sends a view-sourced action and refreshes from the store so the
// screen is current even before the change event arrives.
func (m *Model) dispatch(a dispatch.Action) {
	m.lastError = ""
	if err := m.dispatcher.DispatchFromView(a); err != nil {
		var lerr *dispatch.ListenerError
		if errors.As(err, &lerr) {
			err = lerr.Err
		}
		m.lastError = err.Error()
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.items = m.todos.List()
	if m.cursor >= len(m.items) {
		m.cursor = max(len(m.items)-1, 0)
	}
}

func (m Model) selected() (store.Todo, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return store.Todo{}, false
	}
	return m.items[m.cursor], true
}

func (m Model) View() string {
	total, done := m.todos.Counts()

	parts := []string{
		renderHeader(total, done, m.theme),
		renderTodos(m.items, m.cursor, m.theme, m.width),
	}
	if m.mode != modeBrowse {
		label := "New todo"
		if m.mode == modeRename {
			label = "Rename"
		}
		parts = append(parts, m.theme.Header.Render(label+": ")+m.input.View())
	}
	parts = append(parts, renderEvents(m.eventLog, m.theme, m.width))
	if m.lastError != "" {
		parts = append(parts, m.theme.Failed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.help.View(m.keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
