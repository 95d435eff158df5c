package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/fluxd/internal/events"
	"github.com/mattjoyce/fluxd/internal/store"
)

func renderHeader(total, done int, theme Theme) string {
	title := theme.Title.Render("FLUXD TODOS")
	counts := theme.Dim.Render(fmt.Sprintf("%d open • %d done", total-done, done))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, " ", counts)
}

func renderTodos(items []store.Todo, cursor int, theme Theme, width int) string {
	innerWidth := max(width-8, 20)

	if len(items) == 0 {
		return theme.Border.Width(innerWidth).Render(theme.Dim.Render("  Nothing to do. Press a to add."))
	}

	lines := make([]string, 0, len(items))
	for i, t := range items {
		pointer := "  "
		if i == cursor {
			pointer = theme.Cursor.Render("> ")
		}
		check, style := "[ ]", theme.Open
		if t.Completed {
			check, style = "[x]", theme.Done
		}
		lines = append(lines, pointer+check+" "+style.Render(t.Title))
	}
	return theme.Border.Width(innerWidth).Render(strings.Join(lines, "\n"))
}

func renderEvents(log []events.Event, theme Theme, width int) string {
	innerWidth := max(width-8, 20)

	if len(log) == 0 {
		return theme.Border.Width(innerWidth).Render(theme.Dim.Render("  Waiting for changes..."))
	}

	lines := make([]string, 0, len(log))
	for _, e := range log {
		lines = append(lines, formatEvent(e, theme))
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Header.Render("CHANGES"),
		strings.Join(lines, "\n"),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	typeStyle := theme.Success
	if e.Type == events.TypeDispatchError {
		typeStyle = theme.Failed
	}
	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-16s", e.Type)), eventDesc(e))
}

func eventDesc(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	if title, ok := data["title"].(string); ok {
		return title
	}
	if removed, ok := data["removed"].(float64); ok {
		return fmt.Sprintf("%d removed", int(removed))
	}
	if msg, ok := data["error"].(string); ok {
		return msg
	}
	if id, ok := data["id"].(string); ok {
		if len(id) > 8 {
			id = id[:8]
		}
		return id
	}
	return ""
}
