package tui

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the todo TUI.
type Theme struct {
	Done    lipgloss.Style
	Open    lipgloss.Style
	Failed  lipgloss.Style
	Cursor  lipgloss.Style
	Border  lipgloss.Style
	Title   lipgloss.Style
	Header  lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Done:   lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Strikethrough(true),
		Open:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		Failed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Cursor: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
	}
}
