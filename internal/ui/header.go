package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one key/value row. Rows render in slice order.
type Field struct {
	Key   string
	Value string
}

func renderFields(fields []Field) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, KeyStyle.Render(f.Key+":")+" "+ValueStyle.Render(f.Value))
	}
	return strings.Join(lines, "\n")
}

// RenderHeader renders a command banner with its parameters.
func RenderHeader(title, command string, params []Field, width int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(title)),
		HeaderCommandStyle.Render(command),
	)

	content := top
	if len(params) > 0 {
		content = lipgloss.JoinVertical(lipgloss.Left,
			top,
			divider(width-6),
			lipgloss.NewStyle().PaddingLeft(2).Render(renderFields(params)),
		)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}
