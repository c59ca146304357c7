package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderSuccess renders a green result box.
func RenderSuccess(title string, details []Field, width int) string {
	lines := []string{
		"",
		SuccessTitleStyle.Render(fmt.Sprintf(" %s  SUCCESS  ─  %s", SuccessMarker, title)),
		"",
	}
	if len(details) > 0 {
		lines = append(lines, renderFields(details), "")
	}
	return boxStyle(SuccessColor, clampWidth(width, nil)).Render(strings.Join(lines, "\n"))
}

// RenderWarning renders an orange result box.
func RenderWarning(title string, details []Field, width int) string {
	lines := []string{
		"",
		WarningTitleStyle.Render(fmt.Sprintf(" %s  WARNING  ─  %s", WarningMarker, title)),
		"",
	}
	if len(details) > 0 {
		lines = append(lines, renderFields(details), "")
	}
	return boxStyle(WarningColor, clampWidth(width, nil)).Render(strings.Join(lines, "\n"))
}

// RenderFailure renders a red result box with troubleshooting tips.
func RenderFailure(title string, err error, troubleshooting []string, width int) string {
	width = clampWidth(width, nil)
	lines := []string{
		"",
		ErrorTitleStyle.Render(fmt.Sprintf(" %s  FAILED  ─  %s", FailureMarker, title)),
		"",
	}

	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("Error: "+err.Error()), "")
	}

	if len(troubleshooting) > 0 {
		tips := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
		for _, tip := range troubleshooting {
			tips = append(tips, TroubleshootingItemStyle.Render("  • "+tip))
		}
		inner := width - 12
		if inner < 40 {
			inner = 40
		}
		lines = append(lines, lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Width(inner).
			Padding(0, 1).
			Render(strings.Join(tips, "\n")), "")
	}

	return boxStyle(ErrorColor, width).Render(strings.Join(lines, "\n"))
}

// Printer writes rendered components to an output stream.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer writing to w, or to stdout if w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Width returns the render width.
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command banner.
func (p *Printer) PrintHeader(title, command string, params []Field) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success box.
func (p *Printer) PrintSuccess(title string, details []Field) {
	p.Println(RenderSuccess(title, details, p.width))
}

// PrintWarning prints a warning box.
func (p *Printer) PrintWarning(title string, details []Field) {
	p.Println(RenderWarning(title, details, p.width))
}

// PrintFailure prints a failure box.
func (p *Printer) PrintFailure(title string, err error, troubleshooting []string) {
	p.Println(RenderFailure(title, err, troubleshooting, p.width))
}

// TroubleshootingLines turns a multi-line hint into bullet items. The first
// line of a multi-line hint is a summary and is dropped, as is any
// "Troubleshooting:" heading.
func TroubleshootingLines(hint string) []string {
	lines := strings.Split(hint, "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}

	var tips []string
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		tips = append(tips, line)
	}
	return tips
}
