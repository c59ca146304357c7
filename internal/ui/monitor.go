package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/inkclock/inkclock/internal/statusapi"
)

// SnapshotMsg carries a pushed snapshot into the monitor.
type SnapshotMsg statusapi.Snapshot

// StreamEndedMsg reports that the status stream closed.
type StreamEndedMsg struct {
	Err error
}

type monitorKeyMap struct {
	Quit key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k monitorKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

// MonitorModel is the live status view.
type MonitorModel struct {
	Device string

	snap    *statusapi.Snapshot
	ended   bool
	err     error
	width   int
	spinner spinner.Model
	idleBar progress.Model
	keys    monitorKeyMap
	help    help.Model
}

// NewMonitorModel returns a model that waits for the first snapshot from device.
func NewMonitorModel(device string) MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return MonitorModel{
		Device:  device,
		width:   GetTerminalWidth(),
		spinner: s,
		idleBar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		keys: monitorKeyMap{
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
		help: help.New(),
	}
}

// Init implements tea.Model
func (m MonitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width, nil)

	case SnapshotMsg:
		snap := statusapi.Snapshot(msg)
		m.snap = &snap

	case StreamEndedMsg:
		m.ended = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.snap != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m MonitorModel) View() string {
	var b strings.Builder

	if m.snap == nil {
		b.WriteString("\n  " + m.spinner.View() + " Connecting to " + m.Device + "...\n")
	} else {
		b.WriteString(RenderStatus(*m.snap, m.width))
		b.WriteString("\n")
		if limit := m.snap.Broker.IdleLimitSeconds; limit > 0 && !m.snap.Broker.Held {
			frac := m.snap.Broker.IdleSeconds / limit
			if frac > 1 {
				frac = 1
			}
			b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(
				KeyStyle.Render("Radio off in:") + " " + m.idleBar.ViewAs(frac)))
			b.WriteString("\n")
		}
	}

	if m.ended {
		if m.err != nil {
			b.WriteString(ErrorMessageStyle.Render("  Stream closed: "+m.err.Error()) + "\n")
		} else {
			b.WriteString(HelpStyle.Render("Stream closed") + "\n")
		}
		return b.String()
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))
	b.WriteString("\n")
	return b.String()
}

// Err returns the error that ended the stream, if any.
func (m MonitorModel) Err() error {
	return m.err
}

// StreamFunc delivers snapshots to fn until ctx is cancelled.
type StreamFunc func(ctx context.Context, fn func(statusapi.Snapshot)) error

// RunMonitor runs the live view until the user quits, ctx is cancelled or
// the stream ends.
func RunMonitor(ctx context.Context, device string, stream StreamFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewMonitorModel(device), tea.WithContext(ctx))

	go func() {
		err := stream(ctx, func(s statusapi.Snapshot) {
			p.Send(SnapshotMsg(s))
		})
		p.Send(StreamEndedMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if mm, ok := final.(MonitorModel); ok {
		return mm.Err()
	}
	return nil
}
