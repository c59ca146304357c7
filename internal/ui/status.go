package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/inkclock/inkclock/internal/discovery"
	"github.com/inkclock/inkclock/internal/statusapi"
)

// RenderStatus renders a daemon snapshot as a bordered box.
func RenderStatus(snap statusapi.Snapshot, width int) string {
	width = clampWidth(width, nil)

	name := snap.Name
	if name == "" {
		name = "inkclock"
	}
	title := lipgloss.JoinHorizontal(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(name)),
		HeaderCommandStyle.Render(snap.Version),
	)

	state := StateStyle(snap.State).Render(StateMarker + " " + snap.State)
	address := snap.Address
	if address == "" {
		address = "-"
	}

	fields := []Field{
		{Key: "Mode", Value: snap.Mode},
		{Key: "State", Value: state},
		{Key: "Address", Value: address},
		{Key: "Network", Value: brokerLine(snap.Broker)},
		{Key: "Idle", Value: formatSeconds(snap.Broker.IdleSeconds)},
		{Key: "Clock", Value: clockLine(snap.Clock)},
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		divider(width-6),
		lipgloss.NewStyle().PaddingLeft(2).Render(renderFields(fields)),
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

func brokerLine(b statusapi.BrokerStatus) string {
	if !b.Held {
		return "free"
	}
	holder := b.HolderID
	if len(holder) > 8 {
		holder = holder[:8]
	}
	if b.HeldSince.IsZero() {
		return "held by " + holder
	}
	return fmt.Sprintf("held by %s for %s", holder, time.Since(b.HeldSince).Round(time.Second))
}

func clockLine(c statusapi.ClockStatus) string {
	if c.Now.IsZero() {
		return "-"
	}
	line := c.Now.Format("2006-01-02 15:04:05")
	if !c.Synced {
		return line + " (not synced)"
	}
	return line + " (synced " + c.LastSync.Format("15:04") + ")"
}

func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Second).String()
}

// RenderDevices renders the result of an mDNS scan.
func RenderDevices(devices []*discovery.Device, width int) string {
	if len(devices) == 0 {
		return RenderWarning("No clocks in setup mode found", []Field{
			{Key: "Hint", Value: "join the inkclock-setup network and scan again"},
		}, width)
	}

	fields := make([]Field, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = d.Instance
		}
		fields = append(fields, Field{
			Key:   name,
			Value: fmt.Sprintf("%s:%d", d.IP, d.Port),
		})
	}
	return RenderSuccess(fmt.Sprintf("Found %d clock(s) in setup mode", len(devices)), fields, width)
}
