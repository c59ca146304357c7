package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/inkclock/inkclock/internal/discovery"
	"github.com/inkclock/inkclock/internal/statusapi"
)

func testSnapshot() statusapi.Snapshot {
	return statusapi.Snapshot{
		Name:    "kitchen",
		Version: "v0.4.0",
		Mode:    "station",
		State:   "connected",
		LinkUp:  true,
		Address: "10.0.0.23",
		Broker: statusapi.BrokerStatus{
			IdleSeconds:      12,
			IdleLimitSeconds: 30,
		},
		Clock: statusapi.ClockStatus{
			Now:      time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
			Synced:   true,
			LastSync: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(testSnapshot(), 80)

	for _, want := range []string{"KITCHEN", "v0.4.0", "connected", "10.0.0.23", "free", "12s", "2026-03-01 12:30:00", "synced 12:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderStatus() missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatusUnsyncedAndHeld(t *testing.T) {
	snap := testSnapshot()
	snap.Clock.Synced = false
	snap.Broker.Held = true
	snap.Broker.HolderID = "5c1f2a9e-1111-2222-3333-444455556666"

	out := RenderStatus(snap, 80)
	if !strings.Contains(out, "not synced") {
		t.Errorf("RenderStatus() should flag an unsynced clock:\n%s", out)
	}
	if !strings.Contains(out, "held by 5c1f2a9e") {
		t.Errorf("RenderStatus() should show a shortened holder id:\n%s", out)
	}
}

func TestRenderDevices(t *testing.T) {
	tests := []struct {
		name    string
		devices []*discovery.Device
		want    []string
	}{
		{
			name: "none",
			want: []string{"No clocks in setup mode found"},
		},
		{
			name: "two",
			devices: []*discovery.Device{
				{Instance: "inkclock-setup", Name: "kitchen", IP: "192.168.2.1", Port: 8080},
				{Instance: "inkclock-setup-2", IP: "192.168.2.1", Port: 8081},
			},
			want: []string{"Found 2 clock(s)", "kitchen", "192.168.2.1:8080", "inkclock-setup-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderDevices(tt.devices, 80)
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("RenderDevices() missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestRenderFailure(t *testing.T) {
	out := RenderFailure("Provisioning failed", errors.New("connection refused"), []string{"Join the setup network"}, 80)
	for _, want := range []string{"FAILED", "Provisioning failed", "connection refused", "Troubleshooting:", "Join the setup network"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderFailure() missing %q:\n%s", want, out)
		}
	}
}

func TestTroubleshootingLines(t *testing.T) {
	hint := "The clock did not respond in time.\nTroubleshooting:\n  • Move closer\n  • Try again"
	got := TroubleshootingLines(hint)
	want := []string{"Move closer", "Try again"}

	if len(got) != len(want) {
		t.Fatalf("TroubleshootingLines() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := TroubleshootingLines("single line hint"); len(got) != 1 || got[0] != "single line hint" {
		t.Errorf("single line = %q", got)
	}
}

func TestClampWidth(t *testing.T) {
	tests := []struct {
		in   int
		err  error
		want int
	}{
		{40, nil, MinTerminalWidth},
		{80, nil, 80},
		{200, nil, MaxContentWidth},
		{120, errors.New("not a tty"), MinTerminalWidth},
	}
	for _, tt := range tests {
		if got := clampWidth(tt.in, tt.err); got != tt.want {
			t.Errorf("clampWidth(%d, %v) = %d, want %d", tt.in, tt.err, got, tt.want)
		}
	}
}

func TestMonitorModel(t *testing.T) {
	m := NewMonitorModel("127.0.0.1:8090")

	if !strings.Contains(m.View(), "Connecting to 127.0.0.1:8090") {
		t.Errorf("initial view should show the spinner:\n%s", m.View())
	}

	next, _ := m.Update(SnapshotMsg(testSnapshot()))
	m = next.(MonitorModel)
	view := m.View()
	if !strings.Contains(view, "KITCHEN") {
		t.Errorf("view after snapshot missing status box:\n%s", view)
	}
	if !strings.Contains(view, "Radio off in:") {
		t.Errorf("view should show the idle bar when the broker is free:\n%s", view)
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(MonitorModel)
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestMonitorModelStreamEnded(t *testing.T) {
	m := NewMonitorModel("127.0.0.1:8090")
	boom := errors.New("connection reset")

	next, cmd := m.Update(StreamEndedMsg{Err: boom})
	m = next.(MonitorModel)
	if cmd == nil {
		t.Fatal("stream end should quit")
	}
	if !errors.Is(m.Err(), boom) {
		t.Errorf("Err() = %v, want %v", m.Err(), boom)
	}
	if !strings.Contains(m.View(), "Stream closed: connection reset") {
		t.Errorf("view should report the closed stream:\n%s", m.View())
	}
}
