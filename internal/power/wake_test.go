package power

import (
	"strings"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/inkclock/inkclock/internal/config"
)

func registerPin(t *testing.T, name string, level gpio.Level) *gpiotest.Pin {
	t.Helper()
	p := &gpiotest.Pin{N: name, L: level, EdgesChan: make(chan gpio.Level, 1)}
	if err := gpioreg.Register(p); err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
	t.Cleanup(func() { gpioreg.Unregister(name) })
	return p
}

func TestResolveWakePins(t *testing.T) {
	button := registerPin(t, "WAKETEST_BUTTON", gpio.High)
	registerPin(t, "WAKETEST_LID", gpio.Low)

	pins, err := ResolveWakePins([]config.WakePin{
		{Name: "WAKETEST_BUTTON", Level: "low"},
		{Name: "WAKETEST_LID", Level: "HIGH"},
	})
	if err != nil {
		t.Fatalf("ResolveWakePins() error = %v", err)
	}
	if len(pins) != 2 {
		t.Fatalf("ResolveWakePins() returned %d pins, want 2", len(pins))
	}
	if pins[0].Level != gpio.Low || pins[1].Level != gpio.High {
		t.Errorf("levels = %v, %v", pins[0].Level, pins[1].Level)
	}
	if button.Pull() != gpio.PullUp {
		t.Errorf("active-low pin pull = %v, want PullUp", button.Pull())
	}
}

func TestResolveWakePinsErrors(t *testing.T) {
	registerPin(t, "WAKETEST_ONLY", gpio.High)

	tests := []struct {
		name    string
		pins    []config.WakePin
		wantMsg string
	}{
		{
			name:    "unknown pin",
			pins:    []config.WakePin{{Name: "WAKETEST_MISSING", Level: "low"}},
			wantMsg: "not found",
		},
		{
			name:    "bad level",
			pins:    []config.WakePin{{Name: "WAKETEST_ONLY", Level: "sideways"}},
			wantMsg: "unknown level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveWakePins(tt.pins)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("ResolveWakePins() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestWakeConfigString(t *testing.T) {
	w := WakeConfig{Pins: []WakePin{{Name: "GPIO5"}, {Name: "GPIO0"}}}
	if got := w.String(); got != "timer=none pins=[GPIO5,GPIO0]" {
		t.Errorf("String() = %q", got)
	}
}
