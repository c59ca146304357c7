package power

import (
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/inkclock/inkclock/internal/config"
)

// WakePin is a GPIO input that ends a sleep when it reads Level.
type WakePin struct {
	Name  string
	Pin   gpio.PinIn
	Level gpio.Level
}

// WakeConfig lists the wake sources armed for one sleep.
type WakeConfig struct {
	// Timer wakes the device after the given duration. Zero arms no timer.
	Timer time.Duration
	Pins  []WakePin
}

func (w WakeConfig) String() string {
	names := make([]string, 0, len(w.Pins))
	for _, p := range w.Pins {
		names = append(names, p.Name)
	}
	timer := "none"
	if w.Timer > 0 {
		timer = w.Timer.String()
	}
	return fmt.Sprintf("timer=%s pins=[%s]", timer, strings.Join(names, ","))
}

// InitHost loads the periph.io host drivers so GPIO lines can be looked up.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init periph host: %w", err)
	}
	return nil
}

// ResolveWakePins looks each configured pin up in the GPIO registry and
// configures it as an input pulled toward its inactive level, with edge
// detection toward the wake level.
func ResolveWakePins(pins []config.WakePin) ([]WakePin, error) {
	resolved := make([]WakePin, 0, len(pins))
	for _, cfg := range pins {
		pin := gpioreg.ByName(cfg.Name)
		if pin == nil {
			return nil, fmt.Errorf("wake pin %s not found", cfg.Name)
		}

		level, err := parseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("wake pin %s: %w", cfg.Name, err)
		}

		pull, edge := gpio.PullUp, gpio.FallingEdge
		if level == gpio.High {
			pull, edge = gpio.PullDown, gpio.RisingEdge
		}
		if err := pin.In(pull, edge); err != nil {
			return nil, fmt.Errorf("configure wake pin %s: %w", cfg.Name, err)
		}

		resolved = append(resolved, WakePin{Name: cfg.Name, Pin: pin, Level: level})
	}
	return resolved, nil
}

func parseLevel(s string) (gpio.Level, error) {
	switch strings.ToLower(s) {
	case "low", "":
		return gpio.Low, nil
	case "high":
		return gpio.High, nil
	default:
		return gpio.Low, fmt.Errorf("unknown level %q", s)
	}
}
