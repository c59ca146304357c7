package wifi

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a network access failure
type ErrorType int

const (
	// ErrTypeTimedOut indicates the network did not become usable within the bound
	ErrTypeTimedOut ErrorType = iota
	// ErrTypeUnavailable indicates there is no connection manager (e.g. access point mode)
	ErrTypeUnavailable
	// ErrTypeStopped indicates the manager was shut down while waiting
	ErrTypeStopped
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeTimedOut:
		return "Timed Out"
	case ErrTypeUnavailable:
		return "Unavailable"
	case ErrTypeStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// BrokerError is returned by the access broker.
type BrokerError struct {
	Type      ErrorType // Category of error
	Message   string    // Human-readable error message
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether a later acquire may succeed
}

// Error implements the error interface
func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *BrokerError) Unwrap() error {
	return e.Err
}

// Is matches any BrokerError of the same type, so errors.Is(err, ErrTimedOut)
// holds for every timeout regardless of message.
func (e *BrokerError) Is(target error) bool {
	t, ok := target.(*BrokerError)
	return ok && t.Type == e.Type
}

var (
	// ErrTimedOut is the sentinel for acquire timeouts.
	ErrTimedOut = &BrokerError{Type: ErrTypeTimedOut, Message: "network not ready in time", Retryable: true}
	// ErrUnavailable is the sentinel for a broker without a manager.
	ErrUnavailable = &BrokerError{Type: ErrTypeUnavailable, Message: "no connection manager"}
)

func newTimedOut(stage string, err error) *BrokerError {
	return &BrokerError{
		Type:      ErrTypeTimedOut,
		Message:   fmt.Sprintf("timed out %s", stage),
		Err:       err,
		Retryable: true,
	}
}

func newStopped(err error) *BrokerError {
	return &BrokerError{
		Type:    ErrTypeStopped,
		Message: "connection manager stopped",
		Err:     err,
	}
}

// IsTimedOut reports whether err is an acquire timeout
func IsTimedOut(err error) bool {
	return errors.Is(err, ErrTimedOut)
}

// IsUnavailable reports whether err means no manager exists
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRetryable checks if an acquire should be tried again later
func IsRetryable(err error) bool {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// GetShortErrorMessage returns the text shown on the e-ink status line
func GetShortErrorMessage(err error) string {
	var be *BrokerError
	if !errors.As(err, &be) {
		return err.Error()
	}

	switch be.Type {
	case ErrTypeTimedOut:
		return "Wi-Fi busy"
	case ErrTypeUnavailable:
		return "Wi-Fi not configured"
	case ErrTypeStopped:
		return "Wi-Fi off"
	default:
		return be.Message
	}
}
