package portalclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeHTTP indicates an unexpected HTTP status
	ErrTypeHTTP
	// ErrTypeRejected indicates the clock refused the submitted form (HTTP 400)
	ErrTypeRejected
	// ErrTypeValidation indicates credentials that fail local checks
	ErrTypeValidation
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the clock refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeRejected:
		return "Rejected"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// PortalError is returned by every Client method.
type PortalError struct {
	Type           ErrorType
	Message        string
	StatusCode     int
	Err            error
	NetworkSubtype NetworkErrorSubtype
	DeviceIP       string
	Retryable      bool
}

// Error implements the error interface
func (e *PortalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *PortalError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a transport error onto a PortalError.
func ClassifyNetworkError(err error, deviceIP string) *PortalError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &PortalError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			DeviceIP:       deviceIP,
			Retryable:      true,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &PortalError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			DeviceIP:       deviceIP,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &PortalError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Clock refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &PortalError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &PortalError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, deviceIP)
	}

	return &PortalError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		DeviceIP:       deviceIP,
		Retryable:      true,
	}
}

// NewNetworkError creates a network error with automatic classification
func NewNetworkError(message string, err error, deviceIP string) *PortalError {
	classified := ClassifyNetworkError(err, deviceIP)
	if classified == nil {
		return &PortalError{Type: ErrTypeNetwork, Message: message, DeviceIP: deviceIP, Retryable: true}
	}
	classified.Message = message
	return classified
}

// NewHTTPError creates an error for an unexpected status. 400 means the
// clock rejected the form; 5xx is retryable.
func NewHTTPError(statusCode int, message string) *PortalError {
	if statusCode == http.StatusBadRequest {
		return &PortalError{
			Type:       ErrTypeRejected,
			Message:    message,
			StatusCode: statusCode,
		}
	}
	return &PortalError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *PortalError {
	return &PortalError{
		Type:    ErrTypeValidation,
		Message: message,
	}
}

func asPortalError(err error) (*PortalError, bool) {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	pe, ok := asPortalError(err)
	if !ok {
		return false
	}
	switch pe.Type {
	case ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS:
		return true
	}
	return false
}

// IsRejected reports whether the clock refused the submitted form.
func IsRejected(err error) bool {
	pe, ok := asPortalError(err)
	return ok && pe.Type == ErrTypeRejected
}

// IsValidationError reports whether err came from local validation.
func IsValidationError(err error) bool {
	pe, ok := asPortalError(err)
	return ok && pe.Type == ErrTypeValidation
}

// IsRetryable reports whether the request may succeed if repeated.
func IsRetryable(err error) bool {
	pe, ok := asPortalError(err)
	return ok && pe.Retryable
}

// GetTroubleshootingHint returns user-facing advice for err.
func GetTroubleshootingHint(err error) string {
	pe, ok := asPortalError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch pe.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The clock did not respond in time.",
			"Troubleshooting:",
			"  • Check that your computer is joined to the inkclock-setup network",
			"  • Move closer to the clock",
			"  • Try increasing the timeout duration",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The clock refused the connection.",
			"Troubleshooting:",
			"  • The clock may already be configured; hold the button at power-on to reset it",
			"  • Verify the port number (default is 8080)",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the clock hostname.",
			"Troubleshooting:",
			"  • Use the gateway address instead: 192.168.2.1",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}
		switch pe.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The clock is not reachable.",
				"Troubleshooting:",
				"  • Verify the clock address is correct",
				"  • Check that the clock is showing its setup screen",
				"  • Try pinging the clock: ping "+pe.DeviceIP)
		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the setup network.",
				"Troubleshooting:",
				"  • Join the inkclock-setup Wi-Fi network",
				"  • Verify Wi-Fi is enabled on your computer")
		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your Wi-Fi connection",
				"  • Ensure you are joined to the inkclock-setup network")
		}
		return strings.Join(hint, "\n")

	case ErrTypeRejected:
		return "The clock rejected the form. Network names and passwords are limited to 32 bytes."

	case ErrTypeHTTP:
		if pe.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The clock could not save the settings (HTTP %d).", pe.StatusCode),
				"Troubleshooting:",
				"  • Try again",
				"  • Power-cycle the clock and repeat setup",
			}, "\n")
		}
		return fmt.Sprintf("The clock returned HTTP error %d.", pe.StatusCode)

	case ErrTypeValidation:
		return "The credentials are invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a one-line message for err.
func GetShortErrorMessage(err error) string {
	pe, ok := asPortalError(err)
	if !ok {
		return err.Error()
	}

	switch pe.Type {
	case ErrTypeTimeout:
		return "Clock not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Clock refused connection - is it in setup mode?"
	case ErrTypeDNS:
		return "Cannot resolve clock hostname"
	case ErrTypeNetwork:
		switch pe.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Clock unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - join the setup network"
		default:
			return "Network error - check connection"
		}
	case ErrTypeRejected:
		return "Clock rejected the settings"
	case ErrTypeHTTP:
		return fmt.Sprintf("Clock error (HTTP %d)", pe.StatusCode)
	default:
		return pe.Message
	}
}
