package portalclient

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func dialError(inner error) error {
	return &url.Error{
		Op:  "Post",
		URL: "http://192.168.2.1:8080/configure_wifi",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: inner},
	}
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		wantSub   NetworkErrorSubtype
		retryable bool
	}{
		{
			name:      "timeout",
			err:       dialError(&timeoutError{}),
			wantType:  ErrTypeTimeout,
			wantSub:   NetworkErrorTimeout,
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       dialError(syscall.ECONNREFUSED),
			wantType:  ErrTypeConnectionRefused,
			wantSub:   NetworkErrorConnectionRefused,
			retryable: true,
		},
		{
			name:      "host unreachable",
			err:       dialError(syscall.EHOSTUNREACH),
			wantType:  ErrTypeNetwork,
			wantSub:   NetworkErrorHostUnreachable,
			retryable: true,
		},
		{
			name:      "network unreachable",
			err:       dialError(syscall.ENETUNREACH),
			wantType:  ErrTypeNetwork,
			wantSub:   NetworkErrorNetworkUnreachable,
			retryable: true,
		},
		{
			name: "dns",
			err: &url.Error{Op: "Get", URL: "http://inkclock.local", Err: &net.DNSError{
				Err:  "no such host",
				Name: "inkclock.local",
			}},
			wantType:  ErrTypeDNS,
			wantSub:   NetworkErrorDNS,
			retryable: false,
		},
		{
			name:      "unknown",
			err:       errors.New("something odd"),
			wantType:  ErrTypeNetwork,
			wantSub:   NetworkErrorGeneral,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := ClassifyNetworkError(tt.err, "192.168.2.1")
			if pe == nil {
				t.Fatal("ClassifyNetworkError() = nil")
			}
			if pe.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", pe.Type, tt.wantType)
			}
			if pe.NetworkSubtype != tt.wantSub {
				t.Errorf("NetworkSubtype = %v, want %v", pe.NetworkSubtype, tt.wantSub)
			}
			if pe.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", pe.Retryable, tt.retryable)
			}
			if pe.DeviceIP != "192.168.2.1" {
				t.Errorf("DeviceIP = %q", pe.DeviceIP)
			}
		})
	}

	if ClassifyNetworkError(nil, "x") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestNewHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{400, ErrTypeRejected, false},
		{404, ErrTypeHTTP, false},
		{500, ErrTypeHTTP, true},
		{503, ErrTypeHTTP, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			pe := NewHTTPError(tt.status, "x")
			if pe.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", pe.Type, tt.wantType)
			}
			if pe.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", pe.Retryable, tt.retryable)
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("provision: %w", NewHTTPError(400, "bad form"))

	if !IsRejected(wrapped) {
		t.Error("IsRejected() should see through wrapping")
	}
	if IsRetryable(wrapped) {
		t.Error("rejected form should not be retryable")
	}
	if IsNetworkError(wrapped) {
		t.Error("rejected form is not a network error")
	}
	if !IsNetworkError(NewNetworkError("dial", dialError(syscall.ECONNREFUSED), "192.168.2.1")) {
		t.Error("refused connection should be a network error")
	}
	if !IsValidationError(NewValidationError("ssid is empty")) {
		t.Error("IsValidationError() = false")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", ClassifyNetworkError(dialError(&timeoutError{}), "192.168.2.1"), "Clock not responding (timeout)"},
		{"refused", ClassifyNetworkError(dialError(syscall.ECONNREFUSED), "192.168.2.1"), "Clock refused connection - is it in setup mode?"},
		{"rejected", NewHTTPError(400, "x"), "Clock rejected the settings"},
		{"server", NewHTTPError(500, "x"), "Clock error (HTTP 500)"},
		{"validation", NewValidationError("ssid is empty"), "ssid is empty"},
		{"plain", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetShortErrorMessage(tt.err); got != tt.want {
				t.Errorf("GetShortErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	hint := GetTroubleshootingHint(ClassifyNetworkError(dialError(syscall.EHOSTUNREACH), "192.168.2.1"))
	if !strings.Contains(hint, "ping 192.168.2.1") {
		t.Errorf("hint should suggest pinging the clock, got:\n%s", hint)
	}

	hint = GetTroubleshootingHint(ClassifyNetworkError(dialError(syscall.ENETUNREACH), "192.168.2.1"))
	if !strings.Contains(hint, "inkclock-setup") {
		t.Errorf("hint should name the setup network, got:\n%s", hint)
	}

	if got := GetTroubleshootingHint(errors.New("x")); got == "" {
		t.Error("hint for unknown error should not be empty")
	}
}
