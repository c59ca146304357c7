package portalclient

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	client := NewClient("192.168.2.1", 8080)

	if client.BaseURL != "http://192.168.2.1:8080" {
		t.Errorf("BaseURL = %s, want http://192.168.2.1:8080", client.BaseURL)
	}
	if client.HTTPClient == nil {
		t.Fatal("HTTPClient should not be nil")
	}
	if client.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.HTTPClient.Timeout, DefaultTimeout)
	}
	if client.host() != "192.168.2.1" {
		t.Errorf("host() = %q", client.host())
	}
}

func TestNewClientWithURLTrimsSlash(t *testing.T) {
	client := NewClientWithURL("http://192.168.2.1:8080/")
	if client.BaseURL != "http://192.168.2.1:8080" {
		t.Errorf("BaseURL = %s", client.BaseURL)
	}
}

func TestSetTimeoutAndRetry(t *testing.T) {
	client := NewClient("192.168.2.1", 8080)
	client.SetTimeout(5 * time.Second)
	client.SetRetry(5, 2*time.Second)

	if client.HTTPClient.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.HTTPClient.Timeout)
	}
	if client.MaxRetries != 5 || client.RetryDelay != 2*time.Second {
		t.Errorf("retry = %d/%v, want 5/2s", client.MaxRetries, client.RetryDelay)
	}
}

func fastClient(url string) *Client {
	c := NewClientWithURL(url)
	c.SetRetry(2, time.Millisecond)
	c.MaxRetryDelay = 5 * time.Millisecond
	return c
}

func TestFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/config" {
			t.Errorf("path = %s, want /config", r.URL.Path)
		}
		_, _ = io.WriteString(w, "<html>setup</html>")
	}))
	defer server.Close()

	page, err := fastClient(server.URL).FetchPage(context.Background())
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if string(page) != "<html>setup</html>" {
		t.Errorf("page = %q", page)
	}
}

func TestPingNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := fastClient(url).Ping(context.Background())
	if err == nil {
		t.Fatal("Ping() against a closed server should fail")
	}
	if !IsNetworkError(err) {
		t.Errorf("Ping() error = %v, want network error", err)
	}
}

func TestConfigureSendsMultipartForm(t *testing.T) {
	var gotSSID, gotPassword string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/configure_wifi" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 10); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		gotSSID = r.FormValue("ssid")
		gotPassword = r.FormValue("password")
		_, _ = io.WriteString(w, "saved")
	}))
	defer server.Close()

	if err := fastClient(server.URL).Configure(context.Background(), "HomeNet", "hunter22"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if gotSSID != "HomeNet" || gotPassword != "hunter22" {
		t.Errorf("form = (%q, %q), want (HomeNet, hunter22)", gotSSID, gotPassword)
	}
}

func TestConfigureRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid form", http.StatusBadRequest)
	}))
	defer server.Close()

	err := fastClient(server.URL).Configure(context.Background(), "HomeNet", "pw")
	if !IsRejected(err) {
		t.Fatalf("Configure() error = %v, want rejected", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestConfigureRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "storage failure", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "saved")
	}))
	defer server.Close()

	if err := fastClient(server.URL).Configure(context.Background(), "HomeNet", "pw"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3", calls.Load())
	}
}

func TestConfigureGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := fastClient(server.URL).Configure(context.Background(), "HomeNet", "pw")
	if err == nil {
		t.Fatal("Configure() should fail")
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3 (1 + 2 retries)", calls.Load())
	}
}

func TestConfigureValidatesLocally(t *testing.T) {
	client := NewClient("192.0.2.1", 8080)

	tests := []struct {
		name     string
		ssid     string
		password string
	}{
		{"empty ssid", "", "pw"},
		{"long ssid", "abcdefghijklmnopqrstuvwxyz0123456789", "pw"},
		{"long password", "HomeNet", "abcdefghijklmnopqrstuvwxyz0123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Configure(context.Background(), tt.ssid, tt.password)
			if !IsValidationError(err) {
				t.Errorf("Configure() error = %v, want validation error", err)
			}
		})
	}
}

func TestEncodeForm(t *testing.T) {
	body, contentType, err := EncodeForm("HomeNet", "")
	if err != nil {
		t.Fatalf("EncodeForm() error = %v", err)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("ParseMediaType() error = %v", err)
	}

	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	form, err := r.ReadForm(1 << 10)
	if err != nil {
		t.Fatalf("ReadForm() error = %v", err)
	}
	if got := form.Value["ssid"]; len(got) != 1 || got[0] != "HomeNet" {
		t.Errorf("ssid = %v", got)
	}
	if got := form.Value["password"]; len(got) != 1 || got[0] != "" {
		t.Errorf("password = %v, want one empty value", got)
	}
}
