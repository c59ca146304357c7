package provision

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/radio"
	"go.uber.org/zap"
)

//go:embed assets/config.html
var configPage []byte

//go:embed assets/saved.html
var savedPage []byte

const (
	// DefaultReadTimeout bounds how long one client may hold the server.
	DefaultReadTimeout = 10 * time.Second

	// maxBodyBytes caps the POST body; the form carries two short fields.
	maxBodyBytes = 8 << 10

	// Accept retry delays after a failed Accept.
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// CredentialWriter persists submitted credentials.
type CredentialWriter interface {
	Save(creds radio.Credentials) error
}

// Server serves the setup page over a caller-supplied listener.
type Server struct {
	Listener net.Listener
	Store    CredentialWriter
	// Reset is called after credentials are stored and confirmed.
	Reset func() error

	ReadTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Serve accepts connections until ctx is cancelled, handling each to
// completion before accepting the next. Cancelling ctx closes the listener
// and Serve returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if s.Listener == nil {
		return errors.New("provision: no listener")
	}
	if s.Store == nil {
		return errors.New("provision: no credential store")
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.Listener.Close()
	}()

	logging.Info("Provisioning server listening", zap.String("addr", s.Listener.Addr().String()))

	var delay time.Duration
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logging.Info("Provisioning server stopped")
				return nil
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			logging.Error("Failed to accept connection", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		if s.handleConnection(conn) {
			s.reset()
		}
	}
}

// handleConnection serves one request and reports whether the device should
// now be reset.
func (s *Server) handleConnection(conn net.Conn) bool {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	logging.LogConnection(remoteAddr, "connected")

	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		logging.Warn("Failed to set deadline", zap.String("remote_addr", remoteAddr), zap.Error(err))
	}

	req, err := ReadHTTPRequest(conn)
	if err != nil {
		logging.Warn("Failed to read HTTP request",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return false
	}
	defer req.Body.Close()
	LogHTTPRequestDetails(req, remoteAddr)

	switch {
	case req.Method == http.MethodGet && req.URL.Path == "/config":
		s.respond(conn, remoteAddr, http.StatusOK, "text/html; charset=utf-8", configPage, nil)
		return false

	case req.Method == http.MethodPost && req.URL.Path == "/configure_wifi":
		return s.configure(conn, remoteAddr, req)

	case req.Method == http.MethodGet || req.Method == http.MethodHead:
		// Connectivity checks from phones probe arbitrary paths; send them all
		// to the form so the OS pops the portal sheet.
		location := "http://" + portalHost(conn) + "/config"
		s.respond(conn, remoteAddr, http.StatusFound, "text/plain; charset=utf-8",
			[]byte("see "+location+"\n"), http.Header{"Location": {location}})
		return false

	default:
		s.respond(conn, remoteAddr, http.StatusNotFound, "text/plain; charset=utf-8",
			[]byte("not found\n"), nil)
		return false
	}
}

func (s *Server) configure(conn net.Conn, remoteAddr string, req *http.Request) bool {
	creds, err := s.submit(req)
	switch {
	case err == nil:
		logging.Info("Device provisioned",
			zap.String("remote_addr", remoteAddr),
			zap.String("ssid", creds.SSID),
		)
		s.Metrics.ObserveProvision("ok")
		s.respond(conn, remoteAddr, http.StatusOK, "text/html; charset=utf-8", savedPage, nil)
		return true

	case IsPersistError(err):
		logging.Error("Provisioning failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
		s.Metrics.ObserveProvision("failed")
		s.respond(conn, remoteAddr, http.StatusInternalServerError, "text/plain; charset=utf-8",
			[]byte("could not save settings, please try again\n"), nil)
		return false

	default:
		logging.Warn("Rejected provisioning form",
			zap.String("remote_addr", remoteAddr),
			zap.Bool("form_error", IsFormError(err)),
			zap.Error(err),
		)
		s.Metrics.ObserveProvision("rejected")
		s.respond(conn, remoteAddr, http.StatusBadRequest, "text/plain; charset=utf-8",
			[]byte(err.Error()+"\n"), nil)
		return false
	}
}

// submit parses the form and stores the credentials it carries. Errors are
// a *FormError for a bad submission or a *PersistError for a failed write.
func (s *Server) submit(req *http.Request) (radio.Credentials, error) {
	creds, err := ParseForm(req.Header.Get("Content-Type"), io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		return radio.Credentials{}, err
	}
	creds.Provisioned = true
	if err := s.Store.Save(creds); err != nil {
		return radio.Credentials{}, &PersistError{Err: err}
	}
	return creds, nil
}

func (s *Server) reset() {
	if s.Reset == nil {
		logging.Warn("No reset hook configured, staying up")
		return
	}
	logging.Info("Resetting after provisioning")
	if err := s.Reset(); err != nil {
		logging.Error("Reset failed", zap.Error(err))
	}
}

func (s *Server) respond(conn net.Conn, remoteAddr string, status int, contentType string, body []byte, extra http.Header) {
	header := http.Header{}
	for k, v := range extra {
		header[k] = v
	}
	header.Set("Content-Type", contentType)
	header.Set("Connection", "close")

	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    0,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Close:         true,
	}
	if err := resp.Write(conn); err != nil {
		logging.Warn("Failed to write response",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}
	logging.LogHTTPResponse(remoteAddr, status, len(body))
}

// ReadHTTPRequest reads one HTTP request directly off conn.
func ReadHTTPRequest(conn net.Conn) (*http.Request, error) {
	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP request: %w", err)
	}
	return req, nil
}

// LogHTTPRequestDetails logs method, path and headers of req.
func LogHTTPRequestDetails(req *http.Request, remoteAddr string) {
	headers := make(map[string]string)
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}
	logging.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headers)
}

// portalHost is the address the client reached us on, used for redirects
// so they work without DNS.
func portalHost(conn net.Conn) string {
	host, port, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return conn.LocalAddr().String()
	}
	if port == "80" {
		return host
	}
	return net.JoinHostPort(host, port)
}
