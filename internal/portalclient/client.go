package portalclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/radio"
	"github.com/inkclock/inkclock/internal/version"
)

const (
	// DefaultPort is the port the setup page listens on.
	DefaultPort = 8080

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between retry attempts
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 30 * time.Second

	maxPageBytes = 64 << 10
)

// Client talks to the setup page of one clock.
type Client struct {
	// BaseURL is the base URL of the page, e.g. "http://192.168.2.1:8080".
	BaseURL string

	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for failed requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration
}

// NewClient returns a client for the page at ip:port.
func NewClient(ip string, port int) *Client {
	return NewClientWithURL(fmt.Sprintf("http://%s:%d", ip, port))
}

// NewClientWithURL returns a client for a full base URL.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: DefaultTimeout},
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// FetchPage returns the setup page HTML.
func (c *Client) FetchPage(ctx context.Context) ([]byte, error) {
	var page []byte
	err := c.retry(ctx, "fetch page", func() error {
		body, err := c.fetchPageAttempt(ctx)
		if err != nil {
			return err
		}
		page = body
		return nil
	})
	return page, err
}

// Ping checks that the setup page answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchPageAttempt(ctx)
	return err
}

func (c *Client) fetchPageAttempt(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/config", nil)
	if err != nil {
		return nil, NewNetworkError("failed to create GET request", err, c.host())
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("GET request failed", err, c.host())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err, c.host())
	}
	return body, nil
}

// Configure submits credentials. On success the clock stores them and
// restarts into station mode.
func (c *Client) Configure(ctx context.Context, ssid, password string) error {
	creds := radio.Credentials{SSID: ssid, Password: password}
	if err := creds.Validate(); err != nil {
		return NewValidationError(err.Error())
	}

	body, contentType, err := EncodeForm(ssid, password)
	if err != nil {
		return NewValidationError(err.Error())
	}

	return c.retry(ctx, "configure", func() error {
		return c.configureAttempt(ctx, body, contentType)
	})
}

func (c *Client) configureAttempt(ctx context.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/configure_wifi", bytes.NewReader(body))
	if err != nil {
		return NewNetworkError("failed to create POST request", err, c.host())
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return NewNetworkError("POST request failed", err, c.host())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewHTTPError(resp.StatusCode, fmt.Sprintf("configure failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	return nil
}

// EncodeForm builds the multipart body the setup page posts.
func EncodeForm(ssid, password string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("ssid", ssid); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("password", password); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// retry runs op with exponential backoff while it fails with a retryable
// error.
func (c *Client) retry(ctx context.Context, what string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.RetryDelay
	policy.MaxInterval = c.MaxRetryDelay
	policy.MaxElapsedTime = 0

	// WithMaxRetries treats 0 as unlimited.
	var b backoff.BackOff = &backoff.StopBackOff{}
	if c.MaxRetries > 0 {
		b = backoff.WithMaxRetries(policy, uint64(c.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		logging.Debug("Retrying portal request",
			zap.String("op", what),
			zap.Duration("in", next),
			zap.Error(err),
		)
	})
}

func (c *Client) host() string {
	host := strings.TrimPrefix(c.BaseURL, "http://")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
