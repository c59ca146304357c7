package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inkclock/inkclock/internal/version"
)

// DefaultAddr is where the daemon serves the API unless configured otherwise.
const DefaultAddr = "127.0.0.1:8090"

// Client reads a daemon's status API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// NewClient accepts "host:port" or a full http URL.
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		BaseURL:    strings.TrimRight(addr, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Dialer:     &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// Fetch reads /status once.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status", nil)
	if err != nil {
		return snap, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return snap, fmt.Errorf("fetch status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("fetch status: unexpected status code %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode status: %w", err)
	}
	return snap, nil
}

// Stream opens /ws and calls fn for each snapshot until ctx is cancelled or
// the connection drops. Cancellation returns nil.
func (c *Client) Stream(ctx context.Context, fn func(Snapshot)) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	conn, _, err := c.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("open status stream: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read status stream: %w", err)
		}
		fn(snap)
	}
}
