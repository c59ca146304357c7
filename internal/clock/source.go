package clock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Source reports the current time from somewhere on the network.
type Source interface {
	Time(ctx context.Context) (time.Time, error)
}

// ErrNoDate is returned when a response carries no usable Date header.
var ErrNoDate = errors.New("response has no Date header")

// HTTPDateSource reads the time from the Date header of an HTTP response.
// Resolution is one second, which is enough for a minute-resolution display.
type HTTPDateSource struct {
	URL    string
	Client *http.Client
}

// Time issues a HEAD request to URL and parses the Date header.
func (s *HTTPDateSource) Time(ctx context.Context) (time.Time, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("build request: %w", err)
	}

	sent := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("query %s: %w", s.URL, err)
	}
	resp.Body.Close()

	header := resp.Header.Get("Date")
	if header == "" {
		return time.Time{}, ErrNoDate
	}
	t, err := http.ParseTime(header)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoDate, header)
	}
	// The server stamped the response roughly halfway through the round trip.
	return t.Add(time.Since(sent) / 2), nil
}
