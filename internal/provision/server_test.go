package provision

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/inkclock/inkclock/internal/radio"
)

type fakeStore struct {
	mu    sync.Mutex
	saved []radio.Credentials
	err   error
}

func (f *fakeStore) Save(creds radio.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, creds)
	return nil
}

func (f *fakeStore) last() (radio.Credentials, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return radio.Credentials{}, 0
	}
	return f.saved[len(f.saved)-1], len(f.saved)
}

type testServer struct {
	base   string
	store  *fakeStore
	resets chan struct{}
	done   chan error
	cancel context.CancelFunc
}

func startServer(t *testing.T, store *fakeStore) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ts := &testServer{
		base:   "http://" + ln.Addr().String(),
		store:  store,
		resets: make(chan struct{}, 4),
		done:   make(chan error, 1),
	}
	srv := &Server{
		Listener: ln,
		Store:    store,
		Reset: func() error {
			ts.resets <- struct{}{}
			return nil
		},
		ReadTimeout: 2 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts.cancel = cancel
	go func() { ts.done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-ts.done:
		case <-time.After(2 * time.Second):
			t.Error("Serve() did not return after cancel")
		}
	})
	return ts
}

func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 2 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestServerConfigPage(t *testing.T) {
	ts := startServer(t, &fakeStore{})

	resp, err := noRedirectClient().Get(ts.base + "/config")
	if err != nil {
		t.Fatalf("GET /config error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `action="/configure_wifi"`) {
		t.Error("config page should post to /configure_wifi")
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestServerRedirectsToConfig(t *testing.T) {
	ts := startServer(t, &fakeStore{})

	for _, path := range []string{"/", "/generate_204", "/hotspot-detect.html"} {
		resp, err := noRedirectClient().Get(ts.base + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			t.Errorf("GET %s status = %d, want 302", path, resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != ts.base+"/config" {
			t.Errorf("GET %s Location = %q, want %q", path, loc, ts.base+"/config")
		}
	}
}

func TestServerConfigureWifi(t *testing.T) {
	store := &fakeStore{}
	ts := startServer(t, store)

	body, contentType := buildForm(t, [][2]string{{"password", "hunter22"}, {"ssid", "HomeNet"}})
	resp, err := noRedirectClient().Post(ts.base+"/configure_wifi", contentType, body)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	select {
	case <-ts.resets:
	case <-time.After(2 * time.Second):
		t.Fatal("reset hook not called")
	}

	creds, n := store.last()
	if n != 1 {
		t.Fatalf("saved %d times, want 1", n)
	}
	want := radio.Credentials{SSID: "HomeNet", Password: "hunter22", Provisioned: true}
	if creds != want {
		t.Errorf("saved %+v, want %+v", creds, want)
	}
}

func TestServerFailuresDoNotReset(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		form       [][2]string
		wantStatus int
	}{
		{
			name:       "missing ssid",
			form:       [][2]string{{"password", "x"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "storage failure",
			storeErr:   errors.New("flash write failed"),
			form:       [][2]string{{"ssid", "HomeNet"}, {"password", "x"}},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := startServer(t, &fakeStore{err: tt.storeErr})

			body, contentType := buildForm(t, tt.form)
			resp, err := noRedirectClient().Post(ts.base+"/configure_wifi", contentType, body)
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			// The server keeps serving after a failure.
			resp, err = noRedirectClient().Get(ts.base + "/config")
			if err != nil {
				t.Fatalf("GET after failure error = %v", err)
			}
			resp.Body.Close()

			select {
			case <-ts.resets:
				t.Error("reset hook called after failure")
			default:
			}
		})
	}
}

func TestServerNotMultipart(t *testing.T) {
	ts := startServer(t, &fakeStore{})

	resp, err := noRedirectClient().Post(ts.base+"/configure_wifi",
		"application/x-www-form-urlencoded", strings.NewReader("ssid=a&password=b"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	srv := &Server{Listener: ln, Store: &fakeStore{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return")
	}

	if _, err := net.DialTimeout("tcp", ln.Addr().String(), 200*time.Millisecond); err == nil {
		t.Error("listener still accepting after cancel")
	}
}

func TestServeRequiresStore(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	if err := (&Server{Listener: ln}).Serve(context.Background()); err == nil {
		t.Error("Serve() without store should fail")
	}
}

// flakyListener fails the first failures Accept calls.
type flakyListener struct {
	net.Listener
	mu       sync.Mutex
	failures int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	l.mu.Unlock()
	return l.Listener.Accept()
}

func TestServerSurvivesAcceptErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	srv := &Server{
		Listener:    &flakyListener{Listener: ln, failures: 3},
		Store:       &fakeStore{},
		ReadTimeout: 2 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	resp, err := noRedirectClient().Get("http://" + ln.Addr().String() + "/config")
	if err != nil {
		t.Fatalf("GET after accept errors error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	select {
	case err := <-done:
		t.Fatalf("Serve() returned %v after transient accept errors", err)
	default:
	}
}

func TestServerSubmitClassifiesErrors(t *testing.T) {
	tests := []struct {
		name        string
		storeErr    error
		form        [][2]string
		wantForm    bool
		wantPersist bool
	}{
		{
			name: "stored",
			form: [][2]string{{"ssid", "HomeNet"}, {"password", "pw"}},
		},
		{
			name:     "bad form",
			form:     [][2]string{{"password", "pw"}},
			wantForm: true,
		},
		{
			name:        "store failure",
			storeErr:    errors.New("flash write failed"),
			form:        [][2]string{{"ssid", "HomeNet"}, {"password", "pw"}},
			wantPersist: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{err: tt.storeErr}
			srv := &Server{Store: store}

			body, contentType := buildForm(t, tt.form)
			req := httptest.NewRequest(http.MethodPost, "/configure_wifi", body)
			req.Header.Set("Content-Type", contentType)

			creds, err := srv.submit(req)
			if IsFormError(err) != tt.wantForm || IsPersistError(err) != tt.wantPersist {
				t.Fatalf("submit() error = %v, want form=%v persist=%v", err, tt.wantForm, tt.wantPersist)
			}
			if err != nil {
				if _, n := store.last(); n != 0 {
					t.Error("credentials stored despite an error")
				}
				return
			}
			if !creds.Provisioned || creds.SSID != "HomeNet" {
				t.Errorf("submit() = %+v", creds)
			}
		})
	}
}
