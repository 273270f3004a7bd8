package appauth

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// DefaultCallbackPort is the default port for the loopback redirect
// listener.
const DefaultCallbackPort = 8090

// CallbackTimeout bounds how long a flow waits for the browser to
// deliver a redirect before it is treated as cancelled.
const CallbackTimeout = 10 * time.Minute

const callbackSuccessHTML = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body>
<h1>Signed in</h1>
<p>Authentication complete. You can close this window and return to the application.</p>
</body>
</html>`

const callbackErrorHTML = `<!DOCTYPE html>
<html>
<head><title>Sign-in failed</title></head>
<body>
<h1>Sign-in failed</h1>
<p>{{.Error}}{{if .Description}}: {{.Description}}{{end}}</p>
<p>You can close this window and retry from the application.</p>
</body>
</html>`

var (
	callbackSuccessTmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
	callbackErrorTmpl   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// callbackServer is a temporary loopback HTTP server that receives a
// single OAuth redirect and then shuts down.
type callbackServer struct {
	port     int
	server   *http.Server
	listener net.Listener
	resultCh chan *RedirectResult
	errorCh  chan error
	stopCh   chan struct{}
	once     sync.Once
	stopOnce sync.Once
	baseURL  string
}

// newCallbackServer creates a server for the given port; port 0 binds
// an ephemeral port.
func newCallbackServer(port int) *callbackServer {
	return &callbackServer{
		port:     port,
		resultCh: make(chan *RedirectResult, 1),
		errorCh:  make(chan error, 1),
		stopCh:   make(chan struct{}),
	}
}

// start begins listening and returns the redirect URI to include in the
// authorization request.
func (s *callbackServer) start() (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.baseURL = fmt.Sprintf("http://localhost:%d", s.port)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	return s.redirectURI(), nil
}

func (s *callbackServer) redirectURI() string {
	return s.baseURL + "/callback"
}

// wait blocks for the redirect, a server error, context cancellation,
// or stop. A stopped server yields a cancelled RedirectResult so the
// flow resolves as user cancellation rather than an internal error.
func (s *callbackServer) wait(ctx context.Context) (*RedirectResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return nil, err
	case <-s.stopCh:
		return &RedirectResult{Cancelled: true}, nil
	case <-ctx.Done():
		return &RedirectResult{Cancelled: true}, nil
	}
}

// handleCallback resolves the redirect exactly once; duplicate
// deliveries get a 400 and are otherwise ignored.
func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *callbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &RedirectResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.IsError() {
		_ = callbackErrorTmpl.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		_ = callbackSuccessTmpl.Execute(w, nil)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Let the response reach the browser before tearing down.
	go func() {
		time.Sleep(1 * time.Second)
		s.stop()
	}()
}

func (s *callbackServer) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// LoopbackDispatcher implements RedirectDispatcher with a loopback HTTP
// listener and the system browser. Each Dispatch starts a fresh
// listener, opens the browser, and waits for the single redirect.
type LoopbackDispatcher struct {
	mu       sync.Mutex
	port     int
	current  *callbackServer
	closed   bool
	registry *RedirectRegistry
	openURL  func(string) error
}

// LoopbackDispatcherOption configures a LoopbackDispatcher.
type LoopbackDispatcherOption func(*LoopbackDispatcher)

// WithBrowserOpener overrides how the authorization URL is opened.
// Tests use this to simulate the browser.
func WithBrowserOpener(open func(string) error) LoopbackDispatcherOption {
	return func(d *LoopbackDispatcher) {
		d.openURL = open
	}
}

// NewLoopbackDispatcher creates a dispatcher listening on the given
// port (0 selects DefaultCallbackPort) and registers it as the handler
// for the http scheme in the registry.
func NewLoopbackDispatcher(port int, registry *RedirectRegistry, opts ...LoopbackDispatcherOption) *LoopbackDispatcher {
	if port == 0 {
		port = DefaultCallbackPort
	}
	if registry == nil {
		registry = DefaultRegistry
	}
	d := &LoopbackDispatcher{
		port:     port,
		registry: registry,
		openURL:  openBrowser,
	}
	for _, opt := range opts {
		opt(d)
	}
	registry.Register("http", "loopback")
	return d
}

// openBrowser launches the user's default browser at the given URL and
// returns without waiting for it to exit. Unknown platforms fall back
// to xdg-open.
func openBrowser(rawURL string) error {
	name := "xdg-open"
	var args []string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "cmd", []string{"/c", "start"}
	}
	args = append(args, rawURL)

	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

// RedirectURI returns the loopback redirect URI for the configured port.
func (d *LoopbackDispatcher) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", d.port)
}

// Dispatch opens the browser at authURL and waits for the redirect.
func (d *LoopbackDispatcher) Dispatch(ctx context.Context, authURL string) (*RedirectResult, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClientClosed
	}
	if d.current != nil {
		// A new flow supersedes any flow still waiting.
		d.current.stop()
	}
	server := newCallbackServer(d.port)
	d.current = server
	d.mu.Unlock()

	if _, err := server.start(); err != nil {
		return nil, err
	}
	defer server.stop()

	if _, err := url.Parse(authURL); err != nil {
		return nil, fmt.Errorf("invalid authorization URL: %w", err)
	}
	if err := d.openURL(authURL); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, CallbackTimeout)
	defer cancel()

	return server.wait(waitCtx)
}

// Close stops the dispatcher and unblocks any waiting flow with a
// cancellation result.
func (d *LoopbackDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.current != nil {
		d.current.stop()
		d.current = nil
	}
	d.registry.Unregister("http", "loopback")
	return nil
}
