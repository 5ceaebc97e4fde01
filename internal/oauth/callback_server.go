package oauth

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/barndoor/barndoor-cli/pkg/logging"
)

const (
	// DefaultCallbackHost is the interface the listener binds to.
	DefaultCallbackHost = "127.0.0.1"
	// DefaultCallbackPort is the fixed port registered with the identity
	// provider. There is no fallback port: the redirect URI must match.
	DefaultCallbackPort = 52765
	// DefaultCallbackPath is the only path the listener answers.
	DefaultCallbackPath = "/cb"
	// DefaultCallbackTimeout bounds how long a login waits for the browser.
	DefaultCallbackTimeout = 2 * time.Minute

	shutdownTimeout = 5 * time.Second
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackResult is the authorization response delivered to the listener.
type CallbackResult struct {
	Code  string
	State string
}

// CallbackListener binds the local redirect endpoint for one login at a time.
type CallbackListener struct {
	host string
	port int
	path string
}

// ListenerOption configures a CallbackListener.
type ListenerOption func(*CallbackListener)

// WithCallbackAddress overrides the bind host and port. Port 0 picks a free
// port and exists for tests; real logins must use the registered port.
func WithCallbackAddress(host string, port int) ListenerOption {
	return func(l *CallbackListener) {
		if host != "" {
			l.host = host
		}
		l.port = port
	}
}

// WithCallbackPath overrides the callback path.
func WithCallbackPath(path string) ListenerOption {
	return func(l *CallbackListener) {
		if path != "" {
			l.path = path
		}
	}
}

// NewCallbackListener creates a listener for 127.0.0.1:52765/cb unless
// overridden.
func NewCallbackListener(opts ...ListenerOption) *CallbackListener {
	l := &CallbackListener{
		host: DefaultCallbackHost,
		port: DefaultCallbackPort,
		path: DefaultCallbackPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RedirectURI is the redirect URI registered with the identity provider.
func (l *CallbackListener) RedirectURI() string {
	return redirectURI(l.port, l.path)
}

func redirectURI(port int, path string) string {
	return fmt.Sprintf("http://localhost:%d%s", port, path)
}

// PendingCallback is a bound listener waiting for exactly one callback.
type PendingCallback struct {
	expectedState string
	path          string
	port          int

	server   *http.Server
	listener net.Listener

	resultCh chan callbackOutcome
	errorCh  chan error

	handleOnce sync.Once
	stopOnce   sync.Once
}

type callbackOutcome struct {
	result *CallbackResult
	err    error
}

// Start binds the listener and begins serving. The returned handle must be
// awaited or stopped to release the port.
func (l *CallbackListener) Start(expectedState string) (*PendingCallback, error) {
	addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, newAuthError(KindPortInUse, "listener", fmt.Errorf("cannot listen on %s: %w", addr, err))
	}

	p := &PendingCallback{
		expectedState: expectedState,
		path:          l.path,
		port:          listener.Addr().(*net.TCPAddr).Port,
		listener:      listener,
		resultCh:      make(chan callbackOutcome, 1),
		errorCh:       make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(l.path, p.handleCallback)

	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := p.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case p.errorCh <- err:
			default:
			}
		}
	}()

	logging.Debug("CallbackListener", "Listening for authorization callback on %s", addr)
	return p, nil
}

// RedirectURI returns the redirect URI for the bound port.
func (p *PendingCallback) RedirectURI() string {
	return redirectURI(p.port, p.path)
}

// Port returns the bound port.
func (p *PendingCallback) Port() int {
	return p.port
}

// Await blocks until the callback arrives, timeout elapses or ctx is
// cancelled. The listener is stopped before Await returns in every case.
func (p *PendingCallback) Await(ctx context.Context, timeout time.Duration) (*CallbackResult, error) {
	defer p.Stop()

	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-p.resultCh:
		return outcome.result, outcome.err
	case err := <-p.errorCh:
		return nil, newAuthError(KindCancelled, "listener", fmt.Errorf("callback server failed: %w", err))
	case <-timer.C:
		return nil, newAuthErrorf(KindTimedOut, "callback", "no authorization callback received within %s", timeout)
	case <-ctx.Done():
		return nil, newAuthError(KindCancelled, "callback", ctx.Err())
	}
}

// Stop shuts the server down and releases the port. It is safe to call
// more than once.
func (p *PendingCallback) Stop() {
	p.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = p.server.Shutdown(ctx)
		_ = p.listener.Close()
		logging.Debug("CallbackListener", "Released callback port %d", p.port)
	})
}

func (p *PendingCallback) handleCallback(w http.ResponseWriter, r *http.Request) {
	// A path configured with a trailing slash matches a subtree in the mux.
	if r.URL.Path != p.path {
		http.NotFound(w, r)
		return
	}

	handled := false
	p.handleOnce.Do(func() {
		handled = true
		p.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (p *PendingCallback) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	providerErr := query.Get("error")
	description := query.Get("error_description")

	var outcome callbackOutcome
	switch {
	case state != p.expectedState:
		logging.Warn("CallbackListener", "OAuth state mismatch detected - possible CSRF attack (received length=%d)", len(state))
		outcome.err = newAuthErrorf(KindInvalidState, "callback", "state parameter does not match the login request")
		providerErr, description = "invalid_state", "The sign in response did not match this login attempt."
	case providerErr != "":
		outcome.err = newAuthErrorf(KindUserDenied, "callback", "identity provider returned %s: %s", providerErr, description)
	case code == "":
		outcome.err = newAuthErrorf(KindInvalidState, "callback", "callback carried no authorization code")
		providerErr, description = "missing_code", "The sign in response carried no authorization code."
	default:
		outcome.result = &CallbackResult{Code: code, State: state}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var err error
	if outcome.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		err = errorTemplate.Execute(w, map[string]string{
			"Error":       providerErr,
			"Description": description,
		})
	} else {
		err = successTemplate.Execute(w, nil)
	}
	if err != nil {
		logging.Warn("CallbackListener", "Failed to render callback page: %v", err)
	}

	select {
	case p.resultCh <- outcome:
	default:
	}
}
