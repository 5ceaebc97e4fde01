package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/barndoor/barndoor-cli/pkg/logging"
	pkgoauth "github.com/barndoor/barndoor-cli/pkg/oauth"

	"golang.org/x/oauth2"
)

// DefaultScopes are requested on every login. offline_access asks the
// authority for a refresh token.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// FlowState is the state of one interactive login.
type FlowState int

const (
	StateIdle FlowState = iota
	StateListenerStarted
	StateBrowserLaunched
	StateAwaitingCallback
	StateCodeReceived
	StateExchanging
	StateDone
	StateTimedOut
	StateUserDenied
	StateInvalidState
	StateFailed
)

// String returns a human-readable representation of the flow state.
func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListenerStarted:
		return "ListenerStarted"
	case StateBrowserLaunched:
		return "BrowserLaunched"
	case StateAwaitingCallback:
		return "AwaitingCallback"
	case StateCodeReceived:
		return "CodeReceived"
	case StateExchanging:
		return "Exchanging"
	case StateDone:
		return "Done"
	case StateTimedOut:
		return "TimedOut"
	case StateUserDenied:
		return "UserDenied"
	case StateInvalidState:
		return "InvalidState"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transition follows s.
func (s FlowState) IsTerminal() bool {
	switch s {
	case StateDone, StateTimedOut, StateUserDenied, StateInvalidState, StateFailed:
		return true
	}
	return false
}

// AuthenticatorConfig identifies the client and the authority.
type AuthenticatorConfig struct {
	// AuthDomain is the authority host, e.g. "auth.barndoor.ai". A value
	// with a scheme is used as is.
	AuthDomain   string
	ClientID     string
	ClientSecret string
	Audience     string
	Scopes       []string

	// CallbackTimeout bounds the wait for the browser. Zero means
	// DefaultCallbackTimeout.
	CallbackTimeout time.Duration
}

// Authenticator runs the authorization code flow with PKCE and refreshes
// credentials it produced.
type Authenticator struct {
	cfg         AuthenticatorConfig
	listener    *CallbackListener
	openBrowser BrowserOpener
	httpClient  *http.Client
	out         io.Writer
	observer    func(FlowState)
	now         func() time.Time

	mu    sync.Mutex
	state FlowState
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithListener replaces the default callback listener.
func WithListener(l *CallbackListener) AuthenticatorOption {
	return func(a *Authenticator) { a.listener = l }
}

// WithBrowserOpener replaces the function used to open the login URL.
func WithBrowserOpener(open BrowserOpener) AuthenticatorOption {
	return func(a *Authenticator) { a.openBrowser = open }
}

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) AuthenticatorOption {
	return func(a *Authenticator) { a.httpClient = c }
}

// WithOutput sets where the manual login URL is printed. Defaults to stderr.
func WithOutput(w io.Writer) AuthenticatorOption {
	return func(a *Authenticator) { a.out = w }
}

// WithStateObserver registers a callback invoked on every flow transition.
// It is called synchronously and must not block.
func WithStateObserver(fn func(FlowState)) AuthenticatorOption {
	return func(a *Authenticator) { a.observer = fn }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = now }
}

// NewAuthenticator creates an Authenticator. ClientID and AuthDomain are
// required.
func NewAuthenticator(cfg AuthenticatorConfig, opts ...AuthenticatorOption) (*Authenticator, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if cfg.AuthDomain == "" {
		return nil, errors.New("auth domain is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = DefaultCallbackTimeout
	}

	a := &Authenticator{
		cfg:         cfg,
		listener:    NewCallbackListener(),
		openBrowser: OpenBrowser,
		out:         os.Stderr,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// State returns the current flow state.
func (a *Authenticator) State() FlowState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Authenticator) setState(s FlowState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()

	logging.Debug("Authenticator", "Login flow state: %s", s)
	if a.observer != nil {
		a.observer(s)
	}
}

// Issuer returns the issuer identifier recorded on credentials.
func (a *Authenticator) Issuer() string {
	return authorityBaseURL(a.cfg.AuthDomain) + "/"
}

// authorityBaseURL turns an auth domain into a base URL. Local authorities
// are reached over plain http.
func authorityBaseURL(domain string) string {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	if strings.HasPrefix(domain, "localhost") || strings.HasPrefix(domain, "127.0.0.1") {
		return "http://" + domain
	}
	return "https://" + domain
}

func (a *Authenticator) oauthConfig(redirectURI string) *oauth2.Config {
	base := authorityBaseURL(a.cfg.AuthDomain)
	return &oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/authorize",
			TokenURL:  base + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      a.cfg.Scopes,
	}
}

func (a *Authenticator) httpContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// Run performs one interactive login and returns the new credential.
// It blocks until the callback arrives, the callback timeout elapses or
// ctx is cancelled. The callback port is released before Run returns.
func (a *Authenticator) Run(ctx context.Context) (*Credential, error) {
	a.setState(StateIdle)

	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		a.setState(StateFailed)
		return nil, fmt.Errorf("failed to generate PKCE: %w", err)
	}
	state, err := pkgoauth.GenerateState()
	if err != nil {
		a.setState(StateFailed)
		return nil, err
	}

	pending, err := a.listener.Start(state)
	if err != nil {
		a.setState(StateFailed)
		a.auditLogin("failure", err)
		return nil, err
	}
	defer pending.Stop()
	a.setState(StateListenerStarted)

	cfg := a.oauthConfig(pending.RedirectURI())
	authURL := cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(pkce.CodeVerifier),
		oauth2.SetAuthURLParam("audience", a.cfg.Audience),
	)

	if err := a.openBrowser(authURL); err != nil {
		if !errors.Is(err, errBrowserDisabled) {
			logging.Warn("Authenticator", "Failed to open browser: %v", err)
		}
		fmt.Fprintf(a.out, "Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	}
	a.setState(StateBrowserLaunched)

	a.setState(StateAwaitingCallback)
	result, err := pending.Await(ctx, a.cfg.CallbackTimeout)
	if err != nil {
		a.setState(stateForError(err))
		a.auditLogin("failure", err)
		return nil, err
	}
	a.setState(StateCodeReceived)

	a.setState(StateExchanging)
	tok, err := cfg.Exchange(a.httpContext(ctx), result.Code, oauth2.VerifierOption(pkce.CodeVerifier))
	if err != nil {
		a.setState(StateFailed)
		authErr := newAuthError(KindExchangeFailed, "exchange", describeTokenError(err))
		a.auditLogin("failure", authErr)
		return nil, authErr
	}

	cred := credentialFromToken(tok, a.Issuer(), a.now(), nil)
	a.setState(StateDone)
	a.auditLogin("success", nil)
	return cred, nil
}

// Refresh exchanges the credential's refresh token for a new credential.
func (a *Authenticator) Refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if !cred.HasRefreshToken() {
		return nil, newAuthErrorf(KindRefreshFailed, "refresh", "credential has no refresh token")
	}

	// Force the token source to refresh regardless of its own expiry delta.
	tok := cred.oauth2Token()
	tok.Expiry = a.now().Add(-time.Minute)

	cfg := a.oauthConfig("")
	fresh, err := cfg.TokenSource(a.httpContext(ctx), tok).Token()
	if err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "token_refreshed",
			Outcome: "failure",
			Issuer:  cred.Issuer,
			Error:   err.Error(),
		})
		return nil, newAuthError(KindRefreshFailed, "refresh", describeTokenError(err))
	}

	refreshed := credentialFromToken(fresh, cred.Issuer, a.now(), cred)
	if refreshed.Issuer == "" {
		refreshed.Issuer = a.Issuer()
	}
	logging.Audit(logging.AuditEvent{
		Action:          "token_refreshed",
		Outcome:         "success",
		Issuer:          refreshed.Issuer,
		Expiry:          refreshed.ExpiresAt,
		HasRefreshToken: refreshed.HasRefreshToken(),
	})
	return refreshed, nil
}

func (a *Authenticator) auditLogin(outcome string, err error) {
	event := logging.AuditEvent{
		Action:  "login",
		Outcome: outcome,
		Issuer:  a.Issuer(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	logging.Audit(event)
}

func stateForError(err error) FlowState {
	switch KindOf(err) {
	case KindTimedOut:
		return StateTimedOut
	case KindUserDenied:
		return StateUserDenied
	case KindInvalidState:
		return StateInvalidState
	default:
		return StateFailed
	}
}

// describeTokenError keeps the authority's error code and description
// but drops the raw response body.
func describeTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			msg := re.ErrorCode
			if re.ErrorDescription != "" {
				msg += ": " + re.ErrorDescription
			}
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return fmt.Errorf("token endpoint returned %d (%s)", status, msg)
		}
		if re.Response != nil {
			return fmt.Errorf("token endpoint returned %s", re.Response.Status)
		}
	}
	return err
}
