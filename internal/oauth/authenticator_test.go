package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	pkgoauth "github.com/barndoor/barndoor-cli/pkg/oauth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthority is a minimal Auth0-style token endpoint.
type fakeAuthority struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	challenge     string
	tokenRequests int
	lastForm      url.Values
	failExchange  bool
	omitExpiresIn bool
	accessToken   string
}

func newFakeAuthority(t *testing.T) *fakeAuthority {
	t.Helper()
	a := &fakeAuthority{t: t}

	claims := jwt.MapClaims{
		"sub":  "auth0|user-1",
		"exp":  time.Now().Add(2 * time.Hour).Unix(),
		"user": map[string]interface{}{"organization_name": "acme"},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	a.accessToken = tok

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", a.handleToken)
	a.server = httptest.NewServer(mux)
	t.Cleanup(a.server.Close)
	return a
}

func (a *fakeAuthority) handleToken(w http.ResponseWriter, r *http.Request) {
	require.NoError(a.t, r.ParseForm())

	a.mu.Lock()
	a.tokenRequests++
	a.lastForm = r.PostForm
	challenge := a.challenge
	fail := a.failExchange
	omit := a.omitExpiresIn
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		verifier := r.PostForm.Get("code_verifier")
		if fail || r.PostForm.Get("code") != "good-code" || pkgoauth.S256Challenge(verifier) != challenge {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
			return
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Unknown or invalid refresh token."}`))
			return
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := map[string]interface{}{
		"access_token":  a.accessToken,
		"refresh_token": "refresh-1",
		"token_type":    "Bearer",
		"id_token":      "id-token-value",
	}
	if !omit {
		resp["expires_in"] = 3600
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// browserThatCallsBack simulates the user approving the login in a browser.
func (a *fakeAuthority) browserThatCallsBack(code string, overrideState string) BrowserOpener {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(a.t, err)
		q := u.Query()

		a.mu.Lock()
		a.challenge = q.Get("code_challenge")
		a.mu.Unlock()

		state := q.Get("state")
		if overrideState != "" {
			state = overrideState
		}
		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?code=" + url.QueryEscape(code) + "&state=" + url.QueryEscape(state))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func newTestAuthenticator(t *testing.T, a *fakeAuthority, opener BrowserOpener, opts ...AuthenticatorOption) *Authenticator {
	t.Helper()
	base := []AuthenticatorOption{
		WithListener(NewCallbackListener(WithCallbackAddress("127.0.0.1", 0))),
		WithBrowserOpener(opener),
		WithOutput(&bytes.Buffer{}),
	}
	auth, err := NewAuthenticator(AuthenticatorConfig{
		AuthDomain:      a.server.URL,
		ClientID:        "client-123",
		ClientSecret:    "secret-456",
		Audience:        "https://barndoor.ai/",
		CallbackTimeout: 5 * time.Second,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return auth
}

func TestNewAuthenticator_Validation(t *testing.T) {
	_, err := NewAuthenticator(AuthenticatorConfig{AuthDomain: "auth.barndoor.ai"})
	assert.Error(t, err)

	_, err = NewAuthenticator(AuthenticatorConfig{ClientID: "c"})
	assert.Error(t, err)
}

func TestAuthorityBaseURL(t *testing.T) {
	tests := map[string]string{
		"auth.barndoor.ai":       "https://auth.barndoor.ai",
		"localhost:3001":         "http://localhost:3001",
		"127.0.0.1:3001/":        "http://127.0.0.1:3001",
		"http://idp.internal:80": "http://idp.internal:80",
	}
	for in, want := range tests {
		assert.Equal(t, want, authorityBaseURL(in), in)
	}
}

func TestAuthenticator_Run_Success(t *testing.T) {
	authority := newFakeAuthority(t)

	var mu sync.Mutex
	var states []FlowState
	observer := func(s FlowState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	var authURL string
	opener := authority.browserThatCallsBack("good-code", "")
	recording := func(u string) error {
		authURL = u
		return opener(u)
	}

	auth := newTestAuthenticator(t, authority, recording, WithStateObserver(observer))
	cred, err := auth.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, authority.accessToken, cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.Equal(t, "id-token-value", cred.IDToken)
	assert.Equal(t, "acme", cred.Organization)
	assert.Equal(t, "auth0|user-1", cred.Subject)
	assert.Equal(t, authority.server.URL+"/", cred.Issuer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cred.ExpiresAt, time.Minute)
	assert.Equal(t, StateDone, auth.State())

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "https://barndoor.ai/", q.Get("audience"))
	assert.Contains(t, q.Get("scope"), "offline_access")
	assert.NotEmpty(t, q.Get("state"))

	authority.mu.Lock()
	form := authority.lastForm
	authority.mu.Unlock()
	assert.Equal(t, "client-123", form.Get("client_id"))
	assert.Equal(t, "secret-456", form.Get("client_secret"))
	assert.Equal(t, q.Get("redirect_uri"), form.Get("redirect_uri"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []FlowState{
		StateIdle, StateListenerStarted, StateBrowserLaunched, StateAwaitingCallback,
		StateCodeReceived, StateExchanging, StateDone,
	}, states)
}

func TestAuthenticator_Run_ExpiryFromJWTWhenExpiresInMissing(t *testing.T) {
	authority := newFakeAuthority(t)
	authority.omitExpiresIn = true

	auth := newTestAuthenticator(t, authority, authority.browserThatCallsBack("good-code", ""))
	cred, err := auth.Run(context.Background())
	require.NoError(t, err)

	// the fake access token carries exp = now + 2h
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), cred.ExpiresAt, time.Minute)
}

func TestAuthenticator_Run_StateMismatchSkipsExchange(t *testing.T) {
	authority := newFakeAuthority(t)

	auth := newTestAuthenticator(t, authority, authority.browserThatCallsBack("good-code", "forged-state"))
	cred, err := auth.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, cred)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateInvalidState, auth.State())

	authority.mu.Lock()
	defer authority.mu.Unlock()
	assert.Equal(t, 0, authority.tokenRequests)
}

func TestAuthenticator_Run_ExchangeFailure(t *testing.T) {
	authority := newFakeAuthority(t)

	auth := newTestAuthenticator(t, authority, authority.browserThatCallsBack("bad-code", ""))
	_, err := auth.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExchangeFailed)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Equal(t, StateFailed, auth.State())
}

func TestAuthenticator_Run_Timeout(t *testing.T) {
	authority := newFakeAuthority(t)
	out := &bytes.Buffer{}

	auth, err := NewAuthenticator(AuthenticatorConfig{
		AuthDomain:      authority.server.URL,
		ClientID:        "client-123",
		CallbackTimeout: 100 * time.Millisecond,
	},
		WithListener(NewCallbackListener(WithCallbackAddress("127.0.0.1", 0))),
		WithBrowserOpener(NoBrowser),
		WithOutput(out),
	)
	require.NoError(t, err)

	_, err = auth.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, StateTimedOut, auth.State())
	assert.Contains(t, out.String(), "/authorize?")
}

func TestAuthenticator_Refresh(t *testing.T) {
	authority := newFakeAuthority(t)
	auth := newTestAuthenticator(t, authority, NoBrowser)

	t.Run("success keeps issuer and organization", func(t *testing.T) {
		old := &Credential{
			AccessToken:  "old",
			RefreshToken: "refresh-1",
			Issuer:       "https://issuer.example/",
			ExpiresAt:    time.Now().Add(-time.Minute),
		}
		cred, err := auth.Refresh(context.Background(), old)
		require.NoError(t, err)
		assert.Equal(t, authority.accessToken, cred.AccessToken)
		assert.Equal(t, "https://issuer.example/", cred.Issuer)
		assert.Equal(t, "acme", cred.Organization)
		assert.True(t, cred.ExpiresAt.After(time.Now()))
	})

	t.Run("rejected refresh token", func(t *testing.T) {
		old := &Credential{AccessToken: "old", RefreshToken: "revoked", ExpiresAt: time.Now().Add(-time.Minute)}
		_, err := auth.Refresh(context.Background(), old)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("no refresh token", func(t *testing.T) {
		_, err := auth.Refresh(context.Background(), &Credential{AccessToken: "old"})
		assert.ErrorIs(t, err, ErrRefreshFailed)
	})
}

func TestFlowState_String(t *testing.T) {
	assert.Equal(t, "AwaitingCallback", StateAwaitingCallback.String())
	assert.Equal(t, "Unknown", FlowState(99).String())
	assert.True(t, StateTimedOut.IsTerminal())
	assert.False(t, StateExchanging.IsTerminal())
}
