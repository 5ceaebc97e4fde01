package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-access-token"

// fakeRegistry serves the registry endpoints from an in-memory server list.
type fakeRegistry struct {
	t      *testing.T
	server *httptest.Server

	mu              sync.Mutex
	servers         []ServerSummary
	statusCalls     int
	connectAfter    int
	connectBody     string
	connectStatus   int
	lastReturnURL   string
	tokenValid      bool
	tokenStatusCode int
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{
		t: t,
		servers: []ServerSummary{
			{ID: "id-sf", Name: "Salesforce", Slug: "salesforce", Provider: "Salesforce", ConnectionStatus: StatusAvailable},
			{ID: "id-notion", Name: "Notion", Slug: "notion", Provider: "notion", ConnectionStatus: StatusConnected},
		},
		tokenValid: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /servers", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.servers)
	}))
	mux.HandleFunc("GET /servers/{id}", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, s := range f.servers {
			if s.ID == r.PathValue("id") {
				writeJSON(w, ServerDetail{ServerSummary: s, URL: "https://mcp.example/" + s.Slug})
				return
			}
		}
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	}))
	mux.HandleFunc("POST /servers/{id}/connect", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastReturnURL = r.URL.Query().Get("return_url")
		if f.connectStatus != 0 {
			http.Error(w, f.connectBody, f.connectStatus)
			return
		}
		writeJSON(w, ConnectionInit{
			ConnectionID: "conn-1",
			AuthURL:      "https://provider.example/authorize?client_id=x&redirect_uri=" + url.QueryEscape(webAppCallbackURL),
			State:        "st",
		})
	}))
	mux.HandleFunc("GET /servers/{id}/connection", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statusCalls++
		status := StatusPending
		if f.connectAfter > 0 && f.statusCalls >= f.connectAfter {
			status = StatusConnected
		}
		writeJSON(w, connectionStatusResponse{Status: status})
	}))
	mux.HandleFunc("GET /identity/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.tokenStatusCode != 0 {
			w.WriteHeader(f.tokenStatusCode)
			return
		}
		writeJSON(w, tokenValidationResponse{Valid: f.tokenValid})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRegistry) set(fn func(f *fakeRegistry)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRegistry) snapshot() (statusCalls int, returnURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.lastReturnURL
}

func (f *fakeRegistry) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakeRegistry) client(opts ...ClientOption) *Client {
	opts = append([]ClientOption{WithPollInterval(time.Millisecond)}, opts...)
	return NewClient(f.server.URL+"/", testToken, opts...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ListServers(t *testing.T) {
	f := newFakeRegistry(t)

	servers, err := f.client().ListServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "salesforce", servers[0].Slug)
	assert.False(t, servers[0].IsConnected())
	assert.True(t, servers[1].IsConnected())
}

func TestClient_WrongTokenIsHTTPError(t *testing.T) {
	f := newFakeRegistry(t)

	_, err := NewClient(f.server.URL, "wrong").ListServers(context.Background())
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.True(t, httpErr.IsUnauthorized())
	assert.NotContains(t, err.Error(), "wrong")
}

func TestClient_GetServer(t *testing.T) {
	f := newFakeRegistry(t)
	c := f.client()

	detail, err := c.GetServer(context.Background(), "id-notion")
	require.NoError(t, err)
	assert.Equal(t, "notion", detail.Slug)
	assert.Equal(t, "https://mcp.example/notion", detail.URL)

	_, err = c.GetServer(context.Background(), "missing")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "not found")
}

func TestClient_InitiateConnection(t *testing.T) {
	f := newFakeRegistry(t)

	init, err := f.client().InitiateConnection(context.Background(), "id-sf", "http://localhost:9999/done")
	require.NoError(t, err)
	assert.Equal(t, "conn-1", init.ConnectionID)
	assert.NotEmpty(t, init.AuthURL)
	_, returnURL := f.snapshot()
	assert.Equal(t, "http://localhost:9999/done", returnURL)
}

func TestClient_InitiateConnection_MissingOAuthConfig(t *testing.T) {
	f := newFakeRegistry(t)
	f.set(func(f *fakeRegistry) {
		f.connectStatus = http.StatusInternalServerError
		f.connectBody = `{"detail":"OAuth server configuration not found for server"}`
	})

	_, err := f.client().InitiateConnection(context.Background(), "id-sf", "")
	assert.ErrorIs(t, err, ErrServerMissingOAuthConfig)

	f.set(func(f *fakeRegistry) { f.connectBody = "boom" })
	_, err = f.client().InitiateConnection(context.Background(), "id-sf", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServerMissingOAuthConfig)
}

func TestClient_ValidateToken(t *testing.T) {
	tests := []struct {
		name       string
		valid      bool
		statusCode int
		want       bool
		wantErr    bool
	}{
		{name: "valid", valid: true, want: true},
		{name: "reported invalid", valid: false, want: false},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, want: false},
		{name: "server error", statusCode: http.StatusBadGateway, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeRegistry(t)
			f.set(func(f *fakeRegistry) {
				f.tokenValid = tt.valid
				f.tokenStatusCode = tt.statusCode
			})

			got, err := f.client().ValidateToken(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindServer(t *testing.T) {
	servers := []ServerSummary{
		{ID: "1", Slug: "salesforce", Provider: "Salesforce"},
		{ID: "2", Slug: "gh", Provider: "GitHub"},
		{ID: "3", Slug: "Notion"},
	}

	tests := []struct {
		identifier string
		wantID     string
	}{
		{identifier: "salesforce", wantID: "1"},
		{identifier: "github", wantID: "2"},
		{identifier: "GITHUB", wantID: "2"},
		{identifier: "gh", wantID: "2"},
		{identifier: "notion", wantID: "3"},
	}
	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			s, err := findServer(servers, tt.identifier)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, s.ID)
		})
	}

	_, err := findServer(servers, "jira")
	assert.True(t, IsServerNotFound(err))
	assert.EqualError(t, err, `server "jira" not found`)
}

func TestRewriteRedirectURI(t *testing.T) {
	in := "https://provider.example/authorize?client_id=x&redirect_uri=" + url.QueryEscape(webAppCallbackURL)
	out, err := url.Parse(rewriteRedirectURI(in))
	require.NoError(t, err)
	assert.Equal(t, apiCallbackURL, out.Query().Get("redirect_uri"))
	assert.Equal(t, "x", out.Query().Get("client_id"))

	other := "https://provider.example/authorize?redirect_uri=https%3A%2F%2Fapp.example%2Fcb"
	assert.Equal(t, other, rewriteRedirectURI(other))
}

func TestEnsureServerConnected_AlreadyConnected(t *testing.T) {
	f := newFakeRegistry(t)
	opened := false

	s, err := f.client().EnsureServerConnected(context.Background(), "notion", func(string) error {
		opened = true
		return nil
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "id-notion", s.ID)
	assert.False(t, opened)
}

func TestEnsureServerConnected_PollsUntilConnected(t *testing.T) {
	f := newFakeRegistry(t)
	f.set(func(f *fakeRegistry) { f.connectAfter = 3 })

	var openedURL string
	s, err := f.client().EnsureServerConnected(context.Background(), "Salesforce", func(u string) error {
		openedURL = u
		return nil
	}, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, s.IsConnected())
	statusCalls, _ := f.snapshot()
	assert.Equal(t, 3, statusCalls)

	parsed, err := url.Parse(openedURL)
	require.NoError(t, err)
	assert.Equal(t, apiCallbackURL, parsed.Query().Get("redirect_uri"))
}

func TestEnsureServerConnected_Timeout(t *testing.T) {
	f := newFakeRegistry(t)

	_, err := f.client().EnsureServerConnected(context.Background(), "salesforce", nil, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrConnectionTimeout)
}

func TestEnsureServerConnected_UnknownServer(t *testing.T) {
	f := newFakeRegistry(t)

	_, err := f.client().EnsureServerConnected(context.Background(), "jira", nil, time.Second)
	assert.True(t, IsServerNotFound(err))
}

func TestHTTPError_TruncatesBody(t *testing.T) {
	err := &HTTPError{StatusCode: 502, Body: strings.Repeat("<p>bad gateway</p>\n", 50)}
	msg := err.Error()
	assert.Less(t, len(msg), 300)
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.NotContains(t, msg, "\n")

	assert.Equal(t, "registry returned status 404 (Not Found)", (&HTTPError{StatusCode: 404}).Error())
}
