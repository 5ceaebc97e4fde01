package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/barndoor/barndoor-cli/pkg/logging"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds each registry request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept in HTTPError.
const maxErrorBody = 4096

// Client talks to the registry API on behalf of a logged-in user.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	sleep        func(context.Context, time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	base         *http.Client
	timeout      time.Duration
	pollInterval time.Duration
}

// WithHTTPClient sets the client whose transport carries registry requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.base = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithPollInterval sets how often EnsureServerConnected checks the
// connection status. The default is one second.
func WithPollInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// NewClient creates a registry client for baseURL that authenticates with
// accessToken.
func NewClient(baseURL, accessToken string, opts ...ClientOption) *Client {
	o := clientOptions{
		timeout:      DefaultTimeout,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	if o.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.base)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = o.timeout

	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   httpClient,
		pollInterval: o.pollInterval,
		sleep:        sleepContext,
	}
}

// BaseURL returns the registry origin the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListServers returns every server available to the caller's organization.
func (c *Client) ListServers(ctx context.Context) ([]ServerSummary, error) {
	var servers []ServerSummary
	if err := c.do(ctx, http.MethodGet, "/servers", nil, nil, &servers); err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	return servers, nil
}

// GetServer returns the full record for the server with the given id.
func (c *Client) GetServer(ctx context.Context, id string) (*ServerDetail, error) {
	var detail ServerDetail
	if err := c.do(ctx, http.MethodGet, "/servers/"+url.PathEscape(id), nil, nil, &detail); err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", id, err)
	}
	return &detail, nil
}

// InitiateConnection starts the OAuth connection flow for a server. When
// returnURL is empty the registry's default is used.
func (c *Client) InitiateConnection(ctx context.Context, id, returnURL string) (*ConnectionInit, error) {
	var query url.Values
	if returnURL != "" {
		query = url.Values{"return_url": {returnURL}}
	}

	var init ConnectionInit
	err := c.do(ctx, http.MethodPost, "/servers/"+url.PathEscape(id)+"/connect", query, struct{}{}, &init)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) &&
			httpErr.StatusCode == http.StatusInternalServerError &&
			strings.Contains(httpErr.Body, missingOAuthConfigMarker) {
			return nil, fmt.Errorf("%w: %w", ErrServerMissingOAuthConfig, err)
		}
		return nil, fmt.Errorf("failed to initiate connection for server %s: %w", id, err)
	}
	return &init, nil
}

// ConnectionStatus returns the caller's connection status for a server:
// StatusAvailable, StatusPending or StatusConnected.
func (c *Client) ConnectionStatus(ctx context.Context, id string) (string, error) {
	var resp connectionStatusResponse
	if err := c.do(ctx, http.MethodGet, "/servers/"+url.PathEscape(id)+"/connection", nil, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to get connection status for server %s: %w", id, err)
	}
	return resp.Status, nil
}

// ValidateToken asks the registry whether the access token is still
// accepted. A 401 or 403 is reported as invalid rather than as an error.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	var resp tokenValidationResponse
	err := c.do(ctx, http.MethodGet, "/identity/token", nil, nil, &resp)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.IsUnauthorized() {
			return false, nil
		}
		return false, fmt.Errorf("failed to validate token: %w", err)
	}
	return resp.Valid, nil
}

// do sends a request and decodes a JSON response into out. Non-2xx
// responses are returned unwrapped as *HTTPError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logging.Debug("Registry", "%s %s", method, endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Debug("Registry", "%s %s returned %d", method, endpoint, resp.StatusCode)
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
