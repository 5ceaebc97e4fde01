package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/barndoor/barndoor-cli/pkg/logging"
)

// DefaultConnectTimeout is how long EnsureServerConnected waits for the
// user to finish a server's OAuth flow.
const DefaultConnectTimeout = 60 * time.Second

// The registry hands out auth URLs that redirect to the web app callback.
// The CLI needs them to land on the API callback instead.
const (
	webAppCallbackURL = "http://localhost:3000/callback"
	apiCallbackURL    = "http://localhost:8003/callback"
)

// FindServer returns the server whose slug equals identifier, or whose
// provider matches it case-insensitively.
func (c *Client) FindServer(ctx context.Context, identifier string) (*ServerSummary, error) {
	servers, err := c.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	return findServer(servers, identifier)
}

func findServer(servers []ServerSummary, identifier string) (*ServerSummary, error) {
	for i := range servers {
		s := servers[i]
		if s.Slug == identifier || (s.Provider != "" && strings.EqualFold(s.Provider, identifier)) {
			return &s, nil
		}
	}
	// A slug that only differs by case is still a match, checked last so an
	// exact slug always wins.
	for i := range servers {
		if strings.EqualFold(servers[i].Slug, identifier) {
			s := servers[i]
			return &s, nil
		}
	}
	return nil, &ServerNotFoundError{Identifier: identifier}
}

// EnsureServerConnected makes sure the user has connected the server named
// by identifier. If it is not yet connected, a connection is initiated,
// the auth URL is handed to open and the status is polled until it reports
// connected or timeout elapses.
func (c *Client) EnsureServerConnected(ctx context.Context, identifier string, open func(string) error, timeout time.Duration) (*ServerSummary, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	server, err := c.FindServer(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if server.IsConnected() {
		logging.Debug("Registry", "Server %s is already connected", server.Slug)
		return server, nil
	}

	init, err := c.InitiateConnection(ctx, server.ID, "")
	if err != nil {
		return nil, err
	}
	if init.AuthURL == "" {
		return nil, errors.New("registry did not return an auth_url")
	}

	authURL := rewriteRedirectURI(init.AuthURL)
	logging.Info("Registry", "Opening browser to connect server %s", server.Slug)
	if open != nil {
		if err := open(authURL); err != nil {
			logging.Warn("Registry", "Could not open browser: %v", err)
		}
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		status, err := c.ConnectionStatus(pollCtx, server.ID)
		if err != nil {
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("server %s: %w after %s", server.Slug, ErrConnectionTimeout, timeout)
			}
			return nil, err
		}
		if status == StatusConnected {
			server.ConnectionStatus = status
			logging.Info("Registry", "Server %s connected", server.Slug)
			return server, nil
		}

		if err := c.sleep(pollCtx, c.pollInterval); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("server %s: %w after %s", server.Slug, ErrConnectionTimeout, timeout)
		}
	}
}

// rewriteRedirectURI swaps the web app callback for the API callback in an
// auth URL's redirect_uri parameter. Other URLs are returned unchanged.
func rewriteRedirectURI(authURL string) string {
	u, err := url.Parse(authURL)
	if err != nil {
		return authURL
	}
	query := u.Query()
	if query.Get("redirect_uri") != webAppCallbackURL {
		return authURL
	}
	query.Set("redirect_uri", apiCallbackURL)
	u.RawQuery = query.Encode()
	return u.String()
}
