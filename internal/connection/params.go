package connection

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/barndoor/barndoor-cli/internal/environment"
	"github.com/barndoor/barndoor-cli/internal/oauth"
	"github.com/barndoor/barndoor-cli/pkg/logging"

	"github.com/google/uuid"
)

const (
	// TransportStreamableHTTP is the only transport the proxy speaks.
	TransportStreamableHTTP = "streamable-http"

	// HeaderAuthorization carries the bearer token.
	HeaderAuthorization = "Authorization"
	// HeaderSessionID correlates requests of one client session.
	HeaderSessionID = "X-Barndoor-Session-Id"
)

var (
	// ErrInvalidServerSlug is returned for empty slugs and slugs that would
	// change the URL path.
	ErrInvalidServerSlug = errors.New("invalid server slug")
	// ErrMissingCredential is returned when no access token is available.
	ErrMissingCredential = errors.New("credential has no access token")
	// ErrMissingSessionID is returned when no session id is supplied.
	ErrMissingSessionID = errors.New("session id is required")
)

// Parameters is everything an MCP client needs to reach one server
// through the proxy.
type Parameters struct {
	URL       string            `json:"url" yaml:"url"`
	Headers   map[string]string `json:"headers" yaml:"headers"`
	Transport string            `json:"transport,omitempty" yaml:"transport,omitempty"`
}

// String implements fmt.Stringer with the bearer token masked, so
// Parameters can be logged.
func (p *Parameters) String() string {
	if p == nil {
		return "<nil parameters>"
	}
	keys := make([]string, 0, len(p.Headers))
	for k := range p.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := p.Headers[k]
		if strings.EqualFold(k, HeaderAuthorization) {
			v = "Bearer " + logging.Redact(strings.TrimPrefix(v, "Bearer "))
		}
		parts = append(parts, k+"="+v)
	}
	return fmt.Sprintf("Parameters{url=%s transport=%s headers=[%s]}", p.URL, p.Transport, strings.Join(parts, " "))
}

// Redacted returns a copy whose Authorization header is masked, for display.
func (p *Parameters) Redacted() *Parameters {
	out := &Parameters{URL: p.URL, Transport: p.Transport, Headers: make(map[string]string, len(p.Headers))}
	for k, v := range p.Headers {
		if strings.EqualFold(k, HeaderAuthorization) {
			v = "Bearer " + logging.Redact(strings.TrimPrefix(v, "Bearer "))
		}
		out.Headers[k] = v
	}
	return out
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidateSlug checks that slug can be used as a single URL path segment.
func ValidateSlug(slug string) error {
	if strings.TrimSpace(slug) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidServerSlug)
	}
	if slug == "." || slug == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidServerSlug, slug)
	}
	if strings.ContainsAny(slug, "/\\?#% \t\r\n") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidServerSlug, slug)
	}
	return nil
}

// Build derives the proxy connection parameters for the server identified
// by slug. It performs no I/O and never logs the token.
func Build(cred *oauth.Credential, slug string, profile environment.Profile, sessionID string) (*Parameters, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, ErrMissingCredential
	}
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	origin, err := profile.RenderProxyOrigin(cred.Organization)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve proxy origin for %s: %w", profile.Name, err)
	}

	return &Parameters{
		URL: origin + "/mcp/" + slug,
		Headers: map[string]string{
			HeaderAuthorization: "Bearer " + cred.AccessToken,
			HeaderSessionID:     sessionID,
		},
		Transport: TransportStreamableHTTP,
	}, nil
}
