package registry

import (
	"errors"
	"fmt"
	"net/http"

	bdstrings "github.com/barndoor/barndoor-cli/pkg/strings"
)

// ErrServerMissingOAuthConfig is returned when the registry has no OAuth
// client configured for a server, so no connection can be initiated.
var ErrServerMissingOAuthConfig = errors.New("server is missing OAuth configuration (client_id / client_secret); ask an admin to configure credentials before initiating a connection")

// ErrConnectionTimeout is returned when a server connection is not
// completed before the polling deadline.
var ErrConnectionTimeout = errors.New("OAuth connection was not completed in time")

// missingOAuthConfigMarker is the registry's error text for
// ErrServerMissingOAuthConfig.
const missingOAuthConfigMarker = "OAuth server configuration not found"

// HTTPError is returned for any non-2xx registry response.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("registry returned status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("registry returned status %d: %s", e.StatusCode, bdstrings.Truncate(e.Body, bdstrings.ErrorBodyMaxLen))
}

// IsUnauthorized reports whether the registry rejected the access token.
func (e *HTTPError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ServerNotFoundError is returned when no server matches an identifier.
type ServerNotFoundError struct {
	Identifier string
}

// Error implements the error interface.
func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("server %q not found", e.Identifier)
}

// IsServerNotFound reports whether err is a *ServerNotFoundError.
func IsServerNotFound(err error) bool {
	var nf *ServerNotFoundError
	return errors.As(err, &nf)
}
