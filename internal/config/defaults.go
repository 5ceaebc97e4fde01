package config

import (
	"time"

	"github.com/barndoor/barndoor-cli/internal/environment"
)

const (
	// DefaultCallbackPort must match the redirect URI registered with the
	// identity provider.
	DefaultCallbackPort = 52765

	// DefaultCallbackTimeout is how long a login waits for the browser.
	DefaultCallbackTimeout = 2 * time.Minute

	// DefaultHTTPTimeout bounds every API and token endpoint call.
	DefaultHTTPTimeout = 30 * time.Second
)

// GetDefaultConfig returns the built-in defaults.
func GetDefaultConfig() Config {
	return Config{
		Environment:     environment.Default,
		CallbackPort:    DefaultCallbackPort,
		CallbackTimeout: DefaultCallbackTimeout,
		HTTPTimeout:     DefaultHTTPTimeout,
	}
}
