package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/barndoor/barndoor-cli/internal/environment"
	"github.com/barndoor/barndoor-cli/pkg/logging"
)

// ErrClientIDRequired is returned when a login is attempted without a client id.
var ErrClientIDRequired = fmt.Errorf("client id is required: set %s or clientId in config.yaml", EnvClientID)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks values that would otherwise fail later in confusing
// ways. An unknown environment is only warned about since it falls back
// to prod.
func (c *Config) Validate() error {
	var problems []string

	if c.CallbackPort < 1 || c.CallbackPort > 65535 {
		problems = append(problems, fmt.Sprintf("callbackPort %d is out of range", c.CallbackPort))
	}
	if c.CallbackTimeout < 0 {
		problems = append(problems, "callbackTimeout must not be negative")
	}
	if c.HTTPTimeout < 0 {
		problems = append(problems, "httpTimeout must not be negative")
	}
	for name, origin := range map[string]string{"apiOrigin": c.APIOrigin, "proxyOrigin": c.ProxyOrigin} {
		if origin != "" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			problems = append(problems, fmt.Sprintf("%s %q must start with http:// or https://", name, origin))
		}
	}

	if c.Environment != "" {
		if _, ok := environment.Lookup(c.Environment); !ok {
			logging.Warn("Config", "Unknown environment %q, using %s", c.Environment, environment.Default)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// RequireClientID returns ErrClientIDRequired when no client id is set.
func (c *Config) RequireClientID() error {
	if c.ClientID == "" {
		return ErrClientIDRequired
	}
	return nil
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// EffectiveCallbackTimeout returns CallbackTimeout or its default.
func (c *Config) EffectiveCallbackTimeout() time.Duration {
	return durationOrDefault(c.CallbackTimeout, DefaultCallbackTimeout)
}

// EffectiveHTTPTimeout returns HTTPTimeout or its default.
func (c *Config) EffectiveHTTPTimeout() time.Duration {
	return durationOrDefault(c.HTTPTimeout, DefaultHTTPTimeout)
}
