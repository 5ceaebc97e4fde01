package config

import (
	"path/filepath"
	"time"

	"github.com/barndoor/barndoor-cli/internal/environment"
)

// Config is the top-level configuration for the barndoor CLI.
type Config struct {
	// Environment selects the deployment profile (prod, dev, local).
	Environment string `yaml:"environment,omitempty"`

	// AuthDomain is the identity provider host. Empty means the profile default.
	AuthDomain string `yaml:"authDomain,omitempty"`
	// ClientID identifies this client at the identity provider.
	ClientID string `yaml:"clientId,omitempty"`
	// ClientSecret is optional for public clients. Prefer the OS keyring
	// (barndoor auth set-secret) over storing it here.
	ClientSecret string `yaml:"clientSecret,omitempty"`
	// Audience is the API audience requested on login. Empty means the
	// profile default.
	Audience string `yaml:"audience,omitempty"`

	// APIOrigin and ProxyOrigin override the profile's origins.
	APIOrigin   string `yaml:"apiOrigin,omitempty"`
	ProxyOrigin string `yaml:"proxyOrigin,omitempty"`

	// TokenPath is where the credential is cached. Empty means
	// token.json in the config directory.
	TokenPath string `yaml:"tokenPath,omitempty"`

	CallbackPort    int           `yaml:"callbackPort,omitempty"`
	CallbackTimeout time.Duration `yaml:"callbackTimeout,omitempty"`
	HTTPTimeout     time.Duration `yaml:"httpTimeout,omitempty"`

	// LoginLock serializes interactive logins across processes.
	LoginLock bool `yaml:"loginLock,omitempty"`

	// configDir is the directory the config was loaded from.
	configDir string
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ResolvedTokenPath returns the credential cache location.
func (c *Config) ResolvedTokenPath() string {
	if c.TokenPath != "" {
		return c.TokenPath
	}
	return filepath.Join(c.configDir, tokenFileName)
}

// LoginLockPath returns the lock file used when LoginLock is set.
func (c *Config) LoginLockPath() string {
	return c.ResolvedTokenPath() + ".lock"
}

// Profile resolves the environment profile with origin overrides applied.
func (c *Config) Profile() environment.Profile {
	return environment.Resolve(c.Environment, environment.Overrides{
		APIOrigin:   c.APIOrigin,
		ProxyOrigin: c.ProxyOrigin,
	})
}

// EffectiveAuthDomain returns AuthDomain or the profile default.
func (c *Config) EffectiveAuthDomain() string {
	if c.AuthDomain != "" {
		return c.AuthDomain
	}
	return c.Profile().AuthDomain
}

// EffectiveAudience returns Audience or the profile default.
func (c *Config) EffectiveAudience() string {
	if c.Audience != "" {
		return c.Audience
	}
	return c.Profile().Audience
}
