package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/internal/config"
	"github.com/barndoor/barndoor-cli/internal/environment"
	"github.com/barndoor/barndoor-cli/internal/oauth"
	"github.com/barndoor/barndoor-cli/internal/registry"
	"github.com/barndoor/barndoor-cli/pkg/logging"

	"github.com/spf13/cobra"
)

// session bundles what a command needs to act for the user: the merged
// configuration, the resolved profile and a token manager over the cache.
type session struct {
	cfg     config.Config
	profile environment.Profile
	store   *oauth.FileStore
	manager *oauth.Manager
	out     io.Writer
	errOut  io.Writer
	quiet   bool
}

// loadConfig merges config.yaml, .env files, the environment and flags.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(config.LoadOptions{
		ConfigPath:  o.configPath,
		Environment: o.env,
	})
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if o.apiOrigin != "" {
		cfg.APIOrigin = o.apiOrigin
	}
	if o.mcpOrigin != "" {
		cfg.ProxyOrigin = o.mcpOrigin
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newSession loads the configuration and wires the token manager. Extra
// authenticator options are applied to interactive logins.
func (o *rootOptions) newSession(cmd *cobra.Command, authOpts ...oauth.AuthenticatorOption) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := oauth.NewFileStore(cfg.ResolvedTokenPath())
	if err != nil {
		return nil, err
	}

	var managerOpts []oauth.ManagerOption
	if cfg.LoginLock {
		managerOpts = append(managerOpts, oauth.WithLoginLock(cfg.LoginLockPath(), 0))
	}

	s := &session{
		cfg:     cfg,
		profile: cfg.Profile(),
		store:   store,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		quiet:   o.quiet,
	}
	s.manager = oauth.NewManager(store, newAuthorizer(cfg, cmd.ErrOrStderr(), authOpts...), managerOpts...)

	logging.Debug("CLI", "Using environment %s, token cache %s", s.profile.Name, store.Path())
	return s, nil
}

// newAuthorizer builds the PKCE authenticator for cfg. Without a client id
// every login attempt fails with config.ErrClientIDRequired; commands that
// only read the cache still work.
func newAuthorizer(cfg config.Config, out io.Writer, opts ...oauth.AuthenticatorOption) oauth.Authorizer {
	if err := cfg.RequireClientID(); err != nil {
		return unconfiguredAuthorizer{err: err}
	}

	listener := oauth.NewCallbackListener(oauth.WithCallbackAddress(oauth.DefaultCallbackHost, cfg.CallbackPort))
	base := []oauth.AuthenticatorOption{
		oauth.WithListener(listener),
		oauth.WithHTTPClient(&http.Client{Timeout: cfg.EffectiveHTTPTimeout()}),
		oauth.WithOutput(out),
	}

	auth, err := oauth.NewAuthenticator(oauth.AuthenticatorConfig{
		AuthDomain:      cfg.EffectiveAuthDomain(),
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		Audience:        cfg.EffectiveAudience(),
		CallbackTimeout: cfg.EffectiveCallbackTimeout(),
	}, append(base, opts...)...)
	if err != nil {
		return unconfiguredAuthorizer{err: err}
	}
	return auth
}

type unconfiguredAuthorizer struct {
	err error
}

func (u unconfiguredAuthorizer) Run(context.Context) (*oauth.Credential, error) {
	return nil, u.err
}

func (u unconfiguredAuthorizer) Refresh(context.Context, *oauth.Credential) (*oauth.Credential, error) {
	return nil, u.err
}

// credential returns a usable credential, logging in if necessary.
func (s *session) credential(ctx context.Context) (*oauth.Credential, error) {
	cred, err := s.manager.EnsureValid(ctx)
	if err != nil {
		return nil, s.translate(err)
	}
	return cred, nil
}

// registryClient returns a registry client for the organization in cred.
func (s *session) registryClient(cred *oauth.Credential) (*registry.Client, error) {
	origin, err := s.profile.RenderAPIOrigin(cred.Organization)
	if err != nil {
		return nil, err
	}
	return registry.NewClient(origin, cred.AccessToken, registry.WithTimeout(s.cfg.EffectiveHTTPTimeout())), nil
}

func (s *session) translate(err error) error {
	return cli.TranslateError(err, s.profile.Name)
}

// printf writes progress output unless --quiet is set.
func (s *session) printf(format string, args ...interface{}) {
	if !s.quiet {
		fmt.Fprintf(s.errOut, format, args...)
	}
}
