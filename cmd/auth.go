package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/internal/config"
	"github.com/barndoor/barndoor-cli/internal/oauth"
	pkgoauth "github.com/barndoor/barndoor-cli/pkg/oauth"

	"github.com/spf13/cobra"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication for barndoor",
		Long: `Manage the barndoor login used by every other command.

The auth command group provides subcommands to log in, log out, check
status and refresh the cached token.

Examples:
  barndoor auth login                  # Sign in through your browser
  barndoor auth login --no-browser     # Print the login URL instead of opening it
  barndoor auth status                 # Show authentication status
  barndoor auth status --watch         # Follow changes to the token cache
  barndoor auth refresh                # Force token refresh
  barndoor auth whoami                 # Show current identity
  barndoor auth logout                 # Remove the cached token`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(opts),
		newAuthLogoutCmd(opts),
		newAuthStatusCmd(opts),
		newAuthRefreshCmd(opts),
		newAuthWhoamiCmd(opts),
		newAuthSetSecretCmd(opts),
	)
	return cmd
}

func newAuthLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the cached authentication token",
		Long: `Remove the cached token. The next command that needs a login
starts a new browser sign-in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			if _, ok := s.manager.Current(); !ok {
				s.printf("%s\n", cli.FormatWarning("No cached token for the "+s.profile.Name+" environment"))
			}
			if err := s.manager.Logout(); err != nil {
				return s.translate(err)
			}
			s.printf("%s\n", cli.FormatSuccess("Logged out"))
			return nil
		},
	}
}

func newAuthRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force token refresh",
		Long: `Exchange the cached refresh token for a new access token, even
if the current one is still valid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			cred, err := s.manager.Refresh(cmd.Context())
			if err != nil {
				return s.translate(err)
			}
			s.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Token refreshed, valid until %s",
				cred.ExpiresAt.Local().Format(time.RFC1123))))
			return nil
		},
	}
}

// identity is the whoami output.
type identity struct {
	Environment  string    `json:"environment" yaml:"environment"`
	Subject      string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Email        string    `json:"email,omitempty" yaml:"email,omitempty"`
	Organization string    `json:"organization,omitempty" yaml:"organization,omitempty"`
	Issuer       string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt" yaml:"expiresAt"`
}

func newAuthWhoamiCmd(opts *rootOptions) *cobra.Command {
	var output cli.OutputFlags

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show current authenticated identity",
		Long: `Show the identity in the cached token. No network call is made
and an expired token is still shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.Format()
			if err != nil {
				return err
			}
			s, err := opts.newSession(cmd)
			if err != nil {
				return err
			}
			cred, ok := s.manager.Current()
			if !ok {
				return &cli.AuthRequiredError{Environment: s.profile.Name}
			}

			id := identityFromCredential(s.profile.Name, cred)
			return cli.WriteStructured(s.out, format, id, func(w io.Writer) error {
				tbl := cli.NewTable(w, true)
				tbl.AppendRow("Environment:", id.Environment)
				tbl.AppendRow("Subject:", id.Subject)
				if id.Email != "" {
					tbl.AppendRow("Email:", id.Email)
				}
				tbl.AppendRow("Organization:", id.Organization)
				tbl.AppendRow("Issuer:", id.Issuer)
				tbl.AppendRow("Expires:", formatExpiry(id.ExpiresAt, time.Now()))
				tbl.Render()
				return nil
			})
		},
	}
	cli.RegisterOutputFlags(cmd, &output, cli.OutputFormatTable)
	return cmd
}

func identityFromCredential(env string, cred *oauth.Credential) identity {
	id := identity{
		Environment:  env,
		Subject:      cred.Subject,
		Organization: cred.Organization,
		Issuer:       cred.Issuer,
		ExpiresAt:    cred.ExpiresAt,
	}
	// The ID token carries the profile claims; the access token may not.
	for _, token := range []string{cred.IDToken, cred.AccessToken} {
		if token == "" {
			continue
		}
		if claims, err := pkgoauth.ParseClaims(token); err == nil && claims.Email != "" {
			id.Email = claims.Email
			break
		}
	}
	return id
}

func newAuthSetSecretCmd(opts *rootOptions) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "set-secret",
		Short: "Store the client secret in the OS keyring",
		Long: `Read the client secret from standard input and store it in the OS
keyring under the configured client id. The secret is then used for
logins without appearing in config.yaml or the environment.

Examples:
  barndoor auth set-secret < secret.txt
  barndoor auth set-secret --delete`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireClientID(); err != nil {
				return err
			}

			if remove {
				if err := config.DeleteClientSecret(cfg.ClientID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess("Client secret removed from keyring"))
				return nil
			}

			if !opts.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "Enter client secret for %s: ", cfg.ClientID)
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			secret := strings.TrimSpace(line)
			if secret == "" {
				if err != nil {
					return fmt.Errorf("failed to read client secret: %w", err)
				}
				return errors.New("client secret must not be empty")
			}

			if err := config.StoreClientSecret(cfg.ClientID, secret); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess("Client secret stored in keyring"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the stored client secret")
	return cmd
}

// formatExpiry renders an expiry relative to now.
func formatExpiry(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "unknown"
	}
	d := expiresAt.Sub(now).Round(time.Second)
	if d <= 0 {
		return fmt.Sprintf("%s (expired %s ago)", expiresAt.Local().Format(time.RFC1123), -d)
	}
	return fmt.Sprintf("%s (in %s)", expiresAt.Local().Format(time.RFC1123), d)
}
