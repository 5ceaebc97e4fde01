package cmd

import (
	"fmt"
	"time"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/internal/oauth"

	"github.com/spf13/cobra"
)

type loginOptions struct {
	force     bool
	noBrowser bool
}

func newAuthLoginCmd(opts *rootOptions) *cobra.Command {
	var lo loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to barndoor",
		Long: `Sign in to barndoor through your browser.

A local listener on 127.0.0.1 receives the authorization code, which is
exchanged for tokens using PKCE. The tokens are cached in
~/.barndoor/token.json and reused until they expire.

If a valid token is already cached, nothing happens unless --force is
given.

Examples:
  barndoor auth login                  # Sign in, reusing a valid cached token
  barndoor auth login --force          # Always start a new sign-in
  barndoor auth login --no-browser     # Print the URL instead of opening a browser
  barndoor auth login --env dev        # Sign in to the dev environment`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd, opts, lo)
		},
	}

	cmd.Flags().BoolVar(&lo.force, "force", false, "Start a new sign-in even if a valid token is cached")
	cmd.Flags().BoolVar(&lo.noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	return cmd
}

func runAuthLogin(cmd *cobra.Command, opts *rootOptions, lo loginOptions) error {
	progress := cli.NewProgress(cmd.ErrOrStderr(), opts.quiet)
	defer progress.Stop()

	authOpts := []oauth.AuthenticatorOption{oauth.WithStateObserver(progress.LoginObserver())}
	if lo.noBrowser {
		authOpts = append(authOpts, oauth.WithBrowserOpener(oauth.NoBrowser))
	}

	s, err := opts.newSession(cmd, authOpts...)
	if err != nil {
		return err
	}

	var cred *oauth.Credential
	if lo.force {
		cred, err = s.manager.Login(cmd.Context())
	} else {
		cred, err = s.manager.EnsureValid(cmd.Context())
	}
	progress.Stop()
	if err != nil {
		return s.translate(err)
	}

	msg := fmt.Sprintf("Logged in to %s", s.profile.Name)
	if cred.Organization != "" {
		msg += fmt.Sprintf(" (organization %s)", cred.Organization)
	}
	s.printf("%s\n", cli.FormatSuccess(msg))
	s.printf("  Token valid until %s\n", cred.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}
