package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/internal/oauth"
	"github.com/barndoor/barndoor-cli/pkg/logging"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// statusCheckTimeout bounds the --verify call.
const statusCheckTimeout = 10 * time.Second

// statusReport is the auth status output.
type statusReport struct {
	Environment string `json:"environment" yaml:"environment"`
	TokenPath   string `json:"tokenPath" yaml:"tokenPath"`

	oauth.Status `yaml:",inline"`

	// Verified is set by --verify: nil when no check was made.
	Verified *bool `json:"verified,omitempty" yaml:"verified,omitempty"`
}

type statusOptions struct {
	verify bool
	watch  bool
	output cli.OutputFlags
}

func newAuthStatusCmd(opts *rootOptions) *cobra.Command {
	var so statusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long: `Show whether a token is cached for the selected environment, when
it expires and whether it can be refreshed.

With --verify the token is also checked against the barndoor API. The
check is only made in the prod environment.

With --watch the status is printed again whenever the token cache
changes, for example when another terminal logs in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd, opts, so)
		},
	}

	cmd.Flags().BoolVar(&so.verify, "verify", false, "Check the token against the barndoor API")
	cmd.Flags().BoolVarP(&so.watch, "watch", "w", false, "Print the status again whenever the token cache changes")
	cli.RegisterOutputFlags(cmd, &so.output, cli.OutputFormatTable)
	return cmd
}

func runAuthStatus(cmd *cobra.Command, opts *rootOptions, so statusOptions) error {
	format, err := so.output.Format()
	if err != nil {
		return err
	}
	s, err := opts.newSession(cmd)
	if err != nil {
		return err
	}

	show := func() error {
		report := s.buildStatusReport(cmd.Context(), so.verify)
		return cli.WriteStructured(s.out, format, report, func(w io.Writer) error {
			writeStatusTable(w, report, time.Now())
			return nil
		})
	}

	if err := show(); err != nil {
		return err
	}
	if !so.watch {
		return nil
	}

	s.printf("\nWatching %s for changes, press Ctrl+C to stop\n", s.store.Path())
	return oauth.WatchFile(cmd.Context(), s.store.Path(), 0, func() {
		fmt.Fprintln(s.out)
		if err := show(); err != nil {
			logging.Error("CLI", err, "Failed to show status")
		}
	})
}

func (s *session) buildStatusReport(ctx context.Context, verify bool) statusReport {
	report := statusReport{
		Environment: s.profile.Name,
		TokenPath:   s.store.Path(),
		Status:      s.manager.Status(),
	}
	if !verify || !report.Authenticated || report.Expired {
		return report
	}
	if !s.profile.ValidatesTokens {
		logging.Debug("CLI", "Token validation skipped for the %s environment", s.profile.Name)
		return report
	}

	cred, ok := s.manager.Current()
	if !ok {
		return report
	}
	client, err := s.registryClient(cred)
	if err != nil {
		logging.Warn("CLI", "Cannot verify token: %v", err)
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
	defer cancel()
	valid, err := client.ValidateToken(ctx)
	if err != nil {
		logging.Warn("CLI", "Token verification failed: %v", err)
		return report
	}
	report.Verified = &valid
	return report
}

func writeStatusTable(w io.Writer, r statusReport, now time.Time) {
	tbl := cli.NewTable(w, true)
	tbl.AppendRow("Environment:", r.Environment)

	switch {
	case !r.Authenticated:
		tbl.AppendRow("Status:", text.FgYellow.Sprint("Not authenticated"))
		tbl.AppendRow("", "Run 'barndoor auth login' to sign in")
		tbl.Render()
		return
	case r.Expired:
		tbl.AppendRow("Status:", text.FgYellow.Sprint("Expired"))
	case r.Verified != nil && !*r.Verified:
		tbl.AppendRow("Status:", text.FgRed.Sprint("Token rejected by barndoor"))
	default:
		tbl.AppendRow("Status:", text.FgGreen.Sprint("Authenticated"))
	}

	if r.Organization != "" {
		tbl.AppendRow("Organization:", r.Organization)
	}
	tbl.AppendRow("Issuer:", r.Issuer)
	tbl.AppendRow("Expires:", formatExpiry(r.ExpiresAt, now))
	if r.HasRefreshToken {
		tbl.AppendRow("Refresh:", text.FgGreen.Sprint("Available"))
	} else {
		tbl.AppendRow("Refresh:", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
	}
	if r.Verified != nil && *r.Verified {
		tbl.AppendRow("Verified:", text.FgGreen.Sprint("Yes"))
	}
	tbl.AppendRow("Token cache:", r.TokenPath)
	tbl.Render()
}
