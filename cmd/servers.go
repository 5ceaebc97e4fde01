package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/internal/oauth"
	"github.com/barndoor/barndoor-cli/internal/registry"
	bdstrings "github.com/barndoor/barndoor-cli/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newServersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "servers",
		Aliases: []string{"server"},
		Short:   "List and connect the MCP servers of your organization",
		Long: `Work with the MCP servers registered for your organization.

Examples:
  barndoor servers list                # Show all servers and their connection status
  barndoor servers get salesforce      # Show one server in detail
  barndoor servers connect salesforce  # Authorize barndoor to use a server`,
	}

	cmd.AddCommand(
		newServersListCmd(opts),
		newServersGetCmd(opts),
		newServersConnectCmd(opts),
	)
	return cmd
}

func newServersListCmd(opts *rootOptions) *cobra.Command {
	var output cli.OutputFlags

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List MCP servers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.Format()
			if err != nil {
				return err
			}
			s, client, err := opts.registrySession(cmd)
			if err != nil {
				return err
			}

			servers, err := client.ListServers(cmd.Context())
			if err != nil {
				return s.translate(err)
			}

			return cli.WriteStructured(s.out, format, servers, func(w io.Writer) error {
				if len(servers) == 0 {
					fmt.Fprintln(w, "No servers found")
					return nil
				}
				tbl := cli.NewTable(w, output.NoHeaders)
				tbl.SetHeaders("Name", "Slug", "Provider", "Status")
				connected := 0
				for _, srv := range servers {
					if srv.IsConnected() {
						connected++
					}
					tbl.AppendRow(srv.Name, srv.Slug, srv.Provider, colorStatus(srv.ConnectionStatus))
				}
				tbl.Render()
				if !output.NoHeaders {
					fmt.Fprintf(w, "\n%s, %d connected\n", cli.Pluralize(len(servers), "server"), connected)
				}
				return nil
			})
		},
	}

	cli.RegisterOutputFlags(cmd, &output, cli.OutputFormatTable)
	return cmd
}

func newServersGetCmd(opts *rootOptions) *cobra.Command {
	var output cli.OutputFlags

	cmd := &cobra.Command{
		Use:   "get <slug|id>",
		Short: "Show details of an MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.Format()
			if err != nil {
				return err
			}
			s, client, err := opts.registrySession(cmd)
			if err != nil {
				return err
			}

			summary, err := client.FindServer(cmd.Context(), args[0])
			if err != nil {
				return s.translate(err)
			}
			detail, err := client.GetServer(cmd.Context(), summary.ID)
			if err != nil {
				return s.translate(err)
			}

			return cli.WriteStructured(s.out, format, detail, func(w io.Writer) error {
				tbl := cli.NewTable(w, true)
				tbl.AppendRow("Name:", detail.Name)
				tbl.AppendRow("Slug:", detail.Slug)
				tbl.AppendRow("ID:", detail.ID)
				if detail.Provider != "" {
					tbl.AppendRow("Provider:", detail.Provider)
				}
				tbl.AppendRow("Status:", colorStatus(detail.ConnectionStatus))
				if detail.URL != "" {
					tbl.AppendRow("URL:", detail.URL)
				}
				if detail.Description != "" {
					tbl.AppendRow("Description:", bdstrings.Truncate(detail.Description, bdstrings.DescriptionMaxLen))
				}
				tbl.Render()
				return nil
			})
		},
	}

	cli.RegisterOutputFlags(cmd, &output, cli.OutputFormatTable)
	return cmd
}

func newServersConnectCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout   time.Duration
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "connect <slug>",
		Short: "Authorize barndoor to use an MCP server",
		Long: `Start the OAuth flow that lets barndoor act on your behalf with
a third party server, then wait until the registry reports the server as
connected. Servers that are already connected are left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, client, err := opts.registrySession(cmd)
			if err != nil {
				return err
			}

			open := oauth.OpenBrowser
			if noBrowser {
				open = func(rawURL string) error {
					s.printf("Open this URL to connect the server:\n  %s\n", rawURL)
					return nil
				}
			}

			progress := cli.NewProgress(s.errOut, s.quiet || noBrowser)
			progress.Update(fmt.Sprintf("Waiting for %s to be connected...", args[0]))
			srv, err := client.EnsureServerConnected(cmd.Context(), args[0], open, timeout)
			progress.Stop()
			if err != nil {
				return s.translate(err)
			}

			s.printf("%s\n", cli.FormatSuccess(fmt.Sprintf("Server %s is connected", srv.Slug)))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", registry.DefaultConnectTimeout, "How long to wait for the connection to complete")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	return cmd
}

// registrySession returns a session with a valid credential and a
// registry client for its organization.
func (o *rootOptions) registrySession(cmd *cobra.Command) (*session, *registry.Client, error) {
	s, err := o.newSession(cmd)
	if err != nil {
		return nil, nil, err
	}
	cred, err := s.credential(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	client, err := s.registryClient(cred)
	if err != nil {
		return nil, nil, err
	}
	return s, client, nil
}

func colorStatus(status string) string {
	switch status {
	case registry.StatusConnected:
		return text.FgGreen.Sprint(status)
	case registry.StatusPending:
		return text.FgYellow.Sprint(status)
	default:
		return status
	}
}
