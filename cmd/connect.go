package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/internal/connection"
	"github.com/barndoor/barndoor-cli/internal/mcpclient"
	"github.com/barndoor/barndoor-cli/internal/registry"
	"github.com/barndoor/barndoor-cli/pkg/logging"

	"github.com/spf13/cobra"
)

type connectOptions struct {
	sessionID string
	probe     bool
	redact    bool
	skipCheck bool
	output    cli.OutputFlags
}

// connectReport is the connect output: the parameters plus the probe
// result when --probe is given.
type connectReport struct {
	connection.Parameters `yaml:",inline"`

	Probe *mcpclient.ProbeResult `json:"probe,omitempty" yaml:"probe,omitempty"`
}

func newConnectCmd(opts *rootOptions) *cobra.Command {
	var co connectOptions

	cmd := &cobra.Command{
		Use:   "connect <slug>",
		Short: "Print MCP connection parameters for a server",
		Long: `Print the URL and headers an MCP client needs to reach a server
through the barndoor proxy. You are logged in first if necessary, and
the server must already be connected (see 'barndoor servers connect').

The output contains your access token. Use --redact to mask it.

Examples:
  barndoor connect salesforce                 # JSON parameters for salesforce
  barndoor connect salesforce -o yaml         # The same as YAML
  barndoor connect salesforce --probe         # Also check that the server answers
  barndoor connect salesforce --session-id x  # Reuse a session id`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, opts, co, args[0])
		},
	}

	cmd.Flags().StringVar(&co.sessionID, "session-id", "", "Session id sent as the "+connection.HeaderSessionID+" header (default: a new id)")
	cmd.Flags().BoolVar(&co.probe, "probe", false, "Initialize an MCP session and list the server's tools")
	cmd.Flags().BoolVar(&co.redact, "redact", false, "Mask the access token in the output")
	cmd.Flags().BoolVar(&co.skipCheck, "skip-check", false, "Do not check the server's connection status in the registry")
	cli.RegisterOutputFlags(cmd, &co.output, cli.OutputFormatJSON)
	return cmd
}

func runConnect(cmd *cobra.Command, opts *rootOptions, co connectOptions, slug string) error {
	format, err := co.output.Format()
	if err != nil {
		return err
	}
	if err := connection.ValidateSlug(slug); err != nil {
		return err
	}

	s, err := opts.newSession(cmd)
	if err != nil {
		return err
	}
	cred, err := s.credential(cmd.Context())
	if err != nil {
		return err
	}

	if !co.skipCheck {
		client, err := s.registryClient(cred)
		if err != nil {
			return err
		}
		srv, err := client.FindServer(cmd.Context(), slug)
		if err != nil {
			return s.translate(err)
		}
		if !srv.IsConnected() {
			return fmt.Errorf("server %s is %s, run 'barndoor servers connect %s' first", srv.Slug, statusOrUnknown(srv), srv.Slug)
		}
		slug = srv.Slug
	}

	sessionID := co.sessionID
	if sessionID == "" {
		sessionID = connection.NewSessionID()
	}
	params, err := connection.Build(cred, slug, s.profile, sessionID)
	if err != nil {
		return err
	}
	logging.Debug("CLI", "Built connection parameters %s", params)

	report := connectReport{Parameters: *params}
	if co.probe {
		progress := cli.NewProgress(s.errOut, s.quiet)
		progress.Update(fmt.Sprintf("Probing %s...", params.URL))
		result, err := mcpclient.Probe(cmd.Context(), params,
			mcpclient.WithClientInfo("barndoor-cli", version),
			mcpclient.WithTimeout(s.cfg.EffectiveHTTPTimeout()),
		)
		progress.Stop()
		if err != nil {
			return s.translate(err)
		}
		report.Probe = result
	}

	if co.redact || format == cli.OutputFormatTable {
		report.Parameters = *params.Redacted()
	}
	return cli.WriteStructured(s.out, format, report, func(w io.Writer) error {
		writeConnectTable(w, report)
		return nil
	})
}

func writeConnectTable(w io.Writer, r connectReport) {
	tbl := cli.NewTable(w, true)
	tbl.AppendRow("URL:", r.URL)
	tbl.AppendRow("Transport:", r.Transport)

	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		label := ""
		if i == 0 {
			label = "Headers:"
		}
		tbl.AppendRow(label, k+": "+r.Headers[k])
	}

	if r.Probe != nil {
		tbl.AppendRow("Server:", strings.TrimSpace(r.Probe.ServerName+" "+r.Probe.ServerVersion))
		tbl.AppendRow("Protocol:", r.Probe.ProtocolVersion)
		tbl.AppendRow("Tools:", cli.Pluralize(len(r.Probe.Tools), "tool"))
		for _, tool := range r.Probe.Tools {
			tbl.AppendRow("", "- "+tool)
		}
	}
	tbl.Render()
}

func statusOrUnknown(srv *registry.ServerSummary) string {
	if srv.ConnectionStatus == "" {
		return "not connected"
	}
	return srv.ConnectionStatus
}
