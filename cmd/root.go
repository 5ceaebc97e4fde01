package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// envLogLevel selects the log level when --debug is not given.
const envLogLevel = "BARNDOOR_LOG_LEVEL"

// version is injected by main at build time.
var version = "dev"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	env        string
	configPath string
	apiOrigin  string
	mcpOrigin  string
	debug      bool
	quiet      bool
}

// rootCmd represents the base command for the barndoor application.
var rootCmd *cobra.Command

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "barndoor",
		Short: "Log in to barndoor and connect to its MCP servers",
		Long: `barndoor signs you in to the barndoor platform and produces the
connection parameters MCP clients need to reach servers through the
barndoor proxy.

Examples:
  barndoor auth login                  # Sign in through your browser
  barndoor servers list                # Show the servers your organization offers
  barndoor connect salesforce -o json  # Print connection parameters for a server`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.initLogging(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.env, "env", "", "Environment to use: prod, dev or local (env: BARNDOOR_ENV)")
	flags.StringVar(&opts.configPath, "config-path", "", "Configuration directory (default ~/.barndoor)")
	flags.StringVar(&opts.apiOrigin, "api-origin", "", "Override the registry API origin (env: BARNDOOR_API)")
	flags.StringVar(&opts.mcpOrigin, "mcp-origin", "", "Override the MCP proxy origin (env: BARNDOOR_URL)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress non-essential output")

	cmd.AddCommand(
		newAuthCmd(opts),
		newServersCmd(opts),
		newConnectCmd(opts),
		newEnvCmd(opts),
		newVersionCmd(),
		newSelfUpdateCmd(),
	)
	return cmd
}

func (o *rootOptions) initLogging(cmd *cobra.Command) {
	level := logging.LevelWarn
	switch {
	case o.debug:
		level = logging.LevelDebug
	case os.Getenv(envLogLevel) != "":
		level = logging.ParseLevel(os.Getenv(envLogLevel))
	case o.quiet:
		level = logging.LevelError
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return version
}

// Execute is the main entry point for the CLI application.
// It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "barndoor version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *cli.AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authExpired *cli.AuthExpiredError
	if errors.As(err, &authExpired) {
		return ExitCodeAuthRequired
	}

	var authFailed *cli.AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd = newRootCmd()
}
