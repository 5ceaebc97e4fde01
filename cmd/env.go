package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/barndoor/barndoor-cli/internal/cli"
	"github.com/barndoor/barndoor-cli/internal/config"
	"github.com/barndoor/barndoor-cli/internal/environment"

	"github.com/spf13/cobra"
)

func newEnvCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Show and select barndoor environments",
		Long: `Show the environments barndoor knows about and select the one
used when neither --env nor BARNDOOR_ENV is given.

Examples:
  barndoor env list                    # Show every environment
  barndoor env current                 # Show the resolved environment
  barndoor env use dev                 # Make dev the default`,
	}

	cmd.AddCommand(
		newEnvListCmd(opts),
		newEnvCurrentCmd(opts),
		newEnvUseCmd(opts),
	)
	return cmd
}

func newEnvListCmd(opts *rootOptions) *cobra.Command {
	var output cli.OutputFlags

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List known environments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.Format()
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			current := cfg.Profile().Name

			profiles := make([]environment.Profile, 0, len(environment.Names()))
			for _, name := range environment.Names() {
				p, _ := environment.Lookup(name)
				profiles = append(profiles, p)
			}

			return cli.WriteStructured(cmd.OutOrStdout(), format, profiles, func(w io.Writer) error {
				tbl := cli.NewTable(w, output.NoHeaders)
				tbl.SetHeaders("", "Name", "API Origin", "Proxy Origin", "Auth Domain")
				for _, p := range profiles {
					marker := ""
					if p.Name == current {
						marker = "*"
					}
					tbl.AppendRow(marker, p.Name, p.APIOrigin, p.ProxyOrigin, p.AuthDomain)
				}
				tbl.Render()
				return nil
			})
		},
	}

	cli.RegisterOutputFlags(cmd, &output, cli.OutputFormatTable)
	return cmd
}

func newEnvCurrentCmd(opts *rootOptions) *cobra.Command {
	var output cli.OutputFlags

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the resolved environment with overrides applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.Format()
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			p := cfg.Profile()
			p.AuthDomain = cfg.EffectiveAuthDomain()
			p.Audience = cfg.EffectiveAudience()

			return cli.WriteStructured(cmd.OutOrStdout(), format, p, func(w io.Writer) error {
				tbl := cli.NewTable(w, true)
				tbl.AppendRow("Environment:", p.Name)
				tbl.AppendRow("API origin:", p.APIOrigin)
				tbl.AppendRow("Proxy origin:", p.ProxyOrigin)
				tbl.AppendRow("Auth domain:", p.AuthDomain)
				tbl.AppendRow("Audience:", p.Audience)
				tbl.AppendRow("Token cache:", cfg.ResolvedTokenPath())
				tbl.Render()
				return nil
			})
		},
	}

	cli.RegisterOutputFlags(cmd, &output, cli.OutputFormatTable)
	return cmd
}

func newEnvUseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "use <name>",
		Short:     "Set the default environment in config.yaml",
		Args:      cobra.ExactArgs(1),
		ValidArgs: environment.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := environment.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown environment %q, expected one of: %s", args[0], strings.Join(environment.Names(), ", "))
			}

			dir := opts.configPath
			if dir == "" {
				var err error
				if dir, err = config.GetDefaultConfigPath(); err != nil {
					return err
				}
			}
			cfg, err := config.LoadConfigFile(dir)
			if err != nil {
				return err
			}
			cfg.Environment = p.Name
			if err := config.SaveConfig(cfg); err != nil {
				return err
			}

			if !opts.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", cli.FormatSuccess("Default environment set to "+p.Name))
			}
			return nil
		},
	}
}
