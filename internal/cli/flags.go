package cli

import (
	"github.com/spf13/cobra"
)

// OutputFlags holds the output flag values shared by commands that print
// structured results.
type OutputFlags struct {
	// OutputFormat specifies the desired output format (table, json, yaml)
	OutputFormat string
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
}

// RegisterOutputFlags registers --output/-o and --no-headers on cmd.
func RegisterOutputFlags(cmd *cobra.Command, flags *OutputFlags, defaultFormat OutputFormat) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", string(defaultFormat), "Output format (table, json, yaml)")
	cmd.Flags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
}

// Format validates and returns the selected output format.
func (f *OutputFlags) Format() (OutputFormat, error) {
	if err := ValidateOutputFormat(f.OutputFormat); err != nil {
		return "", err
	}
	return OutputFormat(f.OutputFormat), nil
}
