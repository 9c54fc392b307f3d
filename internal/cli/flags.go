package cli

import (
	"github.com/spf13/cobra"
)

// CommandFlags holds the flag values shared by every command that talks
// to the control-plane API. Consolidating them keeps flag names and help
// text consistent across the command files.
type CommandFlags struct {
	// OutputFormat is the desired output format (table, wide, json, yaml).
	OutputFormat string
	// NoHeaders suppresses the header row in table output.
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output.
	Quiet bool
	// Endpoint overrides the control-plane endpoint URL.
	Endpoint string
}

// RegisterCommonFlags registers the output and connection flags used by
// most client commands.
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	RegisterConnectionFlags(cmd, flags)
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table, wide, json, yaml)")
	cmd.PersistentFlags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
}

// RegisterConnectionFlags registers only the connection flags, for
// commands that produce no formatted output.
func RegisterConnectionFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint", GetDefaultEndpoint(), "Control-plane endpoint URL (env: MAESTRO_ENDPOINT)")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-essential output")
}
