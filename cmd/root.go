package cmd

import (
	"fmt"
	"os"

	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the maestro binary. It is the entry
// point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Control plane for managed server instances",
	Long: `maestro manages the lifecycle of managed server instances across
process, container, and pod platforms.

Node commands (serve, worker, reconcile, standalone) start long-running
control-plane components. The remaining commands are clients of a
running API node, selected via --endpoint or MAESTRO_ENDPOINT.`,
	// SilenceUsage keeps handled errors from dumping the usage text;
	// SilenceErrors leaves printing to Execute, which colors them.
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version for the root command. Called from the
// main package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a semantic code so
// scripts can distinguish validation errors from missing resources or
// timeouts.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "maestro version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
