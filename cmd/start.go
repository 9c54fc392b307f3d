package cmd

import (
	"context"

	"maestro/internal/api"
	"maestro/internal/cli"
	"maestro/internal/client"

	"github.com/spf13/cobra"
)

var startFlags cli.CommandFlags

var startCmd = &cobra.Command{
	Use:   "start <instance>",
	Short: "Start an instance's managed server",
	Long: `Starts the managed server for an instance. The platform worker
allocates a port if none is declared, launches the server, and reports
the runtime info back.

Examples:
  maestro start web
  maestro start web -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	return runLifecycle(cmd, &startFlags, args[0], "Starting", "started",
		func(ctx context.Context, c *client.Client, id string) (*api.RuntimeInfo, error) {
			return c.StartInstance(ctx, id, nil)
		})
}

func init() {
	rootCmd.AddCommand(startCmd)
	cli.RegisterCommonFlags(startCmd, &startFlags)
}
