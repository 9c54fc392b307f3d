package cmd

import (
	"context"

	"maestro/internal/api"
	"maestro/internal/cli"
	"maestro/internal/client"

	"github.com/spf13/cobra"
)

var stopFlags cli.CommandFlags

var stopCmd = &cobra.Command{
	Use:   "stop <instance>",
	Short: "Stop an instance's managed server",
	Long: `Stops the managed server for an instance. The platform worker asks the
server to shut down gracefully and kills it after the configured
shutdown timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	return runLifecycle(cmd, &stopFlags, args[0], "Stopping", "stopped",
		func(ctx context.Context, c *client.Client, id string) (*api.RuntimeInfo, error) {
			return c.StopInstance(ctx, id)
		})
}

func init() {
	rootCmd.AddCommand(stopCmd)
	cli.RegisterCommonFlags(stopCmd, &stopFlags)
}
