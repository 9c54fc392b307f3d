package cmd

import (
	"context"

	"maestro/internal/api"
	"maestro/internal/cli"
	"maestro/internal/client"

	"github.com/spf13/cobra"
)

var restartFlags cli.CommandFlags

var restartCmd = &cobra.Command{
	Use:   "restart <instance>",
	Short: "Restart an instance's managed server",
	Long: `Restarts the managed server for an instance: a stop followed by a
start as one worker-side operation, keeping the declared
configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	return runLifecycle(cmd, &restartFlags, args[0], "Restarting", "restarted",
		func(ctx context.Context, c *client.Client, id string) (*api.RuntimeInfo, error) {
			return c.RestartInstance(ctx, id)
		})
}

func init() {
	rootCmd.AddCommand(restartCmd)
	cli.RegisterCommonFlags(restartCmd, &restartFlags)
}
