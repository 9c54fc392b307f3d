package cmd

import (
	"fmt"

	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

var deleteFlags cli.CommandFlags

var deleteCmd = &cobra.Command{
	Use:   "delete <instance>",
	Short: "Delete an instance",
	Long: `Deletes a managed server instance. A running managed server is stopped
first; the instance record and its status history are then removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient(&deleteFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	inst, err := resolveInstance(ctx, c, args[0])
	if err != nil {
		return err
	}

	err = cli.RunWithSpinner(deleteFlags.Quiet, fmt.Sprintf("Deleting instance %s...", inst.Name), func() error {
		return c.DeleteInstance(ctx, inst.ID)
	})
	if err != nil {
		return err
	}

	if !deleteFlags.Quiet {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Instance %s deleted", inst.Name)))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(deleteCmd)
	cli.RegisterConnectionFlags(deleteCmd, &deleteFlags)
}
