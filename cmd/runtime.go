package cmd

import (
	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

var runtimeFlags cli.CommandFlags

var runtimeCmd = &cobra.Command{
	Use:   "runtime <instance>",
	Short: "Show an instance's runtime info",
	Long: `Shows the runtime info the platform worker last reported for an
instance: status, platform handle (pid, container id, or pod), start
and stop times, and the last error if any.

Examples:
  maestro runtime web
  maestro runtime web -o wide
  maestro runtime web -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRuntime,
}

func runRuntime(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient(&runtimeFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	inst, err := resolveInstance(ctx, c, args[0])
	if err != nil {
		return err
	}
	info, err := c.GetRuntime(ctx, inst.ID)
	if err != nil {
		return err
	}

	printer, err := newPrinter(cmd, &runtimeFlags)
	if err != nil {
		return err
	}
	return printer.PrintRuntime(info)
}

func init() {
	rootCmd.AddCommand(runtimeCmd)
	cli.RegisterCommonFlags(runtimeCmd, &runtimeFlags)
}
