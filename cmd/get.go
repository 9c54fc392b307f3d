package cmd

import (
	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

var getFlags cli.CommandFlags

var getCmd = &cobra.Command{
	Use:   "get <instance>",
	Short: "Show one instance",
	Long: `Shows one managed server instance, looked up by id or by unique name.

Examples:
  maestro get web
  maestro get 79faad8f-137c-4aa7-9a3c-0535dc55e929 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient(&getFlags)
	if err != nil {
		return err
	}
	inst, err := resolveInstance(cmd.Context(), c, args[0])
	if err != nil {
		return err
	}

	printer, err := newPrinter(cmd, &getFlags)
	if err != nil {
		return err
	}
	return printer.PrintInstance(inst)
}

func init() {
	rootCmd.AddCommand(getCmd)
	cli.RegisterCommonFlags(getCmd, &getFlags)
}
