package cmd

import (
	"fmt"

	"maestro/internal/api"
	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

var listFlags cli.CommandFlags

// listPlatform and listStatus filter client-side; the API has no list
// query parameters.
var listPlatform string
var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed server instances",
	Long: `Lists all managed server instances known to the control plane.

Filtering:
  --platform <kind>   - Only instances on the given platform
  --status <status>   - Only instances in the given status

Examples:
  maestro list
  maestro list --status Running -o wide
  maestro list --platform container -o json
  maestro list -q`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	if listStatus != "" && !api.InstanceStatus(listStatus).Valid() {
		return api.NewValidationError("status", fmt.Sprintf("unknown status %q", listStatus))
	}
	if listPlatform != "" && !api.PlatformKind(listPlatform).Valid() {
		return api.NewValidationError("platform", fmt.Sprintf("unknown platform %q", listPlatform))
	}

	c, err := newAPIClient(&listFlags)
	if err != nil {
		return err
	}
	instances, err := c.ListInstances(cmd.Context())
	if err != nil {
		return err
	}

	filtered := instances[:0:0]
	for _, inst := range instances {
		if listPlatform != "" && inst.Platform != api.PlatformKind(listPlatform) {
			continue
		}
		if listStatus != "" && inst.Status != api.InstanceStatus(listStatus) {
			continue
		}
		filtered = append(filtered, inst)
	}

	if listFlags.Quiet {
		for _, inst := range filtered {
			fmt.Fprintln(cmd.OutOrStdout(), inst.ID)
		}
		return nil
	}
	printer, err := newPrinter(cmd, &listFlags)
	if err != nil {
		return err
	}
	return printer.PrintInstances(filtered)
}

func init() {
	rootCmd.AddCommand(listCmd)

	cli.RegisterCommonFlags(listCmd, &listFlags)
	listCmd.Flags().StringVar(&listPlatform, "platform", "", "Filter by platform (process, container, pod)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (Created, Running, Stopped, Error, ConfigurationChanged)")
}
