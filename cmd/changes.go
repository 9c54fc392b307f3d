package cmd

import (
	"fmt"
	"time"

	"maestro/internal/api"
	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

var changesFlags cli.CommandFlags

var changesSince time.Duration
var changesStatus string

// changesCmd reads the control plane's status change ring.
var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent status changes",
	Long: `Shows recent status changes from the control plane's change ring. The
ring is bounded, so very old changes age out.

Examples:
  maestro changes
  maestro changes --since 10m
  maestro changes --status Error -o wide`,
	Args: cobra.NoArgs,
	RunE: runChanges,
}

func runChanges(cmd *cobra.Command, args []string) error {
	if changesStatus != "" && !api.InstanceStatus(changesStatus).Valid() {
		return api.NewValidationError("status", fmt.Sprintf("unknown status %q", changesStatus))
	}

	c, err := newAPIClient(&changesFlags)
	if err != nil {
		return err
	}
	since := time.Now().Add(-changesSince)
	records, err := c.GetRecentChanges(cmd.Context(), since, api.InstanceStatus(changesStatus))
	if err != nil {
		return err
	}

	printer, err := newPrinter(cmd, &changesFlags)
	if err != nil {
		return err
	}
	return printer.PrintChanges(records)
}

func init() {
	rootCmd.AddCommand(changesCmd)

	cli.RegisterCommonFlags(changesCmd, &changesFlags)
	changesCmd.Flags().DurationVar(&changesSince, "since", time.Hour, "How far back to look")
	changesCmd.Flags().StringVar(&changesStatus, "status", "", "Only changes into the given status")
}
