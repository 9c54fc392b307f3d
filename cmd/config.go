package cmd

import (
	"fmt"
	"os"

	"maestro/internal/api"
	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

var configFlags cli.CommandFlags

var configPatchInline string
var configPatchFile string

// configCmd groups the declared-configuration subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and patch declared configuration",
	Long: `Inspects and modifies the declared configuration of an instance. The
declared configuration is what the reconciler converges the running
managed server towards.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <instance>",
	Short: "Show an instance's declared configuration",
	Long: `Shows the declared configuration of an instance. Table output
summarizes the record lists as counts; use -o yaml or -o json for the
full document.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPatchCmd = &cobra.Command{
	Use:   "patch <instance>",
	Short: "Apply a JSON patch to the declared configuration",
	Long: `Applies an RFC 6902 JSON patch to the declared configuration and
prints the result. The instance is marked ConfigurationChanged so the
reconciler converges the running server.

Examples:
  maestro config patch web --patch '[{"op":"replace","path":"/port","value":9090}]'
  maestro config patch web --file rollout.json -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigPatch,
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient(&configFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	inst, err := resolveInstance(ctx, c, args[0])
	if err != nil {
		return err
	}
	cfg, err := c.GetConfiguration(ctx, inst.ID)
	if err != nil {
		return err
	}

	printer, err := newPrinter(cmd, &configFlags)
	if err != nil {
		return err
	}
	return printer.PrintConfiguration(cfg)
}

func runConfigPatch(cmd *cobra.Command, args []string) error {
	patch, err := patchBody()
	if err != nil {
		return err
	}

	c, err := newAPIClient(&configFlags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	inst, err := resolveInstance(ctx, c, args[0])
	if err != nil {
		return err
	}
	cfg, err := c.PatchConfiguration(ctx, inst.ID, patch)
	if err != nil {
		return err
	}

	if configFlags.Quiet {
		return nil
	}
	printer, err := newPrinter(cmd, &configFlags)
	if err != nil {
		return err
	}
	return printer.PrintConfiguration(cfg)
}

func patchBody() ([]byte, error) {
	switch {
	case configPatchInline != "" && configPatchFile != "":
		return nil, api.NewValidationError("patch", "--patch and --file are mutually exclusive")
	case configPatchInline != "":
		return []byte(configPatchInline), nil
	case configPatchFile != "":
		data, err := os.ReadFile(configPatchFile)
		if err != nil {
			return nil, fmt.Errorf("reading patch file: %w", err)
		}
		return data, nil
	default:
		return nil, api.NewValidationError("patch", "either --patch or --file is required")
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPatchCmd)

	cli.RegisterCommonFlags(configCmd, &configFlags)
	configPatchCmd.Flags().StringVarP(&configPatchInline, "patch", "p", "", "JSON patch document (RFC 6902)")
	configPatchCmd.Flags().StringVarP(&configPatchFile, "file", "f", "", "File containing the JSON patch document")
}
