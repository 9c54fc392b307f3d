package cmd

import (
	"fmt"

	"maestro/internal/api"
	"maestro/internal/cli"

	"github.com/spf13/cobra"
)

var createFlags cli.CommandFlags

var createPlatform string
var createDescription string
var createTags map[string]string
var createHost string
var createPort int
var createLogLevel string

// createCmd registers a new instance. The managed server itself is not
// started until 'maestro start'.
var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a managed server instance",
	Long: `Creates a managed server instance on the given platform. The instance
starts out in status Created; use 'maestro start' to run it.

The declared server binding defaults to 127.0.0.1 with an allocated
port. Pass --host, --port, or --log-level to pin parts of it at
creation time; everything can be changed later with
'maestro config patch'.

Examples:
  maestro create web --platform process
  maestro create web --platform container --port 9090 --tag env=prod
  maestro create web --platform pod --description "edge fleet" -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient(&createFlags)
	if err != nil {
		return err
	}

	req := api.CreateInstanceRequest{
		Name:        args[0],
		Description: createDescription,
		Platform:    api.PlatformKind(createPlatform),
		Tags:        createTags,
	}
	if createHost != "" || createPort != 0 || createLogLevel != "" {
		req.Binding = &api.ServerBinding{
			Host:     createHost,
			Port:     createPort,
			LogLevel: createLogLevel,
		}
	}

	inst, err := c.CreateInstance(cmd.Context(), req)
	if err != nil {
		return err
	}

	if createFlags.Quiet {
		fmt.Fprintln(cmd.OutOrStdout(), inst.ID)
		return nil
	}
	printer, err := newPrinter(cmd, &createFlags)
	if err != nil {
		return err
	}
	return printer.PrintInstance(inst)
}

func init() {
	rootCmd.AddCommand(createCmd)

	cli.RegisterCommonFlags(createCmd, &createFlags)
	createCmd.Flags().StringVar(&createPlatform, "platform", string(api.PlatformProcess), "Platform to run on: process, container, or pod")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Human-readable description")
	createCmd.Flags().StringToStringVar(&createTags, "tag", nil, "Instance tag as key=value (repeatable)")
	createCmd.Flags().StringVar(&createHost, "host", "", "Declared server host")
	createCmd.Flags().IntVar(&createPort, "port", 0, "Declared server port (0 lets the worker allocate one)")
	createCmd.Flags().StringVar(&createLogLevel, "log-level", "", "Declared server log level")
}
