package cmd

import (
	"maestro/internal/app"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveSilent discards all log output. Mainly useful when another
// process supervises the node and captures state elsewhere.
var serveSilent bool

// serveLogFormat selects text or json log lines.
var serveLogFormat string

// serveConfigPath overrides the configuration directory. Empty selects
// ~/.config/maestro.
var serveConfigPath string

// serveListen overrides the configured HTTP listen address.
var serveListen string

// serveDefinitions overrides the configured instance definitions
// directory.
var serveDefinitions string

// serveCmd starts the API node: the instance service, the status
// change ring, the HTTP surface, and the bus connection.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the maestro API node",
	Long: `Starts the API node: the instance registry and lifecycle service, the
status change ring, the HTTP API, and the bus connection workers answer
on.

With the default in-memory bus transport, workers must run in the same
process; use 'maestro standalone' for that. Configure the redis
transport to run workers and the reconciler as separate processes.

Configuration is read from {config-path}/config.yaml (default
~/.config/maestro/config.yaml). A missing file means defaults. When a
definitions directory is configured (or passed via --definitions),
instance definitions are loaded from it on startup and watched for
changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := app.Setup(app.Options{
		Debug:      serveDebug,
		Silent:     serveSilent,
		LogFormat:  serveLogFormat,
		ConfigPath: serveConfigPath,
	})
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.API.Listen = serveListen
	}
	if serveDefinitions != "" {
		cfg.API.DefinitionsDir = serveDefinitions
	}

	ctx := cmd.Context()
	application, err := app.NewAPI(ctx, cfg)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Discard all log output")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "text", "Log format (text, json)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default ~/.config/maestro)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides configuration)")
	serveCmd.Flags().StringVar(&serveDefinitions, "definitions", "", "Instance definitions directory (overrides configuration)")
}
