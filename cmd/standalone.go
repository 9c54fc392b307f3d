package cmd

import (
	"maestro/internal/api"
	"maestro/internal/app"

	"github.com/spf13/cobra"
)

// standaloneCmd runs every control-plane component in one process over
// the in-memory bus: the development mode.
var standaloneCmd = &cobra.Command{
	Use:   "standalone",
	Short: "Start maestro in standalone mode",
	Long: `Standalone mode starts the API node, one worker, and the reconciler in
a single process over the in-memory bus transport. No redis is needed
and nothing but the HTTP API leaves the process.

The worker platform follows the configuration (default process), so a
managed server executable must be configured or passed via
--executable unless another platform is selected.`,
	Args: cobra.NoArgs,
	RunE: runStandalone,
}

func runStandalone(cmd *cobra.Command, args []string) error {
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
	if workerPlatform != "" {
		cfg.Worker.Platform = api.PlatformKind(workerPlatform)
	}
	if workerExecutable != "" {
		cfg.Worker.Executable = workerExecutable
	}
	if workerImage != "" {
		cfg.Worker.Image = workerImage
	}

	ctx := cmd.Context()
	application, err := app.NewStandalone(ctx, cfg)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(standaloneCmd)

	// Shares the serve and worker flag variables. worker.go's init has
	// not run at this point, so the flags are registered directly
	// rather than copied via AddFlagSet.
	standaloneCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	standaloneCmd.Flags().BoolVar(&serveSilent, "silent", false, "Discard all log output")
	standaloneCmd.Flags().StringVar(&serveLogFormat, "log-format", "text", "Log format (text, json)")
	standaloneCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Configuration directory (default ~/.config/maestro)")
	standaloneCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides configuration)")
	standaloneCmd.Flags().StringVar(&serveDefinitions, "definitions", "", "Instance definitions directory (overrides configuration)")
	standaloneCmd.Flags().StringVar(&workerPlatform, "platform", "", "Platform to serve: process, container, or pod (overrides configuration)")
	standaloneCmd.Flags().StringVar(&workerExecutable, "executable", "", "Managed server executable for the process platform (overrides configuration)")
	standaloneCmd.Flags().StringVar(&workerImage, "image", "", "Managed server image for the container and pod platforms (overrides configuration)")
}
