package cmd

import (
	"maestro/internal/api"
	"maestro/internal/app"

	"github.com/spf13/cobra"
)

var workerDebug bool
var workerSilent bool
var workerLogFormat string
var workerConfigPath string

// workerPlatform selects which command channel this worker consumes.
var workerPlatform string

// workerExecutable is the managed server binary, required by the
// process platform.
var workerExecutable string

// workerImage is the managed server image for the container and pod
// platforms.
var workerImage string

// workerCmd starts one platform worker.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a maestro platform worker",
	Long: `Starts a worker that executes lifecycle commands for one platform.
The worker subscribes to its platform's command channel on the bus,
drives the managed server through its platform driver (OS process,
docker container, or Kubernetes pod), and reports runtime state and
health back over the bus.

Workers are platform-sharded: run one worker per platform you want to
serve. A worker refuses to start when its platform tooling is
unavailable (missing executable, no docker binary, no kubeconfig).

The in-memory bus transport cannot reach an API node in another
process; configure the redis transport for a distributed setup.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := app.Setup(app.Options{
		Debug:      workerDebug,
		Silent:     workerSilent,
		LogFormat:  workerLogFormat,
		ConfigPath: workerConfigPath,
	})
	if err != nil {
		return err
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
	application, err := app.NewWorker(ctx, cfg)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().BoolVar(&workerDebug, "debug", false, "Enable debug logging")
	workerCmd.Flags().BoolVar(&workerSilent, "silent", false, "Discard all log output")
	workerCmd.Flags().StringVar(&workerLogFormat, "log-format", "text", "Log format (text, json)")
	workerCmd.Flags().StringVar(&workerConfigPath, "config-path", "", "Configuration directory (default ~/.config/maestro)")
	workerCmd.Flags().StringVar(&workerPlatform, "platform", "", "Platform to serve: process, container, or pod (overrides configuration)")
	workerCmd.Flags().StringVar(&workerExecutable, "executable", "", "Managed server executable for the process platform (overrides configuration)")
	workerCmd.Flags().StringVar(&workerImage, "image", "", "Managed server image for the container and pod platforms (overrides configuration)")
}
