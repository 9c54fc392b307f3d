package cmd

import (
	"maestro/internal/app"

	"github.com/spf13/cobra"
)

var reconcileDebug bool
var reconcileSilent bool
var reconcileLogFormat string
var reconcileConfigPath string

// reconcileAPI overrides the configured API node base URL.
var reconcileAPI string

// reconcileCmd starts the reconciler node.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Start the maestro reconciler",
	Long: `Starts the reconciler, which watches running instances for drift
between their declared and applied configuration and repairs it by
restarting the instance with the declared configuration.

The reconciler talks to an API node over HTTP (--api or the configured
base URL). Configuration changes are picked up immediately from the
bus when the redis transport is configured and reachable; otherwise the
reconciler falls back to polling the API node's status change ring.
Full drift cycles run on the configured interval either way.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := app.Setup(app.Options{
		Debug:      reconcileDebug,
		Silent:     reconcileSilent,
		LogFormat:  reconcileLogFormat,
		ConfigPath: reconcileConfigPath,
	})
	if err != nil {
		return err
	}
	if reconcileAPI != "" {
		cfg.Reconciler.APIBaseURL = reconcileAPI
	}

	ctx := cmd.Context()
	application, err := app.NewReconciler(ctx, cfg)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().BoolVar(&reconcileDebug, "debug", false, "Enable debug logging")
	reconcileCmd.Flags().BoolVar(&reconcileSilent, "silent", false, "Discard all log output")
	reconcileCmd.Flags().StringVar(&reconcileLogFormat, "log-format", "text", "Log format (text, json)")
	reconcileCmd.Flags().StringVar(&reconcileConfigPath, "config-path", "", "Configuration directory (default ~/.config/maestro)")
	reconcileCmd.Flags().StringVar(&reconcileAPI, "api", "", "API node base URL (overrides configuration)")
}
