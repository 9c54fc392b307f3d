// Package logging provides a structured logging system for maestro with
// unified log handling and flexible output formatting.
//
// The package wraps Go's standard slog with a subsystem-tagged API so every
// component logs under a stable identifier that can be filtered downstream.
//
// # Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// # Usage
//
//	import "maestro/pkg/logging"
//
//	// Server processes emit JSON, the CLI emits text
//	logging.Init(logging.FormatJSON, logging.LevelInfo, os.Stdout)
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("Worker", "Command channel backlog growing")
//	logging.Error("Bus", err, "Failed to connect to transport")
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Bus**: Message bus transport and request/reply handling
//   - **Worker**: Platform worker command handling and health monitoring
//   - **InstanceService**: Instance metadata and lifecycle operations
//   - **Reconciler**: Drift detection and strategy execution
//   - **HTTPServer**: The HTTP API surface
//
// # Controller-Runtime Integration
//
// Init routes the controller-runtime global logger through the configured
// slog handler so that Kubernetes client machinery (used by the pod platform
// driver) logs through the same pipeline without uninitialized-logger
// warnings.
//
// # Thread Safety
//
// The logging system is fully thread-safe; concurrent logging from multiple
// goroutines is supported by the underlying slog handlers.
package logging
