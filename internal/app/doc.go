// Package app assembles maestro's node types and manages their lifecycle.
//
// Each node type is a composition of the same building blocks wired over a
// shared message bus:
//
//   - **API node** (NewAPI): instance service, optional definitions
//     autoload, HTTP surface.
//   - **Worker node** (NewWorker): one platform driver bound to its
//     command channel.
//   - **Reconciler node** (NewReconciler): drift detection and repair
//     against a remote API node.
//   - **Standalone** (NewStandalone): all of the above in one process over
//     the in-memory transport, for development and tests.
//
// # Lifecycle
//
// An Application is an ordered list of components. Start brings them up in
// registration order and unwinds on the first failure; Stop tears them down
// in reverse. Run layers POSIX signal handling (SIGINT, SIGTERM) on top and
// blocks until shutdown completes, which is what the serve commands call.
//
// # Setup
//
// Setup initializes logging from the command-line options and loads the
// node configuration before any Application is constructed. Silent mode
// discards log output entirely, which the CLI uses for machine-readable
// output formats.
//
// # Change detection fallback
//
// The reconciler prefers bus-driven change detection. When the configured
// transport is the in-memory one (which cannot span processes) or the Redis
// connection fails, it falls back to polling the API node's status change
// ring over HTTP. Standalone mode always uses the bus detector since every
// component shares one in-process bus.
package app
