// Package api defines the shared contract surface of the control plane:
// the data model, the message types that travel over the bus, the fixed
// channel names, and the typed error kinds.
//
// Every other package depends on this one and on nothing else inside the
// module, which keeps the dependency graph acyclic: bus, worker, instance
// service, reconciler, HTTP server, and CLI all speak in terms of these
// types.
//
// # Data model
//
//   - Instance: metadata owned by the API node (id, name, platform kind,
//     status, tags, timestamps).
//   - DeclaredConfiguration: the user-intended state (server binding plus
//     the opaque sources/queries/reactions lists). Exactly one per
//     instance.
//   - RuntimeInfo: the observed state written by workers and the
//     status-update ingress. At most one per instance; absence means the
//     instance never started.
//
// # Messages
//
//   - Command: Start/Stop/Restart/Delete, published on the platform's
//     command channel. Start and Restart may carry a configuration.
//   - Response: {instanceId, success, errorMessage?, runtimeInfo?,
//     correlationId}, published on the command's reply channel.
//   - Event: lifecycle broadcasts; InstanceStatusChanged carries
//     old/new/source.
//   - StatusUpdate: the informational ingress payload for
//     externally-observed status.
//
// # Errors
//
// Error kinds are concrete structs (NotFoundError, ConflictError,
// ValidationError, TimeoutError, TransportError, PlatformError) matched
// with errors.As through the Is* helpers, so wrapped errors classify
// correctly at every layer boundary.
package api
