// Package instance implements the declarative side of the control
// plane: the API node's metadata, configuration, and runtime stores,
// the bounded ring of recent status changes, and the translation of
// user intent into commands on the message bus.
//
// The service serializes lifecycle commands per instance, so at most
// one Start, Stop, Restart, or Delete is in flight for a given
// instance at any moment. Status flows back in through three doors:
// worker replies, broadcast status events, and the external
// status-update ingress. All three funnel through a single apply path
// that updates the stores and appends a ring record only when the
// status actually changed, which makes the racing sources safe to
// combine.
//
// Instance definitions give the service a declarative bootstrap: YAML
// files in a directory become instances on startup, and a filesystem
// watcher picks up new or rewritten files at runtime.
package instance
