// Package client provides the typed HTTP client for the control plane
// API. The reconciler uses it to read desired state and drive lifecycle
// operations; the CLI commands use it for everything they do.
//
// Error responses are translated back into the error kinds of the api
// package, so callers branch with api.IsNotFound and friends exactly as
// they would against the in-process service.
package client
