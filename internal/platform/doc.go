// Package platform defines the driver contract between workers and the
// hosting platforms that run managed servers.
//
// A Driver knows how to start, stop, restart and observe managed
// servers on exactly one platform kind. Three implementations live in
// the subpackages:
//
//   - process: bare OS processes launched from a configured executable
//   - container: containers driven through the docker CLI
//   - pod: pods created through the Kubernetes API
//
// The package also provides the shared PortAllocator used by the
// process and container drivers, and helpers for materializing declared
// configuration into the YAML file the managed server reads.
package platform
