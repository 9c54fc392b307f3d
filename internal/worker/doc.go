// Package worker implements the platform worker node. A worker owns
// exactly one platform driver and two loops on top of it.
//
// The command consumer subscribes to the platform's command channel
// (instance.commands.{platform}) and executes Start, Stop, Restart and
// Delete against the driver. Commands that arrived through the bus
// request primitive carry a reply channel and get a response; plain
// publishes are fire-and-forget. Every executed command broadcasts the
// matching lifecycle event on instance.events and the status transition
// on status.events.
//
// The health monitor periodically asks the driver for the live state of
// every tracked instance and broadcasts transitions that no command
// caused, such as a crashed process or a pod the orchestrator evicted.
//
// Workers are stateless apart from the last-seen status per instance;
// stopping a worker does not stop its managed servers.
package worker
