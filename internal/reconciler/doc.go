// Package reconciler keeps running instances converged with their
// declared configuration.
//
// A Reconciler periodically lists all instances through an APIClient,
// compares each declared configuration against the configuration it
// last applied, and repairs any drift with a Strategy (by default
// Restart, a stop followed by a start with the desired configuration).
// Failed repairs are retried a bounded number of times with a fixed
// delay, and every decision lands in a per-instance audit trail.
//
// Between cycles, an optional ChangeDetector shortens the reaction
// time: BusDetector watches the broadcast status channel for
// ConfigurationChanged transitions, while PollingDetector polls the
// status change ring over HTTP for deployments where the reconciler
// has no bus access. Either way the affected instance is reconciled
// immediately instead of waiting for the next full cycle.
//
// The reconciler is deliberately stateless beyond its in-memory
// last-applied cache: on restart the first cycle treats every instance
// as never reconciled, re-applies configurations where needed, and
// converges from there.
package reconciler
