// Package cli provides the output side of the client commands: table,
// wide, json and yaml rendering of API objects, the shared command
// flags, spinner-wrapped waits for slow lifecycle calls, and the exit
// code mapping for scripted use.
//
// Tables are plain kubectl-style output on purpose: uppercase headers,
// space alignment, no box drawing, so results pipe cleanly into grep
// and awk. Structured output renders the wire form, so json and yaml
// field names match the HTTP API exactly.
package cli
