package reconciler

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"maestro/internal/api"
)

// detectDrift compares the desired configuration against the last
// applied one. A missing lastApplied always counts as drift: the
// reconciler has never converged this instance.
func detectDrift(instanceID string, desired, lastApplied *api.DeclaredConfiguration) DriftResult {
	result := DriftResult{InstanceID: instanceID}

	if lastApplied == nil {
		result.Drifted = true
		result.Reasons = []string{"no configuration applied yet"}
		return result
	}

	if lastApplied.Host != desired.Host {
		result.Reasons = append(result.Reasons, fmt.Sprintf("host: %s -> %s", lastApplied.Host, desired.Host))
	}
	if lastApplied.Port != desired.Port {
		result.Reasons = append(result.Reasons, fmt.Sprintf("port: %d -> %d", lastApplied.Port, desired.Port))
	}
	if lastApplied.LogLevel != desired.LogLevel {
		result.Reasons = append(result.Reasons, fmt.Sprintf("logLevel: %s -> %s", lastApplied.LogLevel, desired.LogLevel))
	}

	result.Reasons = append(result.Reasons, diffRecords("sources", lastApplied.Sources, desired.Sources)...)
	result.Reasons = append(result.Reasons, diffRecords("queries", lastApplied.Queries, desired.Queries)...)
	result.Reasons = append(result.Reasons, diffRecords("reactions", lastApplied.Reactions, desired.Reactions)...)

	result.Drifted = len(result.Reasons) > 0
	return result
}

// diffRecords reports a length change with both counts, and otherwise
// falls back to a structural comparison so a changed record inside a
// same-length list still counts as drift.
func diffRecords(field string, applied, desired []api.ConfigRecord) []string {
	if len(applied) != len(desired) {
		return []string{fmt.Sprintf("%s: %d -> %d records", field, len(applied), len(desired))}
	}
	if !cmp.Equal(applied, desired) {
		return []string{fmt.Sprintf("%s: records changed", field)}
	}
	return nil
}
