package reconciler

import (
	"sync"
	"time"
)

// CycleStats summarizes one periodic reconcile cycle. Checked splits
// into drift and no-drift, drift splits into reconciled and failed;
// skipped instances were filtered out before any drift check.
type CycleStats struct {
	Checked    int64 `json:"checked"`
	Drift      int64 `json:"drift"`
	NoDrift    int64 `json:"noDrift"`
	Reconciled int64 `json:"reconciled"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// MetricsSummary is a read-only snapshot of reconciler totals.
type MetricsSummary struct {
	Cycles          int64      `json:"cycles"`
	TotalChecked    int64      `json:"totalChecked"`
	TotalDrift      int64      `json:"totalDrift"`
	TotalReconciled int64      `json:"totalReconciled"`
	TotalFailed     int64      `json:"totalFailed"`
	TotalSkipped    int64      `json:"totalSkipped"`
	EventTriggered  int64      `json:"eventTriggered"`
	LastCycle       CycleStats `json:"lastCycle"`
}

// metrics tracks reconciler counters. Plain counters under a mutex;
// GetMetrics on the reconciler exposes a snapshot.
type metrics struct {
	mu sync.Mutex

	cycles          int64
	totalChecked    int64
	totalDrift      int64
	totalReconciled int64
	totalFailed     int64
	totalSkipped    int64
	eventTriggered  int64
	lastCycle       CycleStats
}

func newMetrics() *metrics {
	return &metrics{}
}

func (m *metrics) recordCycle(stats CycleStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cycles++
	m.totalChecked += stats.Checked
	m.totalDrift += stats.Drift
	m.totalReconciled += stats.Reconciled
	m.totalFailed += stats.Failed
	m.totalSkipped += stats.Skipped
	m.lastCycle = stats
}

func (m *metrics) recordEventTriggered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventTriggered++
}

func (m *metrics) summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MetricsSummary{
		Cycles:          m.cycles,
		TotalChecked:    m.totalChecked,
		TotalDrift:      m.totalDrift,
		TotalReconciled: m.totalReconciled,
		TotalFailed:     m.totalFailed,
		TotalSkipped:    m.totalSkipped,
		EventTriggered:  m.eventTriggered,
		LastCycle:       m.lastCycle,
	}
}
