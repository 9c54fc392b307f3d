package reconciler

import (
	"sync"
)

// auditCapacity bounds the audit log per instance.
const auditCapacity = 100

// auditLog keeps a bounded, FIFO-evicting history of reconciliations
// per instance.
type auditLog struct {
	mu       sync.RWMutex
	entries  map[string][]AuditEntry
	capacity int
}

func newAuditLog(capacity int) *auditLog {
	if capacity <= 0 {
		capacity = auditCapacity
	}
	return &auditLog{
		entries:  make(map[string][]AuditEntry),
		capacity: capacity,
	}
}

func (l *auditLog) append(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[entry.InstanceID]
	if len(history) >= l.capacity {
		history = history[len(history)-l.capacity+1:]
	}
	l.entries[entry.InstanceID] = append(history, entry)
}

// history returns the audit entries for an instance, oldest first.
func (l *auditLog) history(instanceID string) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.entries[instanceID]
	out := make([]AuditEntry, len(history))
	copy(out, history)
	return out
}

// forget drops the history of a deleted instance.
func (l *auditLog) forget(instanceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, instanceID)
}
