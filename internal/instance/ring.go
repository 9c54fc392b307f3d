package instance

import (
	"sync"
	"time"

	"maestro/internal/api"
)

// statusRingCapacity bounds the ring of recent status changes.
const statusRingCapacity = 1000

// statusRing is a bounded, time-ordered record of status transitions.
// Once full, appending evicts the oldest entry. A single lock covers
// writes and reads; readers always observe a consistent suffix.
type statusRing struct {
	mu      sync.RWMutex
	entries []api.StatusChangeRecord
	head    int
	size    int
}

func newStatusRing(capacity int) *statusRing {
	if capacity <= 0 {
		capacity = statusRingCapacity
	}
	return &statusRing{entries: make([]api.StatusChangeRecord, capacity)}
}

func (r *statusRing) append(rec api.StatusChangeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.entries)
	if r.size < capacity {
		r.entries[(r.head+r.size)%capacity] = rec
		r.size++
		return
	}
	r.entries[r.head] = rec
	r.head = (r.head + 1) % capacity
}

// recent returns the records with timestamp at or after since, oldest
// first, optionally narrowed to one resulting status.
func (r *statusRing) recent(since time.Time, statusFilter api.InstanceStatus) []api.StatusChangeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capacity := len(r.entries)
	out := make([]api.StatusChangeRecord, 0)
	for i := 0; i < r.size; i++ {
		rec := r.entries[(r.head+i)%capacity]
		if rec.Timestamp.Before(since) {
			continue
		}
		if statusFilter != "" && rec.NewStatus != statusFilter {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (r *statusRing) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
