package platform

import (
	"fmt"
	"net"
	"sync"

	"maestro/pkg/logging"
)

const (
	// DefaultPortRangeStart is the first port the allocator hands out.
	DefaultPortRangeStart = 8080
	// DefaultPortRangeEnd is the last port the allocator hands out.
	DefaultPortRangeEnd = 9000
)

// netListen is a variable to allow stubbing the availability probe in tests.
var netListen = net.Listen

// PortAllocator hands out listen ports for managed servers from a fixed
// pool. Reservations are tracked per instance so a release by anyone
// but the owner is refused. Reservations do not survive a worker
// restart.
type PortAllocator struct {
	mu sync.Mutex

	start int
	end   int

	// reserved maps port -> owning instance id
	reserved map[int]string
}

// NewPortAllocator creates an allocator over [start, end].
func NewPortAllocator(start, end int) *PortAllocator {
	return &PortAllocator{
		start:    start,
		end:      end,
		reserved: make(map[int]string),
	}
}

// NewDefaultPortAllocator creates an allocator over the default pool.
func NewDefaultPortAllocator() *PortAllocator {
	return NewPortAllocator(DefaultPortRangeStart, DefaultPortRangeEnd)
}

// Allocate reserves the lowest free port in the pool for instanceID.
// Ports that are reserved, or that something else on the host already
// listens on, are skipped.
func (a *PortAllocator) Allocate(instanceID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.start; port <= a.end; port++ {
		if owner, taken := a.reserved[port]; taken {
			logging.Debug("PortAllocator", "Port %d already reserved by instance %s, skipping", port, owner)
			continue
		}

		// Check the port is actually free on the host before handing it out.
		ln, err := netListen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			logging.Debug("PortAllocator", "Port %d not available: %v", port, err)
			continue
		}
		ln.Close()

		a.reserved[port] = instanceID
		logging.Debug("PortAllocator", "Reserved port %d for instance %s", port, instanceID)
		return port, nil
	}

	return 0, fmt.Errorf("no free port in pool %d-%d", a.start, a.end)
}

// Release returns a port to the pool. Only the owning instance may
// release it; anything else is logged and ignored.
func (a *PortAllocator) Release(port int, instanceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	owner, taken := a.reserved[port]
	if !taken {
		logging.Debug("PortAllocator", "Port %d was not reserved, nothing to release", port)
		return
	}
	if owner != instanceID {
		logging.Warn("PortAllocator", "Port %d is reserved by instance %s, refusing release by %s", port, owner, instanceID)
		return
	}

	delete(a.reserved, port)
	logging.Debug("PortAllocator", "Released port %d from instance %s", port, instanceID)
}

// IsAllocated reports whether the pool currently has a reservation for
// the port.
func (a *PortAllocator) IsAllocated(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, taken := a.reserved[port]
	return taken
}
