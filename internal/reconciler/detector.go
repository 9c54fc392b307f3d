package reconciler

import (
	"context"
	"sync"
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
	"maestro/pkg/logging"
)

const detectorSubsystem = "ChangeDetector"

// defaultPollInterval spaces ring polls in the polling detector.
const defaultPollInterval = 5 * time.Second

// BusDetector watches the broadcast status channel and reports every
// instance whose status flips to ConfigurationChanged.
type BusDetector struct {
	bus *bus.Bus

	mu          sync.Mutex
	unsubscribe func()
}

// NewBusDetector builds a detector over the given bus.
func NewBusDetector(b *bus.Bus) *BusDetector {
	return &BusDetector{bus: b}
}

func (d *BusDetector) Start(ctx context.Context, changes chan<- string) error {
	unsubscribe, err := bus.Subscribe(ctx, d.bus, api.StatusChannel, func(_ context.Context, ev api.Event, _ string) {
		if ev.Type != api.EventInstanceStatusChanged || ev.NewStatus != api.StatusConfigurationChanged {
			return
		}
		select {
		case changes <- ev.InstanceID:
		default:
			// The periodic cycle will pick the instance up anyway.
			logging.Warn(detectorSubsystem, "Change channel full, dropping event for %s", ev.InstanceID)
		}
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.unsubscribe = unsubscribe
	d.mu.Unlock()

	logging.Info(detectorSubsystem, "Watching %s for configuration changes", api.StatusChannel)
	return nil
}

func (d *BusDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	return nil
}

// PollingDetector polls the status change ring over the API for
// ConfigurationChanged records. This is the fallback for reconcilers
// that only have HTTP access to the control plane.
type PollingDetector struct {
	api      APIClient
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// NewPollingDetector builds a detector polling at the given interval.
// A zero interval selects the 5 s default.
func NewPollingDetector(apiClient APIClient, interval time.Duration) *PollingDetector {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PollingDetector{api: apiClient, interval: interval}
}

func (d *PollingDetector) Start(ctx context.Context, changes chan<- string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.done = make(chan struct{})

	// Only changes from now on; the reconciler's initial cycle covers
	// anything older.
	go d.poll(ctx, changes, time.Now())

	logging.Info(detectorSubsystem, "Polling for configuration changes every %s", d.interval)
	return nil
}

func (d *PollingDetector) poll(ctx context.Context, changes chan<- string, since time.Time) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
		}

		records, err := d.api.GetRecentChanges(ctx, since, api.StatusConfigurationChanged)
		if err != nil {
			logging.Warn(detectorSubsystem, "Polling status changes: %v", err)
			continue
		}

		for _, record := range records {
			select {
			case changes <- record.InstanceID:
			default:
				logging.Warn(detectorSubsystem, "Change channel full, dropping record for %s", record.InstanceID)
			}
			if record.Timestamp.After(since) {
				since = record.Timestamp
			}
		}
		// Advance past the newest record so the next poll does not
		// return it again.
		if len(records) > 0 {
			since = since.Add(time.Nanosecond)
		}
	}
}

func (d *PollingDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false
	close(d.stopCh)
	<-d.done
	return nil
}
