package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"maestro/internal/api"
	"maestro/pkg/logging"
)

const reconcilerSubsystem = "Reconciler"

// changeBuffer sizes the channel between the change detector and the
// reconcile loop.
const changeBuffer = 100

// reconcileOutcome tells the cycle how to count an instance.
type reconcileOutcome int

const (
	// outcomeSkipped means drift detection never ran, usually because
	// the configuration could not be fetched.
	outcomeSkipped reconcileOutcome = iota
	outcomeNoDrift
	outcomeReconciled
	outcomeFailed
)

// Reconciler converges the actual state of every known instance toward
// its declared configuration. It runs periodic full cycles over the
// instance list and, when a change detector is attached, reconciles
// individual instances as soon as their configuration changes.
type Reconciler struct {
	config   Config
	api      APIClient
	strategy Strategy
	detector ChangeDetector

	audit   *auditLog
	metrics *metrics
	sem     *semaphore.Weighted
	changes chan string

	mu          sync.Mutex
	lastApplied map[string]*api.DeclaredConfiguration
	inFlight    map[string]bool
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New builds a reconciler over the given API client. Zero values in cfg
// select the documented defaults, and the default strategy is Restart.
// The detector may be nil, in which case only periodic cycles run.
func New(apiClient APIClient, detector ChangeDetector, cfg Config) *Reconciler {
	cfg = cfg.withDefaults()
	return &Reconciler{
		config:      cfg,
		api:         apiClient,
		strategy:    NewRestartStrategy(apiClient, 0),
		detector:    detector,
		audit:       newAuditLog(auditCapacity),
		metrics:     newMetrics(),
		sem:         semaphore.NewWeighted(cfg.Concurrency),
		changes:     make(chan string, changeBuffer),
		lastApplied: make(map[string]*api.DeclaredConfiguration),
		inFlight:    make(map[string]bool),
	}
}

// Start launches the periodic cycle loop and, if a detector is
// attached, the change loop. The first cycle runs immediately so a
// fresh reconciler converges without waiting a full polling interval.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	if r.detector != nil {
		if err := r.detector.Start(r.ctx, r.changes); err != nil {
			logging.Warn(reconcilerSubsystem, "Change detector failed to start, relying on periodic cycles only: %v", err)
		} else {
			r.wg.Add(1)
			go r.changeLoop()
		}
	}

	r.wg.Add(1)
	go r.cycleLoop()

	logging.Info(reconcilerSubsystem, "Started (interval %s, concurrency %d, strategy %s)",
		r.config.PollingInterval, r.config.Concurrency, r.strategy.Name())
	return nil
}

// Stop cancels both loops and waits for in-flight reconciles to drain.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	if r.detector != nil {
		if err := r.detector.Stop(); err != nil {
			logging.Warn(reconcilerSubsystem, "Stopping change detector: %v", err)
		}
	}
	r.wg.Wait()
	logging.Info(reconcilerSubsystem, "Stopped")
}

func (r *Reconciler) cycleLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollingInterval)
	defer ticker.Stop()

	r.RunCycle(r.ctx)

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.RunCycle(r.ctx)
		}
	}
}

func (r *Reconciler) changeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case id := <-r.changes:
			r.metrics.recordEventTriggered()
			if err := r.ReconcileNow(r.ctx, id); err != nil {
				logging.Warn(reconcilerSubsystem, "Event-triggered reconcile of %s: %v", id, err)
			}
		}
	}
}

// RunCycle lists every instance and reconciles the ones that pass the
// status filters, fanning out up to Concurrency instances at a time.
func (r *Reconciler) RunCycle(ctx context.Context) CycleStats {
	instances, err := r.api.ListInstances(ctx)
	if err != nil {
		logging.Error(reconcilerSubsystem, err, "Listing instances for reconcile cycle")
		return CycleStats{StartedAt: time.Now()}
	}

	stats := CycleStats{StartedAt: time.Now()}
	var statsMu sync.Mutex
	var wg sync.WaitGroup

	for _, inst := range instances {
		if r.skipByStatus(inst) {
			statsMu.Lock()
			stats.Skipped++
			statsMu.Unlock()
			continue
		}
		if !r.markInFlight(inst.ID) {
			statsMu.Lock()
			stats.Skipped++
			statsMu.Unlock()
			continue
		}
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.clearInFlight(inst.ID)
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer r.sem.Release(1)
			defer r.clearInFlight(id)

			outcome, _ := r.reconcile(ctx, id, r.strategy)

			statsMu.Lock()
			switch outcome {
			case outcomeNoDrift:
				stats.Checked++
				stats.NoDrift++
			case outcomeReconciled:
				stats.Checked++
				stats.Drift++
				stats.Reconciled++
			case outcomeFailed:
				stats.Checked++
				stats.Drift++
				stats.Failed++
			case outcomeSkipped:
				stats.Skipped++
			}
			statsMu.Unlock()
		}(inst.ID)
	}

	wg.Wait()
	stats.Duration = time.Since(stats.StartedAt)
	r.metrics.recordCycle(stats)

	logging.Info(reconcilerSubsystem, "Cycle done: checked=%d drift=%d reconciled=%d failed=%d skipped=%d in %s",
		stats.Checked, stats.Drift, stats.Reconciled, stats.Failed, stats.Skipped, stats.Duration.Round(time.Millisecond))
	return stats
}

// ReconcileNow reconciles a single instance with the default strategy,
// outside the periodic cycle. A reconcile already in flight for the
// same instance turns this into a no-op.
func (r *Reconciler) ReconcileNow(ctx context.Context, id string) error {
	return r.ReconcileWith(ctx, id, r.strategy)
}

// ReconcileWith is ReconcileNow with an explicit strategy.
func (r *Reconciler) ReconcileWith(ctx context.Context, id string, strategy Strategy) error {
	if !r.markInFlight(id) {
		logging.Debug(reconcilerSubsystem, "Instance %s is already being reconciled", id)
		return nil
	}
	defer r.clearInFlight(id)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	_, err := r.reconcile(ctx, id, strategy)
	return err
}

// reconcile runs drift detection and, when needed, the repair loop for
// one instance. The caller holds the in-flight mark and a semaphore
// slot.
func (r *Reconciler) reconcile(ctx context.Context, id string, strategy Strategy) (reconcileOutcome, error) {
	desired, err := r.api.GetConfiguration(ctx, id)
	if err != nil {
		if api.IsNotFound(err) {
			// Deleted between listing and now. Drop any cached state so
			// a recreated instance starts from a clean slate.
			logging.Debug(reconcilerSubsystem, "Instance %s vanished before reconcile", id)
			r.forget(id)
			return outcomeSkipped, nil
		}
		logging.Warn(reconcilerSubsystem, "Fetching configuration for %s: %v", id, err)
		return outcomeSkipped, err
	}

	drift := detectDrift(id, desired, r.lastAppliedFor(id))
	if !drift.Drifted {
		r.audit.append(AuditEntry{
			InstanceID: id,
			Timestamp:  time.Now(),
			Success:    true,
			Message:    "no drift detected",
		})
		return outcomeNoDrift, nil
	}

	logging.Info(reconcilerSubsystem, "Drift detected for %s: %s", id, strings.Join(drift.Reasons, ", "))

	var lastErr error
	attempts := 0
	for attempts < r.config.MaxRetries {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.ReconcileTimeout)
		applyErr := strategy.Apply(attemptCtx, id, desired)
		cancel()

		if applyErr == nil {
			r.setLastApplied(id, desired)
			r.audit.append(AuditEntry{
				InstanceID: id,
				Timestamp:  time.Now(),
				Drift:      true,
				Reasons:    drift.Reasons,
				Strategy:   strategy.Name(),
				Attempts:   attempts,
				Success:    true,
				Message:    "Successfully reconciled using " + strategy.Name() + " strategy",
			})
			logging.Info(reconcilerSubsystem, "Reconciled %s using %s strategy on attempt %d", id, strategy.Name(), attempts)
			return outcomeReconciled, nil
		}

		lastErr = applyErr
		logging.Warn(reconcilerSubsystem, "Reconcile attempt %d/%d for %s failed: %v", attempts, r.config.MaxRetries, id, applyErr)

		if attempts >= r.config.MaxRetries {
			break
		}
		select {
		case <-time.After(r.config.RetryDelay):
		case <-ctx.Done():
			// Shutdown is not a reconcile failure, leave no audit mark.
			logging.Debug(reconcilerSubsystem, "Reconcile of %s aborted: %v", id, ctx.Err())
			return outcomeSkipped, ctx.Err()
		}
	}

	r.audit.append(AuditEntry{
		InstanceID: id,
		Timestamp:  time.Now(),
		Drift:      true,
		Reasons:    drift.Reasons,
		Strategy:   strategy.Name(),
		Attempts:   attempts,
		Success:    false,
		Message:    "Failed to reconcile using " + strategy.Name() + " strategy: " + lastErr.Error(),
	})
	logging.Error(reconcilerSubsystem, lastErr, "Giving up on %s after %d attempts", id, attempts)
	return outcomeFailed, lastErr
}

// skipByStatus applies the configured status filters.
func (r *Reconciler) skipByStatus(inst *api.Instance) bool {
	switch inst.Status {
	case api.StatusStopped:
		return !r.config.ReconcileStoppedInstances
	case api.StatusError:
		return r.config.SkipErrorInstances
	default:
		return false
	}
}

func (r *Reconciler) markInFlight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[id] {
		return false
	}
	r.inFlight[id] = true
	return true
}

func (r *Reconciler) clearInFlight(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}

func (r *Reconciler) lastAppliedFor(id string) *api.DeclaredConfiguration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastApplied[id]
}

func (r *Reconciler) setLastApplied(id string, cfg *api.DeclaredConfiguration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastApplied[id] = cfg.Clone()
}

// forget drops all cached state for an instance.
func (r *Reconciler) forget(id string) {
	r.mu.Lock()
	delete(r.lastApplied, id)
	r.mu.Unlock()
	r.audit.forget(id)
}

// History returns the audit trail for one instance, oldest first.
func (r *Reconciler) History(id string) []AuditEntry {
	return r.audit.history(id)
}

// GetMetrics returns a snapshot of the accumulated counters.
func (r *Reconciler) GetMetrics() MetricsSummary {
	return r.metrics.summary()
}
