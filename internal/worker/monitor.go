package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"maestro/internal/api"
	"maestro/internal/platform"
	"maestro/pkg/logging"
)

// runHealthMonitor polls the driver for the live state of every tracked
// instance and broadcasts transitions the command path did not cause:
// crashed processes, containers stopped behind our back, pods evicted
// by the orchestrator.
func (w *Worker) runHealthMonitor(ctx context.Context) {
	defer close(w.monitorDone)

	ticker := time.NewTicker(w.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkTrackedInstances(ctx)
		}
	}
}

func (w *Worker) checkTrackedInstances(ctx context.Context) {
	infos, err := w.driver.ListAll(ctx)
	if err != nil {
		logging.Error(workerSubsystem, err, "Health monitor failed to list instances")
		return
	}

	for _, tracked := range infos {
		// Status queries live platform state; ListAll may be a cache.
		info, err := w.driver.Status(ctx, tracked.InstanceID)
		if err != nil {
			if api.IsNotFound(err) {
				w.mu.Lock()
				delete(w.statuses, tracked.InstanceID)
				w.mu.Unlock()
				continue
			}
			logging.Warn(workerSubsystem, "Health check for %s failed: %v", tracked.InstanceID, err)
			continue
		}
		w.recordObservedStatus(ctx, info)
	}
}

// recordObservedStatus emits a status change iff the observed status
// differs from the last one this worker saw. The first observation of
// an instance only establishes the baseline. Once a crash has been
// announced the exited instance is dropped from tracking, so a later
// Stop for it replies NotFound instead of succeeding against a corpse.
func (w *Worker) recordObservedStatus(ctx context.Context, info *api.RuntimeInfo) {
	w.mu.Lock()
	old, seen := w.statuses[info.InstanceID]
	w.statuses[info.InstanceID] = info.Status
	w.mu.Unlock()

	if !seen || old == info.Status {
		return
	}

	logging.Info(workerSubsystem, "Instance %s transitioned %s -> %s", info.InstanceID, old, info.Status)
	w.publishStatusChange(ctx, info.InstanceID, uuid.NewString(), old, info.Status, info.Metadata)

	if info.Status != api.StatusError {
		return
	}
	if f, ok := w.driver.(platform.Forgetter); ok {
		f.Forget(info.InstanceID)
		w.mu.Lock()
		delete(w.statuses, info.InstanceID)
		w.mu.Unlock()
	}
}
