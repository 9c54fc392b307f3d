package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
	"maestro/internal/platform"
	"maestro/pkg/logging"
)

const workerSubsystem = "Worker"

// Health poll intervals per platform. Process state is cheap to read,
// orchestrator queries are not.
const (
	processHealthInterval      = 10 * time.Second
	orchestratorHealthInterval = 15 * time.Second
)

// defaultHealthInterval resolves the poll interval for a platform kind.
func defaultHealthInterval(p api.PlatformKind) time.Duration {
	if p == api.PlatformProcess {
		return processHealthInterval
	}
	return orchestratorHealthInterval
}

// Worker drives one platform kind. It consumes lifecycle commands from
// the platform's command channel, executes them against the driver, and
// broadcasts the resulting lifecycle and status events. A health
// monitor loop watches tracked instances for transitions the commands
// did not cause (crashes, orchestrator-side state changes).
type Worker struct {
	bus            *bus.Bus
	driver         platform.Driver
	platform       api.PlatformKind
	healthInterval time.Duration

	// statuses is the worker's last known status per instance. It
	// feeds the old-status side of broadcast transitions and lets the
	// health monitor emit each transition exactly once.
	mu       sync.Mutex
	statuses map[string]api.InstanceStatus

	cancel      context.CancelFunc
	unsubscribe func()
	monitorDone chan struct{}
}

// New creates a worker for the driver's platform. A zero healthInterval
// selects the platform default.
func New(b *bus.Bus, driver platform.Driver, healthInterval time.Duration) *Worker {
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval(driver.Platform())
	}
	return &Worker{
		bus:            b,
		driver:         driver,
		platform:       driver.Platform(),
		healthInterval: healthInterval,
		statuses:       make(map[string]api.InstanceStatus),
	}
}

// Start verifies the platform is usable, subscribes to the command
// channel and launches the health monitor. It returns once the worker
// is consuming commands.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.driver.Available(ctx); err != nil {
		return fmt.Errorf("platform %s is not available: %w", w.platform, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	unsubscribe, err := bus.Subscribe(runCtx, w.bus, api.CommandChannel(w.platform), w.handleCommand)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to %s: %w", api.CommandChannel(w.platform), err)
	}
	w.unsubscribe = unsubscribe

	w.monitorDone = make(chan struct{})
	go w.runHealthMonitor(runCtx)

	logging.Info(workerSubsystem, "Started %s worker (health interval %s)", w.platform, w.healthInterval)
	return nil
}

// Stop unsubscribes from the command channel and waits for the health
// monitor to exit. Managed servers keep running; stopping the worker
// does not stop its instances.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	if w.monitorDone != nil {
		<-w.monitorDone
	}
	logging.Info(workerSubsystem, "Stopped %s worker", w.platform)
}

// handleCommand executes one lifecycle command and, when the command
// arrived with a reply channel, publishes the response there. Commands
// without a reply channel are fire-and-forget.
func (w *Worker) handleCommand(ctx context.Context, cmd api.Command, replyChannel string) {
	logging.Debug(workerSubsystem, "Received %s command for %s", cmd.Kind, cmd.InstanceID)

	var info *api.RuntimeInfo
	var err error

	switch cmd.Kind {
	case api.CommandStart:
		info, err = w.handleStart(ctx, cmd)
	case api.CommandStop:
		info, err = w.handleStop(ctx, cmd)
	case api.CommandRestart:
		info, err = w.handleRestart(ctx, cmd)
	case api.CommandDelete:
		info, err = w.handleDelete(ctx, cmd)
	default:
		err = api.NewValidationError("kind", fmt.Sprintf("unknown command kind %q", cmd.Kind))
	}

	if err != nil {
		logging.Error(workerSubsystem, err, "Command %s failed for %s", cmd.Kind, cmd.InstanceID)
		// Rejected commands never ran and not-found targets have
		// nothing to flip; only execution failures move an instance
		// to Error.
		if !api.IsValidation(err) && !api.IsNotFound(err) {
			w.broadcastError(ctx, cmd, err)
		}
	}

	if replyChannel == "" {
		return
	}

	resp := api.Response{
		InstanceID:    cmd.InstanceID,
		Success:       err == nil,
		RuntimeInfo:   info,
		CorrelationID: cmd.CorrelationID,
	}
	if err != nil {
		resp.ErrorMessage = err.Error()
		resp.ErrorKind = api.ErrorKindOf(err)
	}
	if pubErr := w.bus.Publish(ctx, replyChannel, resp); pubErr != nil {
		logging.Error(workerSubsystem, pubErr, "Failed to publish reply for %s command on %s", cmd.Kind, cmd.InstanceID)
	}
}

func (w *Worker) handleStart(ctx context.Context, cmd api.Command) (*api.RuntimeInfo, error) {
	if cmd.Configuration == nil {
		return nil, api.NewValidationError("configuration", "start command carries no declared configuration")
	}

	info, err := w.driver.Start(ctx, cmd.InstanceID, *cmd.Configuration)
	if err != nil {
		return nil, err
	}

	old := w.swapStatus(cmd.InstanceID, api.StatusRunning, api.StatusStopped)
	w.publishEvent(ctx, api.EventsChannel, api.EventInstanceStarted, cmd)
	w.publishStatusChange(ctx, cmd.InstanceID, cmd.CorrelationID, old, api.StatusRunning, nil)
	logging.Info(workerSubsystem, "Started instance %s", cmd.InstanceID)
	return info, nil
}

func (w *Worker) handleStop(ctx context.Context, cmd api.Command) (*api.RuntimeInfo, error) {
	info, err := w.driver.Stop(ctx, cmd.InstanceID)
	if err != nil {
		return nil, err
	}

	old := w.swapStatus(cmd.InstanceID, api.StatusStopped, api.StatusRunning)
	w.publishEvent(ctx, api.EventsChannel, api.EventInstanceStopped, cmd)
	w.publishStatusChange(ctx, cmd.InstanceID, cmd.CorrelationID, old, api.StatusStopped, nil)
	logging.Info(workerSubsystem, "Stopped instance %s", cmd.InstanceID)
	return info, nil
}

func (w *Worker) handleRestart(ctx context.Context, cmd api.Command) (*api.RuntimeInfo, error) {
	info, err := w.driver.Restart(ctx, cmd.InstanceID, cmd.Configuration)
	if err != nil {
		return nil, err
	}
	if info == nil {
		// Stop-only restart of an instance that was never running;
		// nothing changed.
		return nil, nil
	}

	if info.Status == api.StatusRunning {
		old := w.swapStatus(cmd.InstanceID, api.StatusRunning, api.StatusStopped)
		w.publishEvent(ctx, api.EventsChannel, api.EventInstanceStarted, cmd)
		w.publishStatusChange(ctx, cmd.InstanceID, cmd.CorrelationID, old, api.StatusRunning, nil)
		logging.Info(workerSubsystem, "Restarted instance %s", cmd.InstanceID)
		return info, nil
	}

	// The restart degraded to a stop (no configuration to start with).
	old := w.swapStatus(cmd.InstanceID, info.Status, api.StatusRunning)
	w.publishEvent(ctx, api.EventsChannel, api.EventInstanceStopped, cmd)
	w.publishStatusChange(ctx, cmd.InstanceID, cmd.CorrelationID, old, info.Status, nil)
	return info, nil
}

func (w *Worker) handleDelete(ctx context.Context, cmd api.Command) (*api.RuntimeInfo, error) {
	info, err := w.driver.Stop(ctx, cmd.InstanceID)
	if err != nil && !api.IsNotFound(err) {
		return nil, err
	}

	if purger, ok := w.driver.(platform.Purger); ok {
		if err := purger.Purge(ctx, cmd.InstanceID); err != nil {
			return nil, err
		}
	}

	w.mu.Lock()
	delete(w.statuses, cmd.InstanceID)
	w.mu.Unlock()

	w.publishEvent(ctx, api.EventsChannel, api.EventInstanceDeleted, cmd)
	logging.Info(workerSubsystem, "Deleted instance %s", cmd.InstanceID)
	return info, nil
}

// broadcastError flips the instance to Error on the status channel
// after a failed command.
func (w *Worker) broadcastError(ctx context.Context, cmd api.Command, cmdErr error) {
	old := w.swapStatus(cmd.InstanceID, api.StatusError, api.StatusCreated)
	w.publishStatusChange(ctx, cmd.InstanceID, cmd.CorrelationID, old, api.StatusError, map[string]string{
		"error": cmdErr.Error(),
	})
}

// swapStatus records the new status and returns the previous one, or
// fallback when the instance was not seen before.
func (w *Worker) swapStatus(instanceID string, next, fallback api.InstanceStatus) api.InstanceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	old, ok := w.statuses[instanceID]
	if !ok {
		old = fallback
	}
	w.statuses[instanceID] = next
	return old
}

func (w *Worker) publishEvent(ctx context.Context, channel string, eventType api.EventType, cmd api.Command) {
	ev := api.Event{
		Type:          eventType,
		InstanceID:    cmd.InstanceID,
		CorrelationID: cmd.CorrelationID,
		Timestamp:     time.Now(),
	}
	if err := w.bus.Publish(ctx, channel, ev); err != nil {
		logging.Error(workerSubsystem, err, "Failed to publish %s for %s", eventType, cmd.InstanceID)
	}
}

func (w *Worker) publishStatusChange(ctx context.Context, instanceID, correlationID string, old, next api.InstanceStatus, metadata map[string]string) {
	ev := api.Event{
		Type:          api.EventInstanceStatusChanged,
		InstanceID:    instanceID,
		CorrelationID: correlationID,
		OldStatus:     old,
		NewStatus:     next,
		Source:        api.SourceWorker,
		Metadata:      metadata,
		Timestamp:     time.Now(),
	}
	if err := w.bus.Publish(ctx, api.StatusChannel, ev); err != nil {
		logging.Error(workerSubsystem, err, "Failed to publish status change for %s", instanceID)
	}
}
