package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"maestro/internal/api"
	"maestro/internal/bus"
	"maestro/pkg/logging"
)

const serviceSubsystem = "InstanceService"

// defaultRequestTimeout bounds synchronous command round-trips to a
// platform worker.
const defaultRequestTimeout = 30 * time.Second

const (
	defaultHost     = "127.0.0.1"
	defaultLogLevel = "info"
)

// Config carries the tunables of the instance service.
type Config struct {
	// RequestTimeout bounds every synchronous command round-trip. Zero
	// means the 30 s default.
	RequestTimeout time.Duration

	// RingCapacity bounds the status change ring. Zero means 1000.
	RingCapacity int
}

// Service owns the declarative side of the control plane: instance
// metadata, declared configurations, the runtime info cache, and the
// status change ring. It translates user intent into commands on the
// bus and ingests status observations back into its stores.
type Service struct {
	bus      *bus.Bus
	metadata *metadataStore
	configs  *configStore
	runtimes *runtimeStore
	ring     *statusRing

	requestTimeout time.Duration

	// opMu guards ops, the per-instance serialization locks. One
	// lifecycle command per instance is in flight at any moment.
	opMu sync.Mutex
	ops  map[string]*sync.Mutex

	cancel       func()
	unsubscribes []func()
}

// New creates an instance service on the given bus.
func New(b *bus.Bus, cfg Config) *Service {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Service{
		bus:            b,
		metadata:       newMetadataStore(),
		configs:        newConfigStore(),
		runtimes:       newRuntimeStore(),
		ring:           newStatusRing(cfg.RingCapacity),
		requestTimeout: timeout,
		ops:            make(map[string]*sync.Mutex),
	}
}

// Start subscribes the service to the broadcast channels. Status events
// feed the ring and the stores; lifecycle events prune the runtime
// cache when a worker confirms teardown.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	unsubStatus, err := bus.Subscribe(runCtx, s.bus, api.StatusChannel, s.onStatusEvent)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to status events: %w", err)
	}
	s.unsubscribes = append(s.unsubscribes, unsubStatus)

	unsubEvents, err := bus.Subscribe(runCtx, s.bus, api.EventsChannel, s.onLifecycleEvent)
	if err != nil {
		cancel()
		unsubStatus()
		return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
	}
	s.unsubscribes = append(s.unsubscribes, unsubEvents)

	logging.Info(serviceSubsystem, "Instance service started (request timeout %s)", s.requestTimeout)
	return nil
}

// Stop releases the bus subscriptions. Stores keep their contents so a
// restart within the same process resumes where it left off.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
	s.unsubscribes = nil
	logging.Info(serviceSubsystem, "Instance service stopped")
}

// Create allocates an id, persists the metadata with status Created,
// and initializes the declared configuration from the provided binding,
// filling defaults.
func (s *Service) Create(ctx context.Context, req api.CreateInstanceRequest) (*api.Instance, error) {
	if req.Name == "" {
		return nil, api.NewValidationError("name", "name is required")
	}
	if !req.Platform.Valid() {
		return nil, api.NewValidationError("platformKind", fmt.Sprintf("unknown platform %q", req.Platform))
	}

	cfg := &api.DeclaredConfiguration{ServerBinding: api.ServerBinding{Host: defaultHost, LogLevel: defaultLogLevel}}
	if req.Binding != nil {
		cfg.ServerBinding = *req.Binding
		if cfg.Host == "" {
			cfg.Host = defaultHost
		}
		if cfg.LogLevel == "" {
			cfg.LogLevel = defaultLogLevel
		}
	}
	normalizeConfiguration(cfg)
	if err := validateConfiguration(cfg); err != nil {
		return nil, err
	}

	now := time.Now()
	inst := &api.Instance{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Description:    req.Description,
		Platform:       req.Platform,
		Status:         api.StatusCreated,
		CreatedAt:      now,
		LastModifiedAt: now,
		Tags:           req.Tags,
	}

	s.metadata.put(inst)
	s.configs.put(inst.ID, cfg)
	s.ring.append(api.StatusChangeRecord{
		InstanceID: inst.ID,
		NewStatus:  api.StatusCreated,
		Source:     api.SourceAPI,
		Timestamp:  now,
	})

	logging.Info(serviceSubsystem, "Created instance %s (%s) on platform %s", inst.ID, inst.Name, inst.Platform)
	return inst.Clone(), nil
}

// Get returns the metadata of one instance.
func (s *Service) Get(ctx context.Context, id string) (*api.Instance, error) {
	inst, ok := s.metadata.get(id)
	if !ok {
		return nil, api.NewInstanceNotFoundError(id)
	}
	return inst, nil
}

// List returns all instances, sorted by name.
func (s *Service) List(ctx context.Context) []*api.Instance {
	return s.metadata.list()
}

// GetConfiguration returns the declared configuration of one instance.
func (s *Service) GetConfiguration(ctx context.Context, id string) (*api.DeclaredConfiguration, error) {
	cfg, ok := s.configs.get(id)
	if !ok {
		if _, exists := s.metadata.get(id); !exists {
			return nil, api.NewInstanceNotFoundError(id)
		}
		return nil, api.NewConfigurationNotFoundError(id)
	}
	return cfg, nil
}

// GetRuntime returns the last observed runtime info of one instance.
// Absence means the instance never started, or the cache was lost to a
// restart.
func (s *Service) GetRuntime(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	if _, exists := s.metadata.get(id); !exists {
		return nil, api.NewInstanceNotFoundError(id)
	}
	info, ok := s.runtimes.get(id)
	if !ok {
		return nil, api.NewRuntimeNotFoundError(id)
	}
	return info, nil
}

// PatchConfiguration applies an RFC 6902 patch to the declared
// configuration, marks the instance ConfigurationChanged, and announces
// the change so the reconciler converges the running server.
func (s *Service) PatchConfiguration(ctx context.Context, id string, rawPatch []byte) (*api.DeclaredConfiguration, error) {
	inst, ok := s.metadata.get(id)
	if !ok {
		return nil, api.NewInstanceNotFoundError(id)
	}

	lock := s.instanceLock(id)
	lock.Lock()
	defer lock.Unlock()

	cfg, ok := s.configs.get(id)
	if !ok {
		return nil, api.NewConfigurationNotFoundError(id)
	}

	patched, err := applyPatch(cfg, rawPatch)
	if err != nil {
		return nil, err
	}
	s.configs.put(id, patched)
	s.markConfigurationChanged(ctx, id)

	logging.Info(serviceSubsystem, "Patched configuration of instance %s (%s)", id, inst.Name)
	return patched.Clone(), nil
}

// markConfigurationChanged raises the ConfigurationChanged marker,
// records it in the ring, and announces the change on both the status
// and the configuration channels.
func (s *Service) markConfigurationChanged(ctx context.Context, id string) {
	correlationID := uuid.NewString()
	if old, changed := s.applyStatus(id, api.StatusConfigurationChanged, api.SourceAPI, nil); changed {
		s.broadcastStatus(ctx, id, correlationID, old, api.StatusConfigurationChanged, api.SourceAPI, nil)
	}
	s.publishEvent(ctx, api.ConfigurationChannel, api.Event{
		Type:          api.EventConfigurationChanged,
		InstanceID:    id,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	})
}

// StartInstance sends a Start command to the instance's platform and
// waits for the worker's reply. When no configuration override is
// given, the stored declared configuration is sent.
func (s *Service) StartInstance(ctx context.Context, id string, override *api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	inst, ok := s.metadata.get(id)
	if !ok {
		return nil, api.NewInstanceNotFoundError(id)
	}

	cfg := override
	if cfg == nil {
		stored, ok := s.configs.get(id)
		if !ok {
			return nil, api.NewConfigurationNotFoundError(id)
		}
		cfg = stored
	}

	lock := s.instanceLock(id)
	lock.Lock()
	defer lock.Unlock()

	resp, err := s.sendCommand(ctx, inst.Platform, api.Command{
		Kind:          api.CommandStart,
		InstanceID:    id,
		Configuration: cfg,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	s.runtimes.put(resp.RuntimeInfo)
	s.applyStatus(id, statusFromResponse(resp, api.StatusRunning), api.SourceAPI, nil)
	logging.Info(serviceSubsystem, "Started instance %s", id)
	return resp.RuntimeInfo, nil
}

// StopInstance sends a Stop command and waits for the worker's reply.
func (s *Service) StopInstance(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	inst, ok := s.metadata.get(id)
	if !ok {
		return nil, api.NewInstanceNotFoundError(id)
	}

	lock := s.instanceLock(id)
	lock.Lock()
	defer lock.Unlock()

	resp, err := s.sendCommand(ctx, inst.Platform, api.Command{
		Kind:          api.CommandStop,
		InstanceID:    id,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	s.runtimes.put(resp.RuntimeInfo)
	s.applyStatus(id, statusFromResponse(resp, api.StatusStopped), api.SourceAPI, nil)
	logging.Info(serviceSubsystem, "Stopped instance %s", id)
	return resp.RuntimeInfo, nil
}

// RestartInstance sends a Restart command carrying the stored declared
// configuration, so the worker performs a full stop and start cycle
// rather than a stop-only restart.
func (s *Service) RestartInstance(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	inst, ok := s.metadata.get(id)
	if !ok {
		return nil, api.NewInstanceNotFoundError(id)
	}
	cfg, ok := s.configs.get(id)
	if !ok {
		return nil, api.NewConfigurationNotFoundError(id)
	}

	lock := s.instanceLock(id)
	lock.Lock()
	defer lock.Unlock()

	resp, err := s.sendCommand(ctx, inst.Platform, api.Command{
		Kind:          api.CommandRestart,
		InstanceID:    id,
		Configuration: cfg,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	s.runtimes.put(resp.RuntimeInfo)
	s.applyStatus(id, statusFromResponse(resp, api.StatusRunning), api.SourceAPI, nil)
	logging.Info(serviceSubsystem, "Restarted instance %s", id)
	return resp.RuntimeInfo, nil
}

// Delete sends a Delete command and removes the instance's metadata,
// configuration, and runtime info only after the worker confirms the
// teardown. A timeout or failure keeps the records in place.
func (s *Service) Delete(ctx context.Context, id string) error {
	inst, ok := s.metadata.get(id)
	if !ok {
		return api.NewInstanceNotFoundError(id)
	}

	lock := s.instanceLock(id)
	lock.Lock()
	_, err := s.sendCommand(ctx, inst.Platform, api.Command{
		Kind:          api.CommandDelete,
		InstanceID:    id,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		lock.Unlock()
		return err
	}

	s.metadata.delete(id)
	s.configs.delete(id)
	s.runtimes.delete(id)
	lock.Unlock()
	s.forgetLock(id)

	logging.Info(serviceSubsystem, "Deleted instance %s (%s)", id, inst.Name)
	return nil
}

// ReceiveStatusUpdate is the ingress path for externally observed
// status. It records the transition if the status actually changed and
// rebroadcasts it on the status channel. No command is published; the
// update is informational.
func (s *Service) ReceiveStatusUpdate(ctx context.Context, update api.StatusUpdate) error {
	if !update.Status.Valid() {
		return api.NewValidationError("status", fmt.Sprintf("unknown status %q", update.Status))
	}
	if _, ok := s.metadata.get(update.InstanceID); !ok {
		return api.NewInstanceNotFoundError(update.InstanceID)
	}
	source := update.Source
	if source == "" {
		source = "external"
	}

	old, changed := s.applyStatus(update.InstanceID, update.Status, source, update.Metadata)
	if !changed {
		return nil
	}
	s.broadcastStatus(ctx, update.InstanceID, uuid.NewString(), old, update.Status, source, update.Metadata)
	logging.Debug(serviceSubsystem, "Status update for %s: %s -> %s (source %s)",
		update.InstanceID, old, update.Status, source)
	return nil
}

// GetRecentChanges returns the ring records with timestamp at or after
// since, optionally narrowed to one resulting status.
func (s *Service) GetRecentChanges(ctx context.Context, since time.Time, statusFilter api.InstanceStatus) ([]api.StatusChangeRecord, error) {
	if statusFilter != "" && !statusFilter.Valid() {
		return nil, api.NewValidationError("statusFilter", fmt.Sprintf("unknown status %q", statusFilter))
	}
	return s.ring.recent(since, statusFilter), nil
}

// sendCommand performs one synchronous command round-trip and converts
// a success=false reply back into a typed error. NotFound and
// Validation kinds survive the wire; everything else is a platform
// failure.
func (s *Service) sendCommand(ctx context.Context, platform api.PlatformKind, cmd api.Command) (api.Response, error) {
	channel := api.CommandChannel(platform)
	resp, err := bus.Request[api.Command, api.Response](ctx, s.bus, channel, cmd, s.requestTimeout)
	if err != nil {
		return api.Response{}, err
	}
	if !resp.Success {
		switch resp.ErrorKind {
		case api.ErrorKindNotFound:
			return api.Response{}, api.NewRuntimeNotFoundError(cmd.InstanceID)
		case api.ErrorKindValidation:
			return api.Response{}, api.NewValidationError("", resp.ErrorMessage)
		default:
			return api.Response{}, api.NewPlatformError(platform, string(cmd.Kind), cmd.InstanceID, errors.New(resp.ErrorMessage))
		}
	}
	return resp, nil
}

// applyStatus folds one observed transition into the metadata store,
// the runtime cache, and the ring. It is the single append path for
// ring records after creation, so every source of status (command
// replies, worker broadcasts, external pushes) deduplicates the same
// way: no change, no record.
func (s *Service) applyStatus(id string, status api.InstanceStatus, source string, metadata map[string]string) (api.InstanceStatus, bool) {
	old, changed := s.metadata.setStatus(id, status)
	if !changed {
		return old, false
	}
	s.runtimes.mergeStatus(id, status, metadata)
	s.ring.append(api.StatusChangeRecord{
		InstanceID: id,
		OldStatus:  old,
		NewStatus:  status,
		Source:     source,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	})
	return old, true
}

func (s *Service) broadcastStatus(ctx context.Context, id, correlationID string, old, next api.InstanceStatus, source string, metadata map[string]string) {
	s.publishEvent(ctx, api.StatusChannel, api.Event{
		Type:          api.EventInstanceStatusChanged,
		InstanceID:    id,
		CorrelationID: correlationID,
		OldStatus:     old,
		NewStatus:     next,
		Source:        source,
		Metadata:      metadata,
		Timestamp:     time.Now(),
	})
}

func (s *Service) publishEvent(ctx context.Context, channel string, ev api.Event) {
	if err := s.bus.Publish(ctx, channel, ev); err != nil {
		logging.Error(serviceSubsystem, err, "Failed to publish %s event for instance %s", ev.Type, ev.InstanceID)
	}
}

// onStatusEvent ingests broadcast status transitions, including the
// service's own rebroadcasts, which deduplicate to nothing.
func (s *Service) onStatusEvent(ctx context.Context, ev api.Event, _ string) {
	if ev.Type != api.EventInstanceStatusChanged || !ev.NewStatus.Valid() {
		return
	}
	if old, changed := s.applyStatus(ev.InstanceID, ev.NewStatus, ev.Source, ev.Metadata); changed {
		logging.Debug(serviceSubsystem, "Observed %s: %s -> %s (source %s)",
			ev.InstanceID, old, ev.NewStatus, ev.Source)
	}
}

// onLifecycleEvent prunes the runtime cache when a worker confirms a
// teardown that did not pass through this service, such as a
// fire-and-forget delete published straight to the bus.
func (s *Service) onLifecycleEvent(ctx context.Context, ev api.Event, _ string) {
	if ev.Type != api.EventInstanceDeleted {
		return
	}
	s.runtimes.delete(ev.InstanceID)
}

func (s *Service) instanceLock(id string) *sync.Mutex {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	lock, ok := s.ops[id]
	if !ok {
		lock = &sync.Mutex{}
		s.ops[id] = lock
	}
	return lock
}

func (s *Service) forgetLock(id string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	delete(s.ops, id)
}

func statusFromResponse(resp api.Response, fallback api.InstanceStatus) api.InstanceStatus {
	if resp.RuntimeInfo != nil && resp.RuntimeInfo.Status.Valid() {
		return resp.RuntimeInfo.Status
	}
	return fallback
}
