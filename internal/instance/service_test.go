package instance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
	"maestro/internal/platform"
	"maestro/internal/worker"
)

// stubDriver is a minimal process driver standing in for a real
// platform behind a worker.
type stubDriver struct {
	mu          sync.Mutex
	infos       map[string]*api.RuntimeInfo
	configPorts []int
}

func newStubDriver() *stubDriver {
	return &stubDriver{infos: make(map[string]*api.RuntimeInfo)}
}

func (d *stubDriver) Platform() api.PlatformKind          { return api.PlatformProcess }
func (d *stubDriver) Available(ctx context.Context) error { return nil }

func (d *stubDriver) Start(ctx context.Context, id string, cfg api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configPorts = append(d.configPorts, cfg.Port)
	info := &api.RuntimeInfo{InstanceID: id, Status: api.StatusRunning, StartedAt: time.Now(), ProcessID: 4242}
	d.infos[id] = info
	return info.Clone(), nil
}

func (d *stubDriver) Stop(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.infos[id]
	if !ok {
		return nil, api.NewRuntimeNotFoundError(id)
	}
	info.Status = api.StatusStopped
	return info.Clone(), nil
}

func (d *stubDriver) Restart(ctx context.Context, id string, cfg *api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	info, err := d.Stop(ctx, id)
	if err != nil && !api.IsNotFound(err) {
		return nil, err
	}
	if cfg == nil {
		return info, nil
	}
	return d.Start(ctx, id, *cfg)
}

func (d *stubDriver) Status(ctx context.Context, id string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.infos[id]
	if !ok {
		return nil, api.NewRuntimeNotFoundError(id)
	}
	return info.Clone(), nil
}

func (d *stubDriver) ListAll(ctx context.Context) ([]*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	infos := make([]*api.RuntimeInfo, 0, len(d.infos))
	for _, info := range d.infos {
		infos = append(infos, info.Clone())
	}
	return infos, nil
}

func (d *stubDriver) Allocate(_ *platform.PortAllocator, _ string) (api.ServerBinding, error) {
	return api.ServerBinding{Host: "127.0.0.1", Port: 8080}, nil
}

func (d *stubDriver) Purge(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.infos, id)
	return nil
}

func (d *stubDriver) receivedPorts() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.configPorts))
	copy(out, d.configPorts)
	return out
}

type eventCollector struct {
	mu     sync.Mutex
	events []api.Event
}

func collectEvents(t *testing.T, b *bus.Bus, channel string) *eventCollector {
	t.Helper()
	c := &eventCollector{}
	unsubscribe, err := bus.Subscribe(context.Background(), b, channel, func(_ context.Context, ev api.Event, _ string) {
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe to %s: %v", channel, err)
	}
	t.Cleanup(unsubscribe)
	return c
}

func (c *eventCollector) snapshot() []api.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *eventCollector) has(eventType api.EventType) bool {
	for _, ev := range c.snapshot() {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

func waitForCondition(condition func() bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(1 * time.Millisecond)
	}
	return fmt.Errorf("condition not met within timeout")
}

// newTestService starts a service without any worker behind it.
func newTestService(t *testing.T, cfg Config) (*Service, *bus.Bus) {
	t.Helper()

	transport := bus.NewMemoryTransport()
	t.Cleanup(func() { transport.Close() })
	b := bus.New(transport)

	svc := New(b, cfg)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, b
}

// newServiceWithWorker additionally runs a process worker on the same
// bus, backed by a stub driver.
func newServiceWithWorker(t *testing.T) (*Service, *stubDriver, *bus.Bus) {
	t.Helper()

	transport := bus.NewMemoryTransport()
	t.Cleanup(func() { transport.Close() })
	b := bus.New(transport)

	driver := newStubDriver()
	w := worker.New(b, driver, time.Hour)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(w.Stop)

	svc := New(b, Config{})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, driver, b
}

func createTestInstance(t *testing.T, svc *Service, name string, port int) *api.Instance {
	t.Helper()
	inst, err := svc.Create(context.Background(), api.CreateInstanceRequest{
		Name:     name,
		Platform: api.PlatformProcess,
		Binding:  &api.ServerBinding{Host: "127.0.0.1", Port: port, LogLevel: "info"},
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return inst
}

func TestCreateInstanceDefaults(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	inst, err := svc.Create(ctx, api.CreateInstanceRequest{Name: "x", Platform: api.PlatformProcess})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.ID == "" {
		t.Error("instance id not assigned")
	}
	if inst.Status != api.StatusCreated {
		t.Errorf("status = %s, want %s", inst.Status, api.StatusCreated)
	}

	cfg, err := svc.GetConfiguration(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get configuration: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.LogLevel != "info" || cfg.Port != 0 {
		t.Errorf("binding = %+v", cfg.ServerBinding)
	}
	if cfg.Sources == nil || cfg.Queries == nil || cfg.Reactions == nil {
		t.Error("record lists must be initialized, not nil")
	}

	records, err := svc.GetRecentChanges(ctx, time.Time{}, "")
	if err != nil {
		t.Fatalf("recent changes: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ring has %d records, want 1", len(records))
	}
	if records[0].NewStatus != api.StatusCreated || records[0].OldStatus != "" {
		t.Errorf("birth record = %+v", records[0])
	}
}

func TestCreateInstanceValidation(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, api.CreateInstanceRequest{Platform: api.PlatformProcess}); !api.IsValidation(err) {
		t.Errorf("empty name: got %v, want validation error", err)
	}
	if _, err := svc.Create(ctx, api.CreateInstanceRequest{Name: "x", Platform: "vm"}); !api.IsValidation(err) {
		t.Errorf("bad platform: got %v, want validation error", err)
	}
	bad := &api.ServerBinding{Port: 70000}
	if _, err := svc.Create(ctx, api.CreateInstanceRequest{Name: "x", Platform: api.PlatformProcess, Binding: bad}); !api.IsValidation(err) {
		t.Errorf("bad port: got %v, want validation error", err)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	svc, _, b := newServiceWithWorker(t)
	ctx := context.Background()
	events := collectEvents(t, b, api.EventsChannel)
	statuses := collectEvents(t, b, api.StatusChannel)

	inst := createTestInstance(t, svc, "x", 8080)

	info, err := svc.StartInstance(ctx, inst.ID, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if info.Status != api.StatusRunning {
		t.Errorf("runtime status = %s, want Running", info.Status)
	}
	got, _ := svc.Get(ctx, inst.ID)
	if got.Status != api.StatusRunning {
		t.Errorf("instance status = %s, want Running", got.Status)
	}

	// Let the worker's broadcast land before the next step so the ring
	// sees the transitions in lifecycle order.
	if err := waitForCondition(func() bool {
		for _, ev := range statuses.snapshot() {
			if ev.NewStatus == api.StatusRunning {
				return true
			}
		}
		return false
	}, 5*time.Second); err != nil {
		t.Fatalf("start broadcast not observed: %v", err)
	}

	if _, err := svc.StopInstance(ctx, inst.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got, _ = svc.Get(ctx, inst.ID)
	if got.Status != api.StatusStopped {
		t.Errorf("instance status = %s, want Stopped", got.Status)
	}

	records, err := svc.GetRecentChanges(ctx, time.Time{}, "")
	if err != nil {
		t.Fatalf("recent changes: %v", err)
	}
	want := []api.InstanceStatus{api.StatusCreated, api.StatusRunning, api.StatusStopped}
	if len(records) != len(want) {
		t.Fatalf("ring has %d records, want %d: %+v", len(records), len(want), records)
	}
	for i, status := range want {
		if records[i].NewStatus != status {
			t.Errorf("record %d status = %s, want %s", i, records[i].NewStatus, status)
		}
	}

	if err := svc.Delete(ctx, inst.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, inst.ID); !api.IsNotFound(err) {
		t.Errorf("get after delete: %v, want not found", err)
	}
	if _, err := svc.GetConfiguration(ctx, inst.ID); !api.IsNotFound(err) {
		t.Errorf("configuration after delete: %v, want not found", err)
	}

	err = waitForCondition(func() bool {
		return events.has(api.EventInstanceStarted) &&
			events.has(api.EventInstanceStopped) &&
			events.has(api.EventInstanceDeleted)
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("lifecycle events incomplete: %+v", events.snapshot())
	}
}

func TestStartWithoutWorkerTimesOut(t *testing.T) {
	svc, _ := newTestService(t, Config{RequestTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	inst := createTestInstance(t, svc, "x", 8080)

	_, err := svc.StartInstance(ctx, inst.ID, nil)
	if !api.IsTimeout(err) {
		t.Fatalf("got %v, want timeout error", err)
	}

	got, _ := svc.Get(ctx, inst.ID)
	if got.Status != api.StatusCreated {
		t.Errorf("status after timeout = %s, want Created", got.Status)
	}
	records, _ := svc.GetRecentChanges(ctx, time.Time{}, "")
	if len(records) != 1 {
		t.Errorf("ring has %d records, want only the birth record", len(records))
	}
}

func TestDeleteTimeoutKeepsMetadata(t *testing.T) {
	svc, _ := newTestService(t, Config{RequestTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	inst := createTestInstance(t, svc, "x", 8080)

	if err := svc.Delete(ctx, inst.ID); !api.IsTimeout(err) {
		t.Fatalf("got %v, want timeout error", err)
	}
	if _, err := svc.Get(ctx, inst.ID); err != nil {
		t.Errorf("metadata must survive a delete timeout: %v", err)
	}
}

func TestStatusUpdateIngress(t *testing.T) {
	svc, b := newTestService(t, Config{})
	ctx := context.Background()
	statuses := collectEvents(t, b, api.StatusChannel)

	// Probe the command channel: informational updates never publish
	// commands.
	commands := collectEvents(t, b, api.CommandChannel(api.PlatformProcess))

	inst := createTestInstance(t, svc, "x", 8080)

	if err := svc.ReceiveStatusUpdate(ctx, api.StatusUpdate{
		InstanceID: inst.ID, Status: api.StatusRunning, Source: "external",
	}); err != nil {
		t.Fatalf("seed running: %v", err)
	}

	if err := svc.ReceiveStatusUpdate(ctx, api.StatusUpdate{
		InstanceID: inst.ID,
		Status:     api.StatusError,
		Source:     "external",
		Metadata:   map[string]string{"reason": "probe failed"},
	}); err != nil {
		t.Fatalf("push error status: %v", err)
	}

	records, _ := svc.GetRecentChanges(ctx, time.Time{}, "")
	last := records[len(records)-1]
	if last.OldStatus != api.StatusRunning || last.NewStatus != api.StatusError || last.Source != "external" {
		t.Errorf("last record = %+v", last)
	}

	info, err := svc.GetRuntime(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get runtime: %v", err)
	}
	if info.Status != api.StatusError || info.ErrorMessage != "probe failed" {
		t.Errorf("runtime info = %+v", info)
	}

	// The change is rebroadcast for downstream subscribers.
	err = waitForCondition(func() bool {
		for _, ev := range statuses.snapshot() {
			if ev.NewStatus == api.StatusError && ev.OldStatus == api.StatusRunning {
				return true
			}
		}
		return false
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("broadcast not observed: %v", err)
	}

	// A duplicate update changes nothing.
	before := len(records)
	if err := svc.ReceiveStatusUpdate(ctx, api.StatusUpdate{
		InstanceID: inst.ID, Status: api.StatusError, Source: "external",
	}); err != nil {
		t.Fatalf("duplicate update: %v", err)
	}
	records, _ = svc.GetRecentChanges(ctx, time.Time{}, "")
	if len(records) != before {
		t.Errorf("ring grew from %d to %d on a duplicate update", before, len(records))
	}

	time.Sleep(50 * time.Millisecond)
	if n := len(commands.snapshot()); n != 0 {
		t.Errorf("ingress published %d commands, want 0", n)
	}
}

func TestStatusUpdateValidation(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	if err := svc.ReceiveStatusUpdate(ctx, api.StatusUpdate{InstanceID: "nope", Status: "Broken"}); !api.IsValidation(err) {
		t.Errorf("bad status: got %v, want validation error", err)
	}
	if err := svc.ReceiveStatusUpdate(ctx, api.StatusUpdate{InstanceID: "nope", Status: api.StatusError}); !api.IsNotFound(err) {
		t.Errorf("unknown instance: got %v, want not found", err)
	}
}

func TestPatchConfigurationMarksChanged(t *testing.T) {
	svc, b := newTestService(t, Config{})
	ctx := context.Background()
	statuses := collectEvents(t, b, api.StatusChannel)
	configEvents := collectEvents(t, b, api.ConfigurationChannel)

	inst := createTestInstance(t, svc, "x", 8080)

	patched, err := svc.PatchConfiguration(ctx, inst.ID, []byte(`[{"op":"replace","path":"/port","value":9090}]`))
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Port != 9090 {
		t.Errorf("patched port = %d, want 9090", patched.Port)
	}

	stored, _ := svc.GetConfiguration(ctx, inst.ID)
	if stored.Port != 9090 {
		t.Errorf("stored port = %d, want 9090", stored.Port)
	}

	got, _ := svc.Get(ctx, inst.ID)
	if got.Status != api.StatusConfigurationChanged {
		t.Errorf("status = %s, want ConfigurationChanged", got.Status)
	}

	records, _ := svc.GetRecentChanges(ctx, time.Time{}, api.StatusConfigurationChanged)
	if len(records) != 1 {
		t.Fatalf("ring has %d ConfigurationChanged records, want 1", len(records))
	}

	err = waitForCondition(func() bool {
		if !configEvents.has(api.EventConfigurationChanged) {
			return false
		}
		for _, ev := range statuses.snapshot() {
			if ev.NewStatus == api.StatusConfigurationChanged {
				return true
			}
		}
		return false
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("change announcements not observed: %v", err)
	}
}

func TestPatchConfigurationErrors(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	if _, err := svc.PatchConfiguration(ctx, "nope", []byte(`[]`)); !api.IsNotFound(err) {
		t.Errorf("unknown instance: got %v, want not found", err)
	}

	inst := createTestInstance(t, svc, "x", 8080)
	if _, err := svc.PatchConfiguration(ctx, inst.ID, []byte(`{`)); !api.IsValidation(err) {
		t.Errorf("broken patch: got %v, want validation error", err)
	}
}

func TestRestartSendsStoredConfiguration(t *testing.T) {
	svc, driver, _ := newServiceWithWorker(t)
	ctx := context.Background()

	inst := createTestInstance(t, svc, "x", 9090)

	if _, err := svc.StartInstance(ctx, inst.ID, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	info, err := svc.RestartInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if info.Status != api.StatusRunning {
		t.Errorf("status after restart = %s, want Running", info.Status)
	}

	ports := driver.receivedPorts()
	if len(ports) != 2 || ports[0] != 9090 || ports[1] != 9090 {
		t.Errorf("driver received ports %v, want [9090 9090]", ports)
	}
}

func TestGetRecentChangesValidation(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	if _, err := svc.GetRecentChanges(context.Background(), time.Time{}, "Broken"); !api.IsValidation(err) {
		t.Errorf("got %v, want validation error", err)
	}
}

func TestGetRuntimeUnknown(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	if _, err := svc.GetRuntime(ctx, "nope"); !api.IsNotFound(err) {
		t.Errorf("unknown instance: got %v, want not found", err)
	}

	inst := createTestInstance(t, svc, "x", 8080)
	if _, err := svc.GetRuntime(ctx, inst.ID); !api.IsNotFound(err) {
		t.Errorf("never started: got %v, want not found", err)
	}
}
