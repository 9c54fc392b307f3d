package reconciler

import (
	"context"
	"testing"
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	transport := bus.NewMemoryTransport()
	t.Cleanup(func() { transport.Close() })
	return bus.New(transport)
}

func statusEvent(id string, newStatus api.InstanceStatus) api.Event {
	return api.Event{
		Type:       api.EventInstanceStatusChanged,
		InstanceID: id,
		OldStatus:  api.StatusRunning,
		NewStatus:  newStatus,
		Source:     "service",
		Timestamp:  time.Now(),
	}
}

func expectChange(t *testing.T, changes <-chan string, want string) {
	t.Helper()
	select {
	case got := <-changes:
		if got != want {
			t.Fatalf("got change for %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change for %q within timeout", want)
	}
}

func expectNoChange(t *testing.T, changes <-chan string, wait time.Duration) {
	t.Helper()
	select {
	case got := <-changes:
		t.Fatalf("unexpected change for %q", got)
	case <-time.After(wait):
	}
}

func TestBusDetectorFiltersStatusEvents(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	detector := NewBusDetector(b)
	changes := make(chan string, 4)
	if err := detector.Start(ctx, changes); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := b.Publish(ctx, api.StatusChannel, statusEvent("other", api.StatusRunning)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := b.Publish(ctx, api.StatusChannel, statusEvent("inst-1", api.StatusConfigurationChanged)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	expectChange(t, changes, "inst-1")
	expectNoChange(t, changes, 100*time.Millisecond)

	if err := detector.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := b.Publish(ctx, api.StatusChannel, statusEvent("inst-2", api.StatusConfigurationChanged)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	expectNoChange(t, changes, 100*time.Millisecond)
}

func TestPollingDetectorEmitsOnlyNewRecords(t *testing.T) {
	fake := newFakeAPI()
	detector := NewPollingDetector(fake, 10*time.Millisecond)
	changes := make(chan string, 4)

	if err := detector.Start(context.Background(), changes); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = detector.Stop() })

	fake.addChangeRecord(api.StatusChangeRecord{
		InstanceID: "inst-1",
		OldStatus:  api.StatusRunning,
		NewStatus:  api.StatusConfigurationChanged,
		Source:     "service",
		Timestamp:  time.Now(),
	})

	expectChange(t, changes, "inst-1")
	expectNoChange(t, changes, 50*time.Millisecond)

	fake.mu.Lock()
	filter := fake.lastFilter
	fake.mu.Unlock()
	if filter != api.StatusConfigurationChanged {
		t.Fatalf("detector polled with filter %q", filter)
	}

	fake.addChangeRecord(api.StatusChangeRecord{
		InstanceID: "inst-2",
		OldStatus:  api.StatusRunning,
		NewStatus:  api.StatusConfigurationChanged,
		Source:     "service",
		Timestamp:  time.Now(),
	})
	expectChange(t, changes, "inst-2")
}

func TestChangeEventTriggersImmediateReconcile(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	fake := newFakeAPI()
	fake.addInstance("inst-1", api.StatusRunning, baseConfig())

	r := New(fake, NewBusDetector(b), Config{PollingInterval: time.Hour})
	r.strategy = NewRestartStrategy(fake, time.Millisecond)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(r.Stop)

	if err := waitForCondition(func() bool {
		return fake.startCount("inst-1") == 1
	}, 2*time.Second); err != nil {
		t.Fatalf("initial cycle did not converge: %v", err)
	}

	changed := baseConfig()
	changed.Port = 9191
	fake.setConfig("inst-1", changed)

	if err := b.Publish(ctx, api.StatusChannel, statusEvent("inst-1", api.StatusConfigurationChanged)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := waitForCondition(func() bool {
		return fake.startCount("inst-1") == 2
	}, 2*time.Second); err != nil {
		t.Fatalf("change event did not trigger a reconcile: %v", err)
	}
	if override := fake.lastOverride("inst-1"); override == nil || override.Port != 9191 {
		t.Fatalf("reconcile did not apply the changed configuration: %+v", override)
	}
	if got := r.GetMetrics().EventTriggered; got != 1 {
		t.Fatalf("expected one event-triggered reconcile, got %d", got)
	}
}
