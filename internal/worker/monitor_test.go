package worker

import (
	"context"
	"testing"
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
)

// newMonitoredWorker starts a worker whose health monitor ticks fast
// enough for tests to observe transitions.
func newMonitoredWorker(t *testing.T, driver *fakeDriver) *bus.Bus {
	t.Helper()

	transport := bus.NewMemoryTransport()
	t.Cleanup(func() { transport.Close() })
	b := bus.New(transport)

	w := New(b, driver, 20*time.Millisecond)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(w.Stop)
	return b
}

func TestMonitorFirstObservationIsBaseline(t *testing.T) {
	driver := newFakeDriver()
	driver.setState("pre-existing", api.StatusRunning, nil)

	b := newMonitoredWorker(t, driver)
	statuses := collectEvents(t, b, api.StatusChannel)

	// The monitor sees the instance for the first time and must not
	// announce a transition for it.
	time.Sleep(100 * time.Millisecond)
	if statuses.count() != 0 {
		t.Fatalf("unexpected status events: %+v", statuses.snapshot())
	}

	driver.setState("pre-existing", api.StatusStopped, nil)

	err := waitForCondition(func() bool {
		for _, ev := range statuses.snapshot() {
			if ev.OldStatus == api.StatusRunning && ev.NewStatus == api.StatusStopped {
				return true
			}
		}
		return false
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Running -> Stopped transition not observed: %v", err)
	}
}

func TestMonitorReportsCrashWithMetadata(t *testing.T) {
	driver := newFakeDriver()
	b := newMonitoredWorker(t, driver)
	statuses := collectEvents(t, b, api.StatusChannel)

	request(t, b, startCommand("inst-1"))

	driver.setState("inst-1", api.StatusError, map[string]string{
		"exitCode": "3",
		"reason":   "managed server exited with code 3",
	})

	var crash api.Event
	err := waitForCondition(func() bool {
		for _, ev := range statuses.snapshot() {
			if ev.NewStatus == api.StatusError {
				crash = ev
				return true
			}
		}
		return false
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("crash transition not observed: %v", err)
	}

	if crash.OldStatus != api.StatusRunning {
		t.Errorf("old status = %s, want %s", crash.OldStatus, api.StatusRunning)
	}
	if crash.Source != api.SourceWorker {
		t.Errorf("source = %q, want %q", crash.Source, api.SourceWorker)
	}
	if crash.Metadata["exitCode"] != "3" {
		t.Errorf("exitCode metadata = %q, want %q", crash.Metadata["exitCode"], "3")
	}
	if crash.CorrelationID == "" {
		t.Error("monitor events must carry a correlation id")
	}
}

func TestMonitorDoesNotRepeatUnchangedStatus(t *testing.T) {
	driver := newFakeDriver()
	b := newMonitoredWorker(t, driver)
	statuses := collectEvents(t, b, api.StatusChannel)

	request(t, b, startCommand("inst-1"))
	driver.setState("inst-1", api.StatusError, nil)

	err := waitForCondition(func() bool {
		for _, ev := range statuses.snapshot() {
			if ev.NewStatus == api.StatusError {
				return true
			}
		}
		return false
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("crash transition not observed: %v", err)
	}

	// Several more polling cycles must not re-announce the same state.
	before := countErrorEvents(statuses)
	time.Sleep(100 * time.Millisecond)
	if after := countErrorEvents(statuses); after != before {
		t.Errorf("Error events grew from %d to %d", before, after)
	}
}

func countErrorEvents(c *eventCollector) int {
	n := 0
	for _, ev := range c.snapshot() {
		if ev.NewStatus == api.StatusError {
			n++
		}
	}
	return n
}

// forgettingDriver adds crash forgetting to the fake, mirroring the
// process driver.
type forgettingDriver struct {
	*fakeDriver
}

func (d *forgettingDriver) Forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.state, id)
}

func TestMonitorForgetsCrashedInstance(t *testing.T) {
	driver := &forgettingDriver{fakeDriver: newFakeDriver()}

	transport := bus.NewMemoryTransport()
	t.Cleanup(func() { transport.Close() })
	b := bus.New(transport)

	w := New(b, driver, 20*time.Millisecond)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(w.Stop)

	statuses := collectEvents(t, b, api.StatusChannel)
	request(t, b, startCommand("inst-1"))
	driver.setState("inst-1", api.StatusError, map[string]string{"exitCode": "3"})

	err := waitForCondition(func() bool {
		for _, ev := range statuses.snapshot() {
			if ev.NewStatus == api.StatusError {
				return true
			}
		}
		return false
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("crash transition not observed: %v", err)
	}

	// Once the crash is announced the instance leaves the tracked set
	// and a stop for it reports NotFound.
	err = waitForCondition(func() bool {
		_, statusErr := driver.Status(context.Background(), "inst-1")
		return api.IsNotFound(statusErr)
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("crashed instance still tracked: %v", err)
	}

	resp := request(t, b, api.Command{Kind: api.CommandStop, InstanceID: "inst-1", CorrelationID: "corr-stop"})
	if resp.Success {
		t.Fatal("stop of a forgotten instance should fail")
	}
	if resp.ErrorKind != api.ErrorKindNotFound {
		t.Errorf("error kind = %q, want %q", resp.ErrorKind, api.ErrorKindNotFound)
	}
}
