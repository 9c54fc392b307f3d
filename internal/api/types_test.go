package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDeclaredConfigurationWireShape(t *testing.T) {
	cfg := DeclaredConfiguration{
		ServerBinding: ServerBinding{Host: "127.0.0.1", Port: 8080, LogLevel: "info"},
		Sources: []ConfigRecord{
			{"kind": "file", "id": "s1", "autoStart": true},
		},
		Queries:   []ConfigRecord{},
		Reactions: []ConfigRecord{},
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// The binding fields must be flattened to the top level.
	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}
	if wire["host"] != "127.0.0.1" {
		t.Errorf("expected top-level host field, got %v", wire)
	}
	if wire["port"] != float64(8080) {
		t.Errorf("expected top-level port field, got %v", wire["port"])
	}
	if _, ok := wire["serverBinding"]; ok {
		t.Error("binding must not be nested under a serverBinding key")
	}

	var back DeclaredConfiguration
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Host != cfg.Host || back.Port != cfg.Port || back.LogLevel != cfg.LogLevel {
		t.Errorf("binding did not round-trip: %+v", back.ServerBinding)
	}
	if len(back.Sources) != 1 || back.Sources[0]["id"] != "s1" {
		t.Errorf("sources did not round-trip: %+v", back.Sources)
	}
}

func TestDeclaredConfigurationClone(t *testing.T) {
	orig := &DeclaredConfiguration{
		ServerBinding: ServerBinding{Host: "localhost", Port: 9000, LogLevel: "debug"},
		Sources:       []ConfigRecord{{"id": "a"}},
	}

	clone := orig.Clone()
	clone.Port = 9999
	clone.Sources[0]["id"] = "b"
	clone.Sources = append(clone.Sources, ConfigRecord{"id": "c"})

	if orig.Port != 9000 {
		t.Errorf("clone mutation leaked into original binding: %d", orig.Port)
	}
	if orig.Sources[0]["id"] != "a" {
		t.Errorf("clone mutation leaked into original list: %v", orig.Sources[0])
	}
	if len(orig.Sources) != 1 {
		t.Errorf("clone append leaked into original: %d entries", len(orig.Sources))
	}

	if (*DeclaredConfiguration)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestCommandRoundTrip(t *testing.T) {
	cmd := Command{
		Kind:       CommandStart,
		InstanceID: "inst-1",
		Configuration: &DeclaredConfiguration{
			ServerBinding: ServerBinding{Host: "0.0.0.0", Port: 8081, LogLevel: "warn"},
		},
		CorrelationID: "corr-1",
	}

	raw, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Command
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.Kind != CommandStart || back.InstanceID != "inst-1" || back.CorrelationID != "corr-1" {
		t.Errorf("command did not round-trip: %+v", back)
	}
	if back.Configuration == nil || back.Configuration.Port != 8081 {
		t.Errorf("configuration payload did not round-trip: %+v", back.Configuration)
	}

	// Stop commands omit the configuration entirely.
	raw, _ = json.Marshal(Command{Kind: CommandStop, InstanceID: "inst-1", CorrelationID: "corr-2"})
	var wire map[string]any
	_ = json.Unmarshal(raw, &wire)
	if _, ok := wire["configuration"]; ok {
		t.Error("nil configuration must be omitted from the wire form")
	}
}

func TestEventRoundTrip(t *testing.T) {
	ev := Event{
		Type:          EventInstanceStatusChanged,
		InstanceID:    "inst-1",
		CorrelationID: "corr-1",
		OldStatus:     StatusRunning,
		NewStatus:     StatusError,
		Source:        SourceWorker,
		Metadata:      map[string]string{"ExitCode": "137"},
		Timestamp:     time.Now().UTC().Truncate(time.Second),
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Event
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.Type != ev.Type || back.OldStatus != ev.OldStatus || back.NewStatus != ev.NewStatus {
		t.Errorf("event did not round-trip: %+v", back)
	}
	if back.Metadata["ExitCode"] != "137" {
		t.Errorf("metadata did not round-trip: %+v", back.Metadata)
	}
	if !back.Timestamp.Equal(ev.Timestamp) {
		t.Errorf("timestamp did not round-trip: %v vs %v", back.Timestamp, ev.Timestamp)
	}
}

func TestPlatformKindValid(t *testing.T) {
	for _, p := range AllPlatforms {
		if !p.Valid() {
			t.Errorf("expected %s to be valid", p)
		}
	}
	if PlatformKind("vm").Valid() {
		t.Error("expected unknown platform kind to be invalid")
	}
}

func TestCommandChannel(t *testing.T) {
	tests := []struct {
		platform PlatformKind
		expected string
	}{
		{PlatformProcess, "instance.commands.process"},
		{PlatformContainer, "instance.commands.container"},
		{PlatformPod, "instance.commands.pod"},
	}
	for _, test := range tests {
		if got := CommandChannel(test.platform); got != test.expected {
			t.Errorf("CommandChannel(%s) = %s, expected %s", test.platform, got, test.expected)
		}
	}
}
