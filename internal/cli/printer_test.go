package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"maestro/internal/api"
)

func testInstance() *api.Instance {
	return &api.Instance{
		ID:        "inst-1",
		Name:      "web",
		Platform:  api.PlatformProcess,
		Status:    api.StatusRunning,
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func TestNewPrinterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewPrinter("xml", false); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
	p, err := NewPrinter("json", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Format != OutputFormatJSON {
		t.Fatalf("got format %q", p.Format)
	}
}

func TestPrinterJSONUsesWireFieldNames(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: OutputFormatJSON, Out: &buf}

	if err := p.PrintInstance(testInstance()); err != nil {
		t.Fatalf("print: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if decoded["platformKind"] != "process" {
		t.Fatalf("expected wire field names, got %v", decoded)
	}
}

func TestPrinterYAML(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: OutputFormatYAML, Out: &buf}

	if err := p.PrintInstance(testInstance()); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "name: web") || !strings.Contains(out, "platformKind: process") {
		t.Fatalf("unexpected yaml:\n%s", out)
	}
}

func TestPrinterTableDispatch(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: OutputFormatTable, Out: &buf}

	if err := p.PrintInstances([]*api.Instance{testInstance()}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "NAME") || !strings.Contains(buf.String(), "web") {
		t.Fatalf("unexpected table:\n%s", buf.String())
	}
}

func TestPrinterConfigurationSummary(t *testing.T) {
	cfg := &api.DeclaredConfiguration{
		ServerBinding: api.ServerBinding{Host: "127.0.0.1", Port: 8080, LogLevel: "info"},
		Sources:       []api.ConfigRecord{{"name": "s1"}, {"name": "s2"}},
	}

	var buf bytes.Buffer
	p := &Printer{Format: OutputFormatTable, Out: &buf}
	if err := p.PrintConfiguration(cfg); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "8080") || !strings.Contains(out, "SOURCES") {
		t.Fatalf("unexpected summary:\n%s", out)
	}

	buf.Reset()
	p.Format = OutputFormatYAML
	if err := p.PrintConfiguration(cfg); err != nil {
		t.Fatalf("print yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "sources:") {
		t.Fatalf("yaml should carry the full record lists:\n%s", buf.String())
	}
}

func TestPrinterRuntime(t *testing.T) {
	info := &api.RuntimeInfo{
		InstanceID: "inst-1",
		Status:     api.StatusRunning,
		StartedAt:  time.Now().Add(-time.Minute),
		ProcessID:  4242,
	}

	var buf bytes.Buffer
	p := &Printer{Format: OutputFormatWide, Out: &buf}
	if err := p.PrintRuntime(info); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"HANDLE", "pid:4242", "STOPPED"} {
		if !strings.Contains(out, want) {
			t.Fatalf("wide runtime output missing %q:\n%s", want, out)
		}
	}
}
