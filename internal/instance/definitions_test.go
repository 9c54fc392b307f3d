package instance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"maestro/internal/api"
)

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write definition %s: %v", name, err)
	}
	return path
}

func TestLoadDefinitionDefaultsNameFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "beta.yaml", "platform: process\nconfiguration:\n  port: 8181\n")

	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("load definition: %v", err)
	}
	if def.Name != "beta" {
		t.Errorf("name = %q, want %q", def.Name, "beta")
	}
	if def.Platform != api.PlatformProcess {
		t.Errorf("platform = %q", def.Platform)
	}
	if def.Configuration == nil || def.Configuration.Port != 8181 {
		t.Errorf("configuration = %+v", def.Configuration)
	}
}

func TestLoadDirectoryCreatesInstances(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()
	dir := t.TempDir()

	writeDefinition(t, dir, "alpha.yaml", "name: alpha\nplatform: process\nconfiguration:\n  port: 8181\n")
	writeDefinition(t, dir, "bravo.yml", "platform: container\n")
	writeDefinition(t, dir, "broken.yaml", "::: not yaml :::\n")
	writeDefinition(t, dir, "notes.txt", "ignored\n")

	if err := svc.LoadDirectory(ctx, dir); err != nil {
		t.Fatalf("load directory: %v", err)
	}

	instances := svc.List(ctx)
	if len(instances) != 2 {
		t.Fatalf("loaded %d instances, want 2: %+v", len(instances), instances)
	}
	if instances[0].Name != "alpha" || instances[1].Name != "bravo" {
		t.Errorf("names = %q, %q", instances[0].Name, instances[1].Name)
	}
	if instances[1].Platform != api.PlatformContainer {
		t.Errorf("bravo platform = %q, want container", instances[1].Platform)
	}

	cfg, err := svc.GetConfiguration(ctx, instances[0].ID)
	if err != nil {
		t.Fatalf("get configuration: %v", err)
	}
	if cfg.Port != 8181 || cfg.Host != "127.0.0.1" || cfg.LogLevel != "info" {
		t.Errorf("alpha configuration = %+v", cfg.ServerBinding)
	}
}

func TestApplyDefinitionIsIdempotentUntilChanged(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	def := Definition{
		Name:     "alpha",
		Platform: api.PlatformProcess,
		Configuration: &api.DeclaredConfiguration{
			ServerBinding: api.ServerBinding{Host: "127.0.0.1", Port: 8181, LogLevel: "info"},
		},
	}

	created, err := svc.ApplyDefinition(ctx, def)
	if err != nil || !created {
		t.Fatalf("first apply: created=%v err=%v", created, err)
	}

	// Same definition again: nothing changes.
	created, err = svc.ApplyDefinition(ctx, def)
	if err != nil || created {
		t.Fatalf("second apply: created=%v err=%v", created, err)
	}
	inst, _ := svc.metadata.findByName("alpha")
	if inst.Status != api.StatusCreated {
		t.Errorf("status after no-op apply = %s, want Created", inst.Status)
	}

	// A different port marks the instance for reconciliation.
	def.Configuration.Port = 9191
	if _, err := svc.ApplyDefinition(ctx, def); err != nil {
		t.Fatalf("third apply: %v", err)
	}
	inst, _ = svc.metadata.findByName("alpha")
	if inst.Status != api.StatusConfigurationChanged {
		t.Errorf("status after change = %s, want ConfigurationChanged", inst.Status)
	}
	cfg, _ := svc.GetConfiguration(ctx, inst.ID)
	if cfg.Port != 9191 {
		t.Errorf("stored port = %d, want 9191", cfg.Port)
	}
}

func TestWatcherAppliesNewAndChangedFiles(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()
	dir := t.TempDir()

	w := NewDefinitionsWatcher(svc, dir, 20*time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Stop)

	writeDefinition(t, dir, "alpha.yaml", "platform: process\nconfiguration:\n  port: 8181\n")

	err := waitForCondition(func() bool {
		_, ok := svc.metadata.findByName("alpha")
		return ok
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("instance not created from new file: %v", err)
	}

	inst, _ := svc.metadata.findByName("alpha")
	cfg, _ := svc.GetConfiguration(ctx, inst.ID)
	if cfg.Port != 8181 {
		t.Errorf("port = %d, want 8181", cfg.Port)
	}

	// Rewriting the file replaces the configuration and marks the
	// instance for reconciliation.
	writeDefinition(t, dir, "alpha.yaml", "platform: process\nconfiguration:\n  port: 9191\n")

	err = waitForCondition(func() bool {
		in, ok := svc.metadata.findByName("alpha")
		return ok && in.Status == api.StatusConfigurationChanged
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("configuration change not picked up: %v", err)
	}
	cfg, _ = svc.GetConfiguration(ctx, inst.ID)
	if cfg.Port != 9191 {
		t.Errorf("port after rewrite = %d, want 9191", cfg.Port)
	}
}

func TestWatcherIgnoresFileDeletion(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()
	dir := t.TempDir()

	path := writeDefinition(t, dir, "alpha.yaml", "platform: process\n")
	if err := svc.LoadDirectory(ctx, dir); err != nil {
		t.Fatalf("load directory: %v", err)
	}

	w := NewDefinitionsWatcher(svc, dir, 20*time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}
	t.Cleanup(w.Stop)

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove file: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, ok := svc.metadata.findByName("alpha"); !ok {
		t.Error("deleting a definition file must not delete the instance")
	}
}
