package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"

	"maestro/internal/api"
	"maestro/pkg/logging"
)

// Definition is the on-disk declaration of one instance, used for
// declarative bootstrap from a definitions directory.
type Definition struct {
	// Name identifies the instance. Empty means the file name stem.
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Platform defaults to process when omitted.
	Platform api.PlatformKind `json:"platform,omitempty"`

	Configuration *api.DeclaredConfiguration `json:"configuration,omitempty"`
}

// LoadDefinition reads and parses one definition file. A missing name
// defaults to the file name without its extension.
func LoadDefinition(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read definition file: %w", err)
	}

	var def Definition
	if err := sigsyaml.Unmarshal(raw, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to parse definition file %s: %w", filepath.Base(path), err)
	}

	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if def.Platform == "" {
		def.Platform = api.PlatformProcess
	}
	return def, nil
}

// LoadDefinitions reads every YAML file in dir. Files that fail to
// parse are logged and skipped so one broken file does not block the
// rest of the bootstrap.
func LoadDefinitions(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	defs := make([]Definition, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		def, err := LoadDefinition(filepath.Join(dir, entry.Name()))
		if err != nil {
			logging.Warn(serviceSubsystem, "Skipping definition %s: %v", entry.Name(), err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ApplyDefinition creates the instance when absent, matched by name,
// or replaces its declared configuration when the file differs from
// the stored document. It reports whether a new instance was created.
func (s *Service) ApplyDefinition(ctx context.Context, def Definition) (bool, error) {
	if def.Name == "" {
		return false, api.NewValidationError("name", "definition carries no name")
	}
	if !def.Platform.Valid() {
		return false, api.NewValidationError("platform", fmt.Sprintf("unknown platform %q", def.Platform))
	}

	desired := definitionConfiguration(def)
	if err := validateConfiguration(desired); err != nil {
		return false, err
	}

	existing, ok := s.metadata.findByName(def.Name)
	if !ok {
		var binding *api.ServerBinding
		if def.Configuration != nil {
			binding = &desired.ServerBinding
		}
		inst, err := s.Create(ctx, api.CreateInstanceRequest{
			Name:        def.Name,
			Description: def.Description,
			Platform:    def.Platform,
			Binding:     binding,
		})
		if err != nil {
			return false, err
		}
		s.configs.put(inst.ID, desired)
		return true, nil
	}

	lock := s.instanceLock(existing.ID)
	lock.Lock()
	defer lock.Unlock()

	current, ok := s.configs.get(existing.ID)
	if ok && configurationsEqual(current, desired) {
		return false, nil
	}
	s.configs.put(existing.ID, desired)
	s.markConfigurationChanged(ctx, existing.ID)
	logging.Info(serviceSubsystem, "Definition %q replaced the configuration of instance %s", def.Name, existing.ID)
	return false, nil
}

// LoadDirectory applies every definition in dir. Per-definition
// failures are logged and skipped.
func (s *Service) LoadDirectory(ctx context.Context, dir string) error {
	defs, err := LoadDefinitions(dir)
	if err != nil {
		return err
	}

	created := 0
	for _, def := range defs {
		wasCreated, err := s.ApplyDefinition(ctx, def)
		if err != nil {
			logging.Warn(serviceSubsystem, "Failed to apply definition %q: %v", def.Name, err)
			continue
		}
		if wasCreated {
			created++
		}
	}
	logging.Info(serviceSubsystem, "Loaded %d definitions from %s (%d new)", len(defs), dir, created)
	return nil
}

// definitionConfiguration builds the stored configuration for a
// definition, filling the same defaults instance creation fills.
func definitionConfiguration(def Definition) *api.DeclaredConfiguration {
	cfg := def.Configuration.Clone()
	if cfg == nil {
		cfg = &api.DeclaredConfiguration{}
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	normalizeConfiguration(cfg)
	return cfg
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
