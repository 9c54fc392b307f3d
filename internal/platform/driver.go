package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"

	"maestro/internal/api"
	"maestro/pkg/logging"
)

// restartSettleDelay separates the stop and start halves of a restart,
// giving the platform time to release ports and names. Variable so
// tests can shorten it.
var restartSettleDelay = 2 * time.Second

// Driver is the contract every hosting platform implements. Workers
// dispatch decoded commands to exactly one Driver; the health monitor
// polls it. Implementations must be safe for concurrent use.
type Driver interface {
	// Platform reports which platform kind this driver serves.
	Platform() api.PlatformKind

	// Available verifies the underlying platform can be driven right
	// now (binary present, daemon reachable, cluster accessible).
	Available(ctx context.Context) error

	// Start launches the managed server for the instance using the
	// declared configuration and returns the observed runtime info.
	Start(ctx context.Context, instanceID string, cfg api.DeclaredConfiguration) (*api.RuntimeInfo, error)

	// Stop terminates the managed server, gracefully first, and
	// returns the final runtime info. Stopping an unknown instance
	// returns a NotFoundError.
	Stop(ctx context.Context, instanceID string) (*api.RuntimeInfo, error)

	// Restart stops and then starts the managed server. A nil
	// configuration degrades to stop-only.
	Restart(ctx context.Context, instanceID string, cfg *api.DeclaredConfiguration) (*api.RuntimeInfo, error)

	// Status reports the current runtime info for the instance.
	Status(ctx context.Context, instanceID string) (*api.RuntimeInfo, error)

	// ListAll returns runtime info for every instance this driver
	// currently tracks.
	ListAll(ctx context.Context) ([]*api.RuntimeInfo, error)

	// Allocate reserves a server binding for an instance whose
	// configuration does not pin a port.
	Allocate(allocator *PortAllocator, instanceID string) (api.ServerBinding, error)
}

// Purger is implemented by drivers whose platforms keep artifacts
// beyond the managed server's lifetime (config files, containers,
// cluster objects). Delete handling purges after the final stop.
type Purger interface {
	Purge(ctx context.Context, instanceID string) error
}

// Forgetter is implemented by drivers that keep exited instances
// tracked until their terminal state has been announced. Forget drops
// the instance from tracking; later operations on it report NotFound.
type Forgetter interface {
	Forget(instanceID string)
}

// RestartByStopStart implements the restart sequence shared by all
// drivers: stop, settle, start. Without a configuration there is
// nothing to start again, so the restart degrades to a stop.
func RestartByStopStart(ctx context.Context, d Driver, instanceID string, cfg *api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	info, err := d.Stop(ctx, instanceID)
	if err != nil && !api.IsNotFound(err) {
		return nil, fmt.Errorf("restart stop phase: %w", err)
	}

	if cfg == nil {
		logging.Warn("Platform", "Restart of %s has no declared configuration, treating as stop", instanceID)
		return info, nil
	}

	select {
	case <-time.After(restartSettleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return d.Start(ctx, instanceID, *cfg)
}

// MarshalConfig renders a declared configuration in the on-disk YAML
// form the managed server reads.
func MarshalConfig(cfg api.DeclaredConfiguration) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal declared configuration: %w", err)
	}
	return data, nil
}

// MaterializeConfig writes the declared configuration to
// {dir}/{instanceID}-config.yaml and returns the file path.
func MaterializeConfig(dir, instanceID string, cfg api.DeclaredConfiguration) (string, error) {
	data, err := MarshalConfig(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, ConfigFileName(instanceID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return path, nil
}

// ConfigFileName returns the materialized configuration file name for
// an instance.
func ConfigFileName(instanceID string) string {
	return instanceID + "-config.yaml"
}
