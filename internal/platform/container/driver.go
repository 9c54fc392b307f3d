package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"maestro/internal/api"
	"maestro/internal/platform"
	"maestro/pkg/logging"
)

const containerSubsystem = "ContainerDriver"

// configMountPath is where the materialized configuration is mounted
// inside the container; images are expected to read it from there.
const configMountPath = "/etc/managed-server/config.yaml"

// Variables to allow mocking in tests
var (
	execCommandContext = exec.CommandContext
	lookPath           = exec.LookPath
)

// Config holds the container driver settings.
type Config struct {
	// Image is the managed server container image.
	Image string

	// ConfigDir is where declared configurations are materialized
	// before being bind-mounted into the container.
	ConfigDir string

	// ShutdownTimeout is the grace period docker gives the container
	// on stop before killing it.
	ShutdownTimeout time.Duration
}

type instance struct {
	info          *api.RuntimeInfo
	allocatedPort int
}

// Driver runs managed servers as docker containers through the docker
// CLI. Each instance gets a container named maestro-{id} with the
// declared configuration bind-mounted read-only.
type Driver struct {
	mu      sync.Mutex
	cfg     Config
	ports   *platform.PortAllocator
	tracked map[string]*instance
}

// New creates a container driver and verifies docker is usable.
func New(cfg Config, ports *platform.PortAllocator) (*Driver, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("container driver requires an image")
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = filepath.Join(os.TempDir(), "maestro-configs")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	d := &Driver{
		cfg:     cfg,
		ports:   ports,
		tracked: make(map[string]*instance),
	}
	if err := d.Available(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

// Platform implements platform.Driver.
func (d *Driver) Platform() api.PlatformKind { return api.PlatformContainer }

// Available checks the docker CLI is present and the daemon reachable.
func (d *Driver) Available(ctx context.Context) error {
	if _, err := lookPath("docker"); err != nil {
		return fmt.Errorf("docker command not found in PATH: %w", err)
	}
	cmd := execCommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

// Allocate reserves a host port binding for the instance.
func (d *Driver) Allocate(allocator *platform.PortAllocator, instanceID string) (api.ServerBinding, error) {
	port, err := allocator.Allocate(instanceID)
	if err != nil {
		return api.ServerBinding{}, err
	}
	return api.ServerBinding{Host: "127.0.0.1", Port: port}, nil
}

// Start materializes the declared configuration and runs a detached
// container with the configuration mounted and the server port
// published.
func (d *Driver) Start(ctx context.Context, instanceID string, cfg api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	if existing, ok := d.tracked[instanceID]; ok && existing.info.Status == api.StatusRunning {
		d.mu.Unlock()
		return nil, api.NewConflictError(instanceID, "container already running")
	}
	d.mu.Unlock()

	allocatedPort := 0
	if cfg.Port == 0 {
		binding, err := d.Allocate(d.ports, instanceID)
		if err != nil {
			return nil, api.NewPlatformError(api.PlatformContainer, "allocate", instanceID, err)
		}
		cfg.Host = binding.Host
		cfg.Port = binding.Port
		allocatedPort = binding.Port
	}

	configFile, err := platform.MaterializeConfig(d.cfg.ConfigDir, instanceID, cfg)
	if err != nil {
		d.releaseAllocated(allocatedPort, instanceID)
		return nil, api.NewPlatformError(api.PlatformContainer, "start", instanceID, err)
	}

	name := containerName(instanceID)
	args := []string{
		"run", "-d",
		"--name", name,
		"--label", "maestro.instance=" + instanceID,
		"-p", fmt.Sprintf("%d:%d", cfg.Port, cfg.Port),
		"-v", fmt.Sprintf("%s:%s:ro", configFile, configMountPath),
		d.cfg.Image,
	}

	logging.Debug(containerSubsystem, "Starting container with command: docker %s", strings.Join(args, " "))
	cmd := execCommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		d.releaseAllocated(allocatedPort, instanceID)
		return nil, api.NewPlatformError(api.PlatformContainer, "start", instanceID,
			fmt.Errorf("docker run failed: %w\nOutput: %s", err, string(output)))
	}

	containerID := strings.TrimSpace(string(output))
	logging.Info(containerSubsystem, "Started container %s with ID %s", name, shortID(containerID))

	info := &api.RuntimeInfo{
		InstanceID:  instanceID,
		Status:      api.StatusRunning,
		StartedAt:   time.Now(),
		ContainerID: containerID,
		Metadata: map[string]string{
			"containerName": name,
			"configFile":    configFile,
			"port":          strconv.Itoa(cfg.Port),
		},
	}

	d.mu.Lock()
	d.tracked[instanceID] = &instance{info: info, allocatedPort: allocatedPort}
	d.mu.Unlock()

	return info.Clone(), nil
}

// Stop stops the container, giving it the configured grace period.
func (d *Driver) Stop(ctx context.Context, instanceID string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	inst, ok := d.tracked[instanceID]
	d.mu.Unlock()
	if !ok {
		return nil, api.NewRuntimeNotFoundError(instanceID)
	}

	name := containerName(instanceID)
	logging.Info(containerSubsystem, "Stopping container %s", name)

	graceSeconds := int(d.cfg.ShutdownTimeout / time.Second)
	cmd := execCommandContext(ctx, "docker", "stop", "-t", strconv.Itoa(graceSeconds), name)
	if err := cmd.Run(); err != nil {
		return nil, api.NewPlatformError(api.PlatformContainer, "stop", instanceID,
			fmt.Errorf("docker stop failed: %w", err))
	}

	d.mu.Lock()
	now := time.Now()
	inst.info.Status = api.StatusStopped
	inst.info.StoppedAt = &now
	if inst.allocatedPort != 0 {
		d.ports.Release(inst.allocatedPort, instanceID)
		inst.allocatedPort = 0
	}
	info := inst.info.Clone()
	d.mu.Unlock()

	return info, nil
}

// Restart implements platform.Driver.
func (d *Driver) Restart(ctx context.Context, instanceID string, cfg *api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	return platform.RestartByStopStart(ctx, d, instanceID, cfg)
}

// Status inspects the container and maps its state onto an instance
// status. The tracked runtime info is refreshed with the observation.
func (d *Driver) Status(ctx context.Context, instanceID string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	inst, ok := d.tracked[instanceID]
	d.mu.Unlock()
	if !ok {
		return nil, api.NewRuntimeNotFoundError(instanceID)
	}

	cmd := execCommandContext(ctx, "docker", "inspect", "-f", "{{.State.Status}} {{.State.ExitCode}}", containerName(instanceID))
	output, err := cmd.Output()
	if err != nil {
		return nil, api.NewPlatformError(api.PlatformContainer, "status", instanceID,
			fmt.Errorf("docker inspect failed: %w", err))
	}

	status, errorMessage, metadata := mapContainerState(strings.TrimSpace(string(output)))

	d.mu.Lock()
	inst.info.Status = status
	inst.info.ErrorMessage = errorMessage
	for k, v := range metadata {
		inst.info.Metadata[k] = v
	}
	if status == api.StatusStopped || status == api.StatusError {
		if inst.info.StoppedAt == nil {
			now := time.Now()
			inst.info.StoppedAt = &now
		}
		if inst.allocatedPort != 0 {
			d.ports.Release(inst.allocatedPort, instanceID)
			inst.allocatedPort = 0
		}
	}
	info := inst.info.Clone()
	d.mu.Unlock()

	return info, nil
}

// ListAll returns runtime info for every tracked instance.
func (d *Driver) ListAll(ctx context.Context) ([]*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]*api.RuntimeInfo, 0, len(d.tracked))
	for _, inst := range d.tracked {
		infos = append(infos, inst.info.Clone())
	}
	return infos, nil
}

// Purge force-removes the container and the materialized configuration.
func (d *Driver) Purge(ctx context.Context, instanceID string) error {
	name := containerName(instanceID)
	logging.Debug(containerSubsystem, "Removing container %s", name)

	cmd := execCommandContext(ctx, "docker", "rm", "-f", name)
	if output, err := cmd.CombinedOutput(); err != nil {
		// A missing container is fine, anything else is not.
		if !strings.Contains(strings.ToLower(string(output)), "no such container") {
			return api.NewPlatformError(api.PlatformContainer, "purge", instanceID,
				fmt.Errorf("docker rm failed: %w\nOutput: %s", err, string(output)))
		}
	}

	d.mu.Lock()
	inst, ok := d.tracked[instanceID]
	var configFile string
	if ok {
		delete(d.tracked, instanceID)
		configFile = inst.info.Metadata["configFile"]
		if inst.allocatedPort != 0 {
			d.ports.Release(inst.allocatedPort, instanceID)
		}
	}
	d.mu.Unlock()

	if configFile != "" {
		if err := os.Remove(configFile); err != nil && !os.IsNotExist(err) {
			logging.Debug(containerSubsystem, "Could not remove config file %s: %v", configFile, err)
		}
	}
	return nil
}

func (d *Driver) releaseAllocated(port int, instanceID string) {
	if port != 0 {
		d.ports.Release(port, instanceID)
	}
}

// mapContainerState turns "docker inspect" state output ("running 0",
// "exited 137", ...) into an instance status.
func mapContainerState(state string) (api.InstanceStatus, string, map[string]string) {
	fields := strings.Fields(state)
	if len(fields) == 0 {
		return api.StatusError, "container state unreadable", nil
	}

	switch fields[0] {
	case "running", "restarting", "paused":
		return api.StatusRunning, "", nil
	case "created":
		return api.StatusCreated, "", nil
	case "exited":
		exitCode := 0
		if len(fields) > 1 {
			exitCode, _ = strconv.Atoi(fields[1])
		}
		if exitCode == 0 {
			return api.StatusStopped, "", nil
		}
		return api.StatusError,
			fmt.Sprintf("container exited with code %d", exitCode),
			map[string]string{
				"exitCode": strconv.Itoa(exitCode),
				"exitTime": time.Now().Format(time.RFC3339),
				"reason":   "container exited",
			}
	default:
		return api.StatusError, fmt.Sprintf("container in state %q", fields[0]), nil
	}
}

func containerName(instanceID string) string {
	return "maestro-" + instanceID
}

func shortID(containerID string) string {
	if len(containerID) > 12 {
		return containerID[:12]
	}
	return containerID
}
