package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"maestro/internal/api"
	"maestro/internal/platform"
	"maestro/pkg/logging"
)

const processSubsystem = "ProcessDriver"

// execCommand is a variable to allow mocking in tests
var execCommand = exec.Command

// Config holds the process driver settings.
type Config struct {
	// Executable is the managed server binary. Launched as
	// "{executable} --config {file}".
	Executable string

	// WorkingDir is the working directory for launched processes.
	// Empty inherits the worker's.
	WorkingDir string

	// ConfigDir is where declared configurations are materialized.
	// Empty picks a directory under the system temp dir.
	ConfigDir string

	// ShutdownTimeout is the grace period between SIGTERM and SIGKILL.
	ShutdownTimeout time.Duration
}

// child tracks one launched managed server process.
type child struct {
	cmd  *exec.Cmd
	info *api.RuntimeInfo

	// done closes when the wait goroutine has reaped the process.
	done chan struct{}

	logFile       *os.File
	stopRequested bool
	allocatedPort int
}

// Driver runs managed servers as bare OS processes. Each instance gets
// its declared configuration materialized to a YAML file and a child
// process launched from the configured executable.
type Driver struct {
	mu       sync.Mutex
	cfg      Config
	ports    *platform.PortAllocator
	children map[string]*child
}

// New creates a process driver. The executable must be set; other
// fields fall back to defaults.
func New(cfg Config, ports *platform.PortAllocator) (*Driver, error) {
	if cfg.Executable == "" {
		return nil, fmt.Errorf("process driver requires an executable")
	}
	if cfg.ConfigDir == "" {
		cfg.ConfigDir = filepath.Join(os.TempDir(), "maestro-configs")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return &Driver{
		cfg:      cfg,
		ports:    ports,
		children: make(map[string]*child),
	}, nil
}

// Platform implements platform.Driver.
func (d *Driver) Platform() api.PlatformKind { return api.PlatformProcess }

// Available verifies the managed server executable can be launched.
func (d *Driver) Available(ctx context.Context) error {
	if _, err := exec.LookPath(d.cfg.Executable); err != nil {
		return fmt.Errorf("managed server executable not available: %w", err)
	}
	return nil
}

// Allocate reserves a loopback binding for the instance.
func (d *Driver) Allocate(allocator *platform.PortAllocator, instanceID string) (api.ServerBinding, error) {
	port, err := allocator.Allocate(instanceID)
	if err != nil {
		return api.ServerBinding{}, err
	}
	return api.ServerBinding{Host: "127.0.0.1", Port: port}, nil
}

// Start materializes the declared configuration and launches the
// managed server in its own process group.
func (d *Driver) Start(ctx context.Context, instanceID string, cfg api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	if existing, ok := d.children[instanceID]; ok && existing.info.Status == api.StatusRunning {
		d.mu.Unlock()
		return nil, api.NewConflictError(instanceID, "process already running")
	}
	d.mu.Unlock()

	allocatedPort := 0
	if cfg.Port == 0 {
		binding, err := d.Allocate(d.ports, instanceID)
		if err != nil {
			return nil, api.NewPlatformError(api.PlatformProcess, "allocate", instanceID, err)
		}
		cfg.Host = binding.Host
		cfg.Port = binding.Port
		allocatedPort = binding.Port
	}

	configFile, err := platform.MaterializeConfig(d.cfg.ConfigDir, instanceID, cfg)
	if err != nil {
		d.releaseAllocated(allocatedPort, instanceID)
		return nil, api.NewPlatformError(api.PlatformProcess, "start", instanceID, err)
	}

	cmd := execCommand(d.cfg.Executable, "--config", configFile)
	cmd.Dir = d.cfg.WorkingDir
	configureProcAttr(cmd)

	logFile, err := os.Create(filepath.Join(d.cfg.ConfigDir, instanceID+".log"))
	if err != nil {
		d.releaseAllocated(allocatedPort, instanceID)
		return nil, api.NewPlatformError(api.PlatformProcess, "start", instanceID, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		d.releaseAllocated(allocatedPort, instanceID)
		return nil, api.NewPlatformError(api.PlatformProcess, "start", instanceID, err)
	}

	info := &api.RuntimeInfo{
		InstanceID: instanceID,
		Status:     api.StatusRunning,
		StartedAt:  time.Now(),
		ProcessID:  cmd.Process.Pid,
		Metadata: map[string]string{
			"configFile": configFile,
			"port":       strconv.Itoa(cfg.Port),
		},
	}

	c := &child{
		cmd:           cmd,
		info:          info,
		done:          make(chan struct{}),
		logFile:       logFile,
		allocatedPort: allocatedPort,
	}

	d.mu.Lock()
	d.children[instanceID] = c
	d.mu.Unlock()

	go d.wait(instanceID, c)

	logging.Info(processSubsystem, "Started managed server for %s (PID %d, port %d)", instanceID, cmd.Process.Pid, cfg.Port)
	return info.Clone(), nil
}

// wait reaps the child and records how it ended. A stop-requested exit
// becomes Stopped; anything else becomes Error with exit metadata.
func (d *Driver) wait(instanceID string, c *child) {
	err := c.cmd.Wait()
	c.logFile.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	c.info.StoppedAt = &now

	if c.stopRequested {
		c.info.Status = api.StatusStopped
	} else {
		exitCode := c.cmd.ProcessState.ExitCode()
		reason := "process exited"
		if err != nil {
			reason = err.Error()
		}
		c.info.Status = api.StatusError
		c.info.ErrorMessage = fmt.Sprintf("process exited unexpectedly: %s", reason)
		c.info.Metadata["exitCode"] = strconv.Itoa(exitCode)
		c.info.Metadata["exitTime"] = now.Format(time.RFC3339)
		c.info.Metadata["reason"] = reason
		logging.Warn(processSubsystem, "Managed server for %s exited unexpectedly (code %d)", instanceID, exitCode)
	}

	if c.allocatedPort != 0 {
		d.ports.Release(c.allocatedPort, instanceID)
		c.allocatedPort = 0
	}

	close(c.done)
}

// Stop terminates the managed server: SIGTERM to the process group,
// then SIGKILL when the grace period elapses.
func (d *Driver) Stop(ctx context.Context, instanceID string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	c, ok := d.children[instanceID]
	if !ok {
		d.mu.Unlock()
		return nil, api.NewRuntimeNotFoundError(instanceID)
	}

	select {
	case <-c.done:
		// Already exited, stopping is a no-op.
		info := c.info.Clone()
		d.mu.Unlock()
		return info, nil
	default:
	}

	c.stopRequested = true
	pid := c.cmd.Process.Pid
	d.mu.Unlock()

	logging.Info(processSubsystem, "Stopping managed server for %s (PID %d)", instanceID, pid)
	if err := killProcessGroup(pid, syscall.SIGTERM); err != nil {
		logging.Warn(processSubsystem, "Failed to signal process group %d: %v", pid, err)
	}

	select {
	case <-c.done:
	case <-time.After(d.cfg.ShutdownTimeout):
		logging.Warn(processSubsystem, "Graceful shutdown of %s timed out, force killing", instanceID)
		if err := killProcessGroup(pid, syscall.SIGKILL); err != nil {
			return nil, api.NewPlatformError(api.PlatformProcess, "stop", instanceID, err)
		}
		<-c.done
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	d.mu.Lock()
	info := c.info.Clone()
	d.mu.Unlock()
	return info, nil
}

// Restart implements platform.Driver.
func (d *Driver) Restart(ctx context.Context, instanceID string, cfg *api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	return platform.RestartByStopStart(ctx, d, instanceID, cfg)
}

// Status reports the tracked runtime info for the instance.
func (d *Driver) Status(ctx context.Context, instanceID string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.children[instanceID]
	if !ok {
		return nil, api.NewRuntimeNotFoundError(instanceID)
	}
	return c.info.Clone(), nil
}

// ListAll returns runtime info for every tracked instance.
func (d *Driver) ListAll(ctx context.Context) ([]*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]*api.RuntimeInfo, 0, len(d.children))
	for _, c := range d.children {
		infos = append(infos, c.info.Clone())
	}
	return infos, nil
}

// Forget drops an exited instance from tracking, so later commands for
// it report NotFound. A child that is still running stays tracked.
func (d *Driver) Forget(instanceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.children[instanceID]
	if !ok {
		return
	}
	select {
	case <-c.done:
	default:
		return
	}
	delete(d.children, instanceID)
	logging.Debug(processSubsystem, "Dropped exited instance %s from tracking", instanceID)
}

// Purge drops a tracked instance and removes its materialized
// configuration file. Called on Delete after the final stop.
func (d *Driver) Purge(ctx context.Context, instanceID string) error {
	d.mu.Lock()
	c, ok := d.children[instanceID]
	var configFile string
	if ok {
		delete(d.children, instanceID)
		configFile = c.info.Metadata["configFile"]
	}
	d.mu.Unlock()

	if configFile == "" {
		return nil
	}
	if err := os.Remove(configFile); err != nil && !os.IsNotExist(err) {
		logging.Debug(processSubsystem, "Could not remove config file %s: %v", configFile, err)
	}
	return nil
}

func (d *Driver) releaseAllocated(port int, instanceID string) {
	if port != 0 {
		d.ports.Release(port, instanceID)
	}
}
