package config

import (
	"fmt"
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
)

// Config is the top-level configuration structure for maestro. One file
// configures every run mode; each mode reads only the sections it needs.
type Config struct {
	Bus        BusConfig        `yaml:"bus,omitempty"`
	API        APIConfig        `yaml:"api,omitempty"`
	Worker     WorkerConfig     `yaml:"worker,omitempty"`
	Reconciler ReconcilerConfig `yaml:"reconciler,omitempty"`
}

const (
	// TransportMemory runs the bus in-process. Only useful in standalone mode.
	TransportMemory = "memory"
	// TransportRedis backs the bus with redis pub/sub.
	TransportRedis = "redis"
)

// BusConfig selects and configures the message bus transport.
// Redis settings reuse bus.RedisConfig to avoid duplication.
type BusConfig struct {
	Transport string          `yaml:"transport,omitempty"` // memory | redis (default: memory)
	Redis     bus.RedisConfig `yaml:"redis,omitempty"`
}

// APIConfig configures the API node: HTTP surface, instance service and
// the optional definitions directory.
type APIConfig struct {
	Listen         string        `yaml:"listen,omitempty"`         // HTTP listen address (default: :8090)
	DefinitionsDir string        `yaml:"definitionsDir,omitempty"` // instance definition files; empty disables autoload
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty"` // bus request/reply deadline (default: 30s)
}

// WorkerConfig configures a platform worker node.
type WorkerConfig struct {
	Platform        api.PlatformKind `yaml:"platform,omitempty"`        // process | container | pod (default: process)
	Executable      string           `yaml:"executable,omitempty"`      // managed server binary (process platform)
	WorkingDir      string           `yaml:"workingDir,omitempty"`      // working directory for launched processes
	ConfigDir       string           `yaml:"configDir,omitempty"`       // where materialized configuration files land
	Image           string           `yaml:"image,omitempty"`           // managed server image (container and pod platforms)
	Namespace       string           `yaml:"namespace,omitempty"`       // target namespace (pod platform, default: default)
	ShutdownTimeout time.Duration    `yaml:"shutdownTimeout,omitempty"` // grace period before a stop turns forceful (default: 10s)
	// HealthInterval overrides the health monitor poll interval.
	// Zero selects the platform default: 10s for process, 15s for
	// container and pod.
	HealthInterval time.Duration `yaml:"healthInterval,omitempty"`
}

// ReconcilerConfig configures the drift reconciler node.
type ReconcilerConfig struct {
	APIBaseURL            string        `yaml:"apiBaseUrl,omitempty"`            // API node to reconcile against (default: http://localhost:8090)
	PollingInterval       time.Duration `yaml:"pollingInterval,omitempty"`       // drift check cadence (default: 30s)
	MaxRetries            int           `yaml:"maxRetries,omitempty"`            // attempts per drifted instance (default: 3)
	RetryDelay            time.Duration `yaml:"retryDelay,omitempty"`            // spacing between retries (default: 10s)
	ReconciliationTimeout time.Duration `yaml:"reconciliationTimeout,omitempty"` // per-attempt deadline (default: 5m)
	Concurrency           int           `yaml:"concurrency,omitempty"`           // parallel reconciliations (default: 5)
	ReconcileStopped      bool          `yaml:"reconcileStopped,omitempty"`      // also converge Stopped instances (default: false)
	ReconcileError        bool          `yaml:"reconcileError"`                  // also converge Error instances (default: true)
}

// Validate reports the first structural problem with the configuration.
func (c Config) Validate() error {
	switch c.Bus.Transport {
	case TransportMemory, TransportRedis:
	default:
		return fmt.Errorf("bus.transport must be %q or %q, got %q", TransportMemory, TransportRedis, c.Bus.Transport)
	}
	if !c.Worker.Platform.Valid() {
		return fmt.Errorf("worker.platform %q is not a known platform", c.Worker.Platform)
	}
	if c.Reconciler.Concurrency < 1 {
		return fmt.Errorf("reconciler.concurrency must be at least 1, got %d", c.Reconciler.Concurrency)
	}
	if c.Reconciler.MaxRetries < 1 {
		return fmt.Errorf("reconciler.maxRetries must be at least 1, got %d", c.Reconciler.MaxRetries)
	}
	return nil
}
