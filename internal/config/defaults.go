package config

import (
	"time"

	"maestro/internal/api"
	"maestro/internal/bus"
)

const (
	// DefaultListenAddress is the default API node HTTP listen address.
	DefaultListenAddress = ":8090"

	// DefaultRedisAddr is the default redis endpoint for the bus transport.
	DefaultRedisAddr = "localhost:6379"

	// DefaultRequestTimeout bounds every command request/reply on the bus.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the grace period a worker gives a managed
	// server before a stop turns forceful.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultPollingInterval is the reconciler drift check cadence.
	DefaultPollingInterval = 30 * time.Second

	// DefaultMaxRetries is the number of reconciliation attempts per
	// drifted instance before giving up until the next detection.
	DefaultMaxRetries = 3

	// DefaultRetryDelay spaces consecutive reconciliation attempts.
	DefaultRetryDelay = 10 * time.Second

	// DefaultReconciliationTimeout bounds a single reconciliation attempt.
	DefaultReconciliationTimeout = 5 * time.Minute

	// DefaultConcurrency caps parallel reconciliations per cycle.
	DefaultConcurrency = 5
)

// GetDefaultConfig returns the configuration every run mode starts from.
// Loaded files and flags overlay these values.
func GetDefaultConfig() Config {
	return Config{
		Bus: BusConfig{
			Transport: TransportMemory,
			Redis:     bus.RedisConfig{Addr: DefaultRedisAddr},
		},
		API: APIConfig{
			Listen:         DefaultListenAddress,
			RequestTimeout: DefaultRequestTimeout,
		},
		Worker: WorkerConfig{
			Platform:        api.PlatformProcess,
			Namespace:       "default",
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Reconciler: ReconcilerConfig{
			APIBaseURL:            "http://localhost" + DefaultListenAddress,
			PollingInterval:       DefaultPollingInterval,
			MaxRetries:            DefaultMaxRetries,
			RetryDelay:            DefaultRetryDelay,
			ReconciliationTimeout: DefaultReconciliationTimeout,
			Concurrency:           DefaultConcurrency,
			ReconcileStopped:      false,
			ReconcileError:        true,
		},
	}
}
