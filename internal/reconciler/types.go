package reconciler

import (
	"context"
	"time"

	"maestro/internal/api"
)

// APIClient is the slice of the control-plane API the reconciler
// consumes. internal/client.Client implements it over HTTP; tests
// implement it directly.
type APIClient interface {
	ListInstances(ctx context.Context) ([]*api.Instance, error)
	GetInstance(ctx context.Context, id string) (*api.Instance, error)
	GetConfiguration(ctx context.Context, id string) (*api.DeclaredConfiguration, error)
	StartInstance(ctx context.Context, id string, override *api.DeclaredConfiguration) (*api.RuntimeInfo, error)
	StopInstance(ctx context.Context, id string) (*api.RuntimeInfo, error)
	GetRecentChanges(ctx context.Context, since time.Time, statusFilter api.InstanceStatus) ([]api.StatusChangeRecord, error)
}

// Strategy closes drift for one instance. Apply blocks until the
// instance converged or the attempt failed; the context bounds one
// attempt.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, instanceID string, desired *api.DeclaredConfiguration) error
}

// ChangeDetector feeds instance ids whose configuration changed into
// the reconciler's change channel.
type ChangeDetector interface {
	Start(ctx context.Context, changes chan<- string) error
	Stop() error
}

// Config tunes the reconciliation loops. Zero values select the
// defaults noted per field.
type Config struct {
	// PollingInterval spaces full reconcile cycles. Default 30 s.
	PollingInterval time.Duration

	// MaxRetries bounds strategy attempts per reconcile. Default 3.
	MaxRetries int

	// RetryDelay spaces strategy attempts. Default 10 s.
	RetryDelay time.Duration

	// ReconcileTimeout bounds each strategy attempt. Default 5 min.
	ReconcileTimeout time.Duration

	// Concurrency bounds parallel reconciles in a cycle. Default 5.
	Concurrency int64

	// ReconcileStoppedInstances includes Stopped instances in cycles.
	// Stopped is an operator decision, so the default is to leave
	// those instances alone.
	ReconcileStoppedInstances bool

	// SkipErrorInstances excludes Error instances from cycles. The
	// default reconciles them, which is what heals a crashed instance
	// whose declared state says it should run.
	SkipErrorInstances bool
}

const (
	defaultPollingInterval  = 30 * time.Second
	defaultMaxRetries       = 3
	defaultRetryDelay       = 10 * time.Second
	defaultReconcileTimeout = 5 * time.Minute
	defaultConcurrency      = 5
)

func (c Config) withDefaults() Config {
	if c.PollingInterval <= 0 {
		c.PollingInterval = defaultPollingInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.ReconcileTimeout <= 0 {
		c.ReconcileTimeout = defaultReconcileTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	return c
}

// DriftResult describes the comparison of desired configuration
// against the last applied one.
type DriftResult struct {
	InstanceID string   `json:"instanceId"`
	Drifted    bool     `json:"drifted"`
	Reasons    []string `json:"reasons,omitempty"`
}

// AuditEntry records one reconciliation of one instance.
type AuditEntry struct {
	InstanceID string    `json:"instanceId"`
	Timestamp  time.Time `json:"timestamp"`
	Drift      bool      `json:"drift"`
	Reasons    []string  `json:"reasons,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Attempts   int       `json:"attempts"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
}
