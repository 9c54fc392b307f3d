package reconciler

import (
	"context"
	"fmt"
	"time"

	"maestro/internal/api"
)

// restartSettleDelay gives the managed server time to release its
// binding between the stop and start phases.
const restartSettleDelay = 2 * time.Second

// RestartStrategy converges an instance by stopping it and starting it
// again with the desired configuration. It is the only implemented
// strategy; the strategy interface exists so richer rollouts can slot
// in without touching the reconcile loop.
type RestartStrategy struct {
	api    APIClient
	settle time.Duration
}

// NewRestartStrategy builds the strategy. A zero settle delay selects
// the 2 s default.
func NewRestartStrategy(api APIClient, settle time.Duration) *RestartStrategy {
	if settle <= 0 {
		settle = restartSettleDelay
	}
	return &RestartStrategy{api: api, settle: settle}
}

func (s *RestartStrategy) Name() string { return "Restart" }

// Apply stops the instance, waits for the binding to settle, and starts
// it with the desired configuration. A NotFound on the stop phase is
// fine: the instance is already not running, which is the state the
// stop was after.
func (s *RestartStrategy) Apply(ctx context.Context, instanceID string, desired *api.DeclaredConfiguration) error {
	if _, err := s.api.StopInstance(ctx, instanceID); err != nil && !api.IsNotFound(err) {
		return fmt.Errorf("stop phase: %w", err)
	}

	select {
	case <-time.After(s.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := s.api.StartInstance(ctx, instanceID, desired); err != nil {
		return fmt.Errorf("start phase: %w", err)
	}
	return nil
}
