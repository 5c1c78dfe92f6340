// Package executor implements the Action Executor interface and its
// variants: simulated, bridge-backed, and browser-backed.
package executor

import (
	"context"

	"github.com/desktopai/runcontrol/internal/domain"
)

// Result is what an executor hands back for one dispatched Action.
type Result struct {
	OK     bool
	Result map[string]any
	Error  string
}

// Executor is the polymorphic capability set every Action Executor
// variant implements. Implementations must not mutate shared state; they
// are free to talk to the outside world.
type Executor interface {
	// Execute performs action against the configured target, given the
	// task's objective text and the current Observation if one is
	// available.
	Execute(ctx context.Context, action domain.Action, objective string, obs *domain.Observation) Result

	// Status reports whether the executor's target is currently reachable.
	Status(ctx context.Context) map[string]any

	// Preflight performs any target-specific readiness check and returns
	// a non-nil error when the target is not ready. The orchestrator and
	// runner do not call it; dispatch proceeds regardless of its result.
	Preflight(ctx context.Context) error
}

// failResult builds the minimum-shaped failure result §4.2 requires.
func failResult(executorName, action, errMsg string) Result {
	return Result{
		OK:    false,
		Error: errMsg,
		Result: map[string]any{
			"executor": executorName,
			"action":   action,
			"ok":       false,
		},
	}
}
