package executor

import (
	"context"
	"time"

	"github.com/desktopai/runcontrol/internal/domain"
)

// Simulated always succeeds. It backs tests and the offline/non-Windows
// development mode, mirroring the original implementation's
// SimulatedTaskActionExecutor.
type Simulated struct{}

// NewSimulated constructs a Simulated executor.
func NewSimulated() *Simulated { return &Simulated{} }

func (s *Simulated) Execute(_ context.Context, action domain.Action, _ string, _ *domain.Observation) Result {
	return Result{
		OK: true,
		Result: map[string]any{
			"executor":   "simulated",
			"action":     action.Name,
			"ok":         true,
			"simulated":  true,
			"parameters": action.Parameters,
		},
	}
}

func (s *Simulated) Status(_ context.Context) map[string]any {
	return map[string]any{"executor": "simulated", "connected": true, "checked_at": time.Now().UTC()}
}

func (s *Simulated) Preflight(_ context.Context) error { return nil }
