package httpapi

import (
	"context"

	"github.com/desktopai/runcontrol/internal/broadcast"
	"github.com/desktopai/runcontrol/internal/domain"
	"github.com/desktopai/runcontrol/internal/orchestrator"
	"github.com/desktopai/runcontrol/internal/runner"
)

// TaskService is the subset of the Task Orchestrator the HTTP API binds.
type TaskService interface {
	CreateTask(objective string) *domain.TaskRecord
	SetPlan(taskID string, steps []orchestrator.PlannedStep) (*domain.TaskRecord, error)
	RunTask(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	Approve(ctx context.Context, taskID, token string) (*domain.TaskRecord, error)
	Pause(taskID string) (*domain.TaskRecord, error)
	Resume(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	Cancel(taskID string) (*domain.TaskRecord, error)
	GetTask(taskID string) (*domain.TaskRecord, error)
	ListTasks() []*domain.TaskRecord
}

// RunService is the subset of the Autonomy Runner the HTTP API binds.
type RunService interface {
	Start(ctx context.Context, req runner.StartRequest) (*domain.AutonomyRunRecord, error)
	Approve(ctx context.Context, runID, token string) (*domain.AutonomyRunRecord, error)
	Cancel(runID string) (*domain.AutonomyRunRecord, error)
	GetRun(runID string) (*domain.AutonomyRunRecord, error)
	ListRuns() []*domain.AutonomyRunRecord
}

// BroadcastHub is the subset of the Broadcast Hub the /ws/updates
// endpoint registers subscribers against.
type BroadcastHub interface {
	Add(conn broadcast.Conn) (id string, ok bool)
	Remove(id string)
}
