package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desktopai/runcontrol/internal/domain"
	"github.com/desktopai/runcontrol/internal/orchestrator"
	"github.com/desktopai/runcontrol/internal/planner"
)

type approveCall struct{ taskID, token string }

type fakeOrchestrator struct {
	mu             sync.Mutex
	seq            int
	runTaskQueue   []func() (*domain.TaskRecord, error)
	approveCalls   []approveCall
	approveResult  *domain.TaskRecord
	approveErr     error
	cancelledTasks []string
}

func (f *fakeOrchestrator) CreateTask(objective string) *domain.TaskRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	now := time.Now().UTC()
	return &domain.TaskRecord{ID: fmt.Sprintf("task-%d", f.seq), Objective: objective, Status: domain.TaskCreated, CreatedAt: now, UpdatedAt: now}
}

func (f *fakeOrchestrator) SetPlan(taskID string, _ []orchestrator.PlannedStep) (*domain.TaskRecord, error) {
	return &domain.TaskRecord{ID: taskID, Status: domain.TaskPlanned}, nil
}

func (f *fakeOrchestrator) RunTask(_ context.Context, taskID string) (*domain.TaskRecord, error) {
	f.mu.Lock()
	var next func() (*domain.TaskRecord, error)
	if len(f.runTaskQueue) > 0 {
		next = f.runTaskQueue[0]
		f.runTaskQueue = f.runTaskQueue[1:]
	}
	f.mu.Unlock()
	if next == nil {
		return &domain.TaskRecord{ID: taskID, Status: domain.TaskCompleted}, nil
	}
	return next()
}

func (f *fakeOrchestrator) Approve(_ context.Context, taskID, token string) (*domain.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approveCalls = append(f.approveCalls, approveCall{taskID, token})
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return f.approveResult, nil
}

func (f *fakeOrchestrator) Cancel(taskID string) (*domain.TaskRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledTasks = append(f.cancelledTasks, taskID)
	return &domain.TaskRecord{ID: taskID, Status: domain.TaskCancelled}, nil
}

type fakePlanner struct{}

func (fakePlanner) BuildPlan(_ context.Context, objective string) (string, []planner.Step, error) {
	return "fake-mode", []planner.Step{{Action: domain.Action{Name: "observe_desktop"}}}, nil
}

func newRunner(orch Orchestrator) (*Runner, chan *domain.AutonomyRunRecord) {
	updates := make(chan *domain.AutonomyRunRecord, 256)
	r := New(Config{
		Orchestrator: orch,
		Planner:      fakePlanner{},
		AgentLogCap:  200,
		OnUpdate: func(rec *domain.AutonomyRunRecord) {
			updates <- rec
		},
	})
	return r, updates
}

func drainUntilRun(t *testing.T, updates chan *domain.AutonomyRunRecord, status domain.RunStatus, timeout time.Duration) *domain.AutonomyRunRecord {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case rec := <-updates:
			if rec.Status == status {
				return rec
			}
		case <-deadline:
			t.Fatalf("timed out waiting for run status %s", status)
		}
	}
}

func waitingApprovalTask(taskID, token string) *domain.TaskRecord {
	return &domain.TaskRecord{ID: taskID, Status: domain.TaskWaitingApproval, ApprovalToken: &token}
}

func TestAutonomousAutoApprovesAndCompletes(t *testing.T) {
	fo := &fakeOrchestrator{
		runTaskQueue: []func() (*domain.TaskRecord, error){
			func() (*domain.TaskRecord, error) { return waitingApprovalTask("task-1", "tok-1"), nil },
		},
		approveResult: &domain.TaskRecord{ID: "task-1", Status: domain.TaskCompleted},
	}
	r, updates := newRunner(fo)

	run, err := r.Start(context.Background(), StartRequest{Objective: "delete old files", AutonomyLevel: domain.AutonomyAutonomous})
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, run.Status)

	final := drainUntilRun(t, updates, domain.RunCompleted, time.Second)
	assert.Equal(t, run.ID, final.ID)
	require.Len(t, fo.approveCalls, 1)
	assert.Equal(t, "tok-1", fo.approveCalls[0].token)
}

func TestSupervisedStopsAtWaitingApprovalThenApproveCompletes(t *testing.T) {
	fo := &fakeOrchestrator{
		runTaskQueue: []func() (*domain.TaskRecord, error){
			func() (*domain.TaskRecord, error) { return waitingApprovalTask("task-1", "tok-1"), nil },
		},
		approveResult: &domain.TaskRecord{ID: "task-1", Status: domain.TaskCompleted},
	}
	r, updates := newRunner(fo)

	run, err := r.Start(context.Background(), StartRequest{Objective: "send the email", AutonomyLevel: domain.AutonomySupervised})
	require.NoError(t, err)
	assert.Equal(t, domain.RunRunning, run.Status)

	waiting := drainUntilRun(t, updates, domain.RunWaitingApproval, time.Second)
	require.NotNil(t, waiting.ApprovalToken)
	assert.Equal(t, "tok-1", *waiting.ApprovalToken)
	assert.Empty(t, fo.approveCalls)

	final, err := r.Approve(context.Background(), run.ID, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, final.Status)
}

func TestIterationBudgetExhaustedFailsRun(t *testing.T) {
	fo := &fakeOrchestrator{
		runTaskQueue: []func() (*domain.TaskRecord, error){
			func() (*domain.TaskRecord, error) { return &domain.TaskRecord{ID: "task-1", Status: domain.TaskRunning}, nil },
			func() (*domain.TaskRecord, error) { return &domain.TaskRecord{ID: "task-1", Status: domain.TaskRunning}, nil },
		},
	}
	r, updates := newRunner(fo)

	_, err := r.Start(context.Background(), StartRequest{Objective: "loop forever", MaxIterations: 2, AutonomyLevel: domain.AutonomySupervised})
	require.NoError(t, err)

	final := drainUntilRun(t, updates, domain.RunFailed, time.Second)
	assert.Contains(t, final.LastError, "maximum iteration budget reached")
}

func TestCancelTransitionsRunAndPropagatesToTask(t *testing.T) {
	block := make(chan struct{})
	fo := &fakeOrchestrator{
		runTaskQueue: []func() (*domain.TaskRecord, error){
			func() (*domain.TaskRecord, error) {
				<-block
				return &domain.TaskRecord{ID: "task-1", Status: domain.TaskCompleted}, nil
			},
		},
	}
	r, _ := newRunner(fo)

	run, err := r.Start(context.Background(), StartRequest{Objective: "will be cancelled"})
	require.NoError(t, err)

	cancelled, err := r.Cancel(run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCancelled, cancelled.Status)
	close(block)

	require.Eventually(t, func() bool {
		fo.mu.Lock()
		defer fo.mu.Unlock()
		return len(fo.cancelledTasks) == 1
	}, time.Second, time.Millisecond)

	_, err = r.Cancel(run.ID)
	require.Error(t, err, "cancel on a terminal run must fail")
}

func TestHydrateRunsRewritesNonTerminalRuns(t *testing.T) {
	fo := &fakeOrchestrator{}
	r, _ := newRunner(fo)

	now := time.Now().UTC()
	running := &domain.AutonomyRunRecord{ID: "run-running", TaskID: "task-1", Status: domain.RunRunning, StartedAt: now, UpdatedAt: now}
	completed := &domain.AutonomyRunRecord{ID: "run-done", TaskID: "task-2", Status: domain.RunCompleted, StartedAt: now, UpdatedAt: now}

	r.HydrateRuns([]*domain.AutonomyRunRecord{running, completed})

	rec, err := r.GetRun("run-running")
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, rec.Status)
	assert.Contains(t, rec.LastError, "restored as failed after process restart")

	rec2, err := r.GetRun("run-done")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, rec2.Status)
}

func TestShutdownForceFailsRemainingRuns(t *testing.T) {
	block := make(chan struct{})
	fo := &fakeOrchestrator{
		runTaskQueue: []func() (*domain.TaskRecord, error){
			func() (*domain.TaskRecord, error) {
				<-block
				return &domain.TaskRecord{ID: "task-1", Status: domain.TaskCompleted}, nil
			},
		},
	}
	r, _ := newRunner(fo)

	run, err := r.Start(context.Background(), StartRequest{Objective: "will be interrupted"})
	require.NoError(t, err)

	r.Shutdown(context.Background(), 20*time.Millisecond)
	close(block)

	rec, err := r.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, rec.Status)
	assert.Contains(t, rec.LastError, "interrupted by backend shutdown")
}

func TestListRunsOrderedByStart(t *testing.T) {
	fo := &fakeOrchestrator{}
	r, _ := newRunner(fo)

	a, err := r.Start(context.Background(), StartRequest{Objective: "first"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	b, err := r.Start(context.Background(), StartRequest{Objective: "second"})
	require.NoError(t, err)

	all := r.ListRuns()
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)
}
