package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desktopai/runcontrol/internal/domain"
	"github.com/desktopai/runcontrol/internal/executor"
)

type scriptedExecutor struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]executor.Result // by action name, consumed in order
}

func (e *scriptedExecutor) Execute(_ context.Context, action domain.Action, _ string, _ *domain.Observation) executor.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, action.Name)
	queue := e.results[action.Name]
	if len(queue) == 0 {
		return executor.Result{OK: true, Result: map[string]any{"executor": "scripted", "action": action.Name, "ok": true}}
	}
	next := queue[0]
	e.results[action.Name] = queue[1:]
	return next
}

func (e *scriptedExecutor) Status(context.Context) map[string]any { return map[string]any{} }
func (e *scriptedExecutor) Preflight(context.Context) error        { return nil }

func (e *scriptedExecutor) callCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fakeStateStore struct{}

func (fakeStateStore) Current() *domain.Observation { return nil }

func newOrchestrator(exec executor.Executor) (*Orchestrator, chan *domain.TaskRecord) {
	updates := make(chan *domain.TaskRecord, 256)
	o := New(Config{
		Executor:   exec,
		StateStore: fakeStateStore{},
		RetryCount: 3,
		RetryDelay: time.Millisecond,
		OnUpdate: func(t *domain.TaskRecord) {
			updates <- t
		},
	})
	return o, updates
}

func drainUntil(t *testing.T, updates chan *domain.TaskRecord, status domain.TaskStatus, timeout time.Duration) *domain.TaskRecord {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case rec := <-updates:
			if rec.Status == status {
				return rec
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %s", status)
		}
	}
}

func twoStepPlan() []PlannedStep {
	return []PlannedStep{
		{Action: domain.Action{Name: "open_application", Parameters: map[string]any{"name": "notes"}}},
		{Action: domain.Action{Name: "observe_desktop"}},
	}
}

func TestAutoCompletesPlanWithoutApprovalGates(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, updates := newOrchestrator(exec)

	task := o.CreateTask("draft a note")
	_, err := o.SetPlan(task.ID, twoStepPlan())
	require.NoError(t, err)

	final, err := o.RunTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, final.Status)
	assert.Nil(t, final.CurrentStepIndex)
	for _, step := range final.Steps {
		assert.Equal(t, domain.StepSucceeded, step.Status)
	}

	completed := drainUntil(t, updates, domain.TaskCompleted, time.Second)
	assert.Equal(t, task.ID, completed.ID)
}

func TestApprovalGateThenComplete(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, updates := newOrchestrator(exec)

	task := o.CreateTask("delete temp files")
	plan := []PlannedStep{
		{Action: domain.Action{Name: "delete_file", Parameters: map[string]any{"path": "/tmp/x"}, Irreversible: true}},
	}
	_, err := o.SetPlan(task.ID, plan)
	require.NoError(t, err)

	waiting, err := o.RunTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskWaitingApproval, waiting.Status)
	require.NotNil(t, waiting.ApprovalToken)
	assert.Equal(t, domain.StepBlocked, waiting.Steps[0].Status)
	assert.False(t, waiting.Steps[0].Approved)

	drainUntil(t, updates, domain.TaskWaitingApproval, time.Second)

	final, err := o.Approve(context.Background(), task.ID, *waiting.ApprovalToken)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, final.Status)
	assert.True(t, final.Steps[0].Approved)
	assert.Equal(t, domain.StepSucceeded, final.Steps[0].Status)

	drainUntil(t, updates, domain.TaskCompleted, time.Second)
}

func TestInvalidApprovalTokenLeavesTaskUntouched(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, _ := newOrchestrator(exec)

	task := o.CreateTask("send payment")
	plan := []PlannedStep{
		{Action: domain.Action{Name: "submit_payment", Irreversible: true}},
	}
	_, err := o.SetPlan(task.ID, plan)
	require.NoError(t, err)

	waiting, err := o.RunTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskWaitingApproval, waiting.Status)

	_, err = o.Approve(context.Background(), task.ID, "not-the-token")
	require.Error(t, err)

	after, err := o.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskWaitingApproval, after.Status)
	assert.Equal(t, *waiting.ApprovalToken, *after.ApprovalToken)
}

func TestRetryThenSucceeds(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{
		"flaky_action": {
			{OK: false, Error: "transient failure", Result: map[string]any{}},
			{OK: false, Error: "transient failure", Result: map[string]any{}},
		},
	}}
	o, _ := newOrchestrator(exec)

	task := o.CreateTask("flaky objective")
	_, err := o.SetPlan(task.ID, []PlannedStep{{Action: domain.Action{Name: "flaky_action"}}})
	require.NoError(t, err)

	final, err := o.RunTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, final.Status)
	assert.Equal(t, domain.StepSucceeded, final.Steps[0].Status)
	assert.Equal(t, 3, exec.callCount("flaky_action"))
	assert.Equal(t, 3, final.Steps[0].LastResult["attempts"])
}

func TestUnsupportedActionFailsWithoutRetry(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{
		"weird_action": {
			{OK: false, Error: "unsupported action for browser executor: weird_action", Result: map[string]any{}},
		},
	}}
	o, _ := newOrchestrator(exec)

	task := o.CreateTask("try something odd")
	_, err := o.SetPlan(task.ID, []PlannedStep{{Action: domain.Action{Name: "weird_action"}}})
	require.NoError(t, err)

	final, err := o.RunTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, final.Status)
	assert.Equal(t, domain.StepFailed, final.Steps[0].Status)
	assert.True(t, strings.Contains(final.LastError, "unsupported action"))
	assert.Equal(t, 1, exec.callCount("weird_action"))
	assert.Equal(t, 1, final.Steps[0].LastResult["attempts"])
}

func TestHydrationFailsRunningAndWaitingApprovalTasks(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, _ := newOrchestrator(exec)

	now := time.Now().UTC()
	token := "stale-token"
	running := &domain.TaskRecord{
		ID: "task-running", Status: domain.TaskRunning, CreatedAt: now, UpdatedAt: now,
		Steps: []domain.TaskStep{{ID: "s1", Status: domain.StepRunning, CreatedAt: now, UpdatedAt: now}},
	}
	idx := 0
	waitingApproval := &domain.TaskRecord{
		ID: "task-waiting", Status: domain.TaskWaitingApproval, ApprovalToken: &token, CurrentStepIndex: &idx,
		CreatedAt: now, UpdatedAt: now,
		Steps: []domain.TaskStep{{ID: "s1", Status: domain.StepBlocked, CreatedAt: now, UpdatedAt: now}},
	}
	completed := &domain.TaskRecord{ID: "task-done", Status: domain.TaskCompleted, CreatedAt: now, UpdatedAt: now}

	o.HydrateTasks([]*domain.TaskRecord{running, waitingApproval, completed})

	rec, err := o.GetTask("task-running")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, rec.Status)
	assert.Contains(t, rec.LastError, "restored after restart")
	assert.Nil(t, rec.ApprovalToken)

	rec2, err := o.GetTask("task-waiting")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, rec2.Status)
	assert.Nil(t, rec2.ApprovalToken)
	assert.Nil(t, rec2.CurrentStepIndex)

	rec3, err := o.GetTask("task-done")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, rec3.Status)

	_, err = o.RunTask(context.Background(), "task-running")
	require.Error(t, err)
}

func TestPauseStopsAdvanceAndResumeContinues(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, _ := newOrchestrator(exec)

	task := o.CreateTask("multi step")
	_, err := o.SetPlan(task.ID, twoStepPlan())
	require.NoError(t, err)

	paused, err := o.Pause(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPaused, paused.Status)

	_, err = o.RunTask(context.Background(), task.ID)
	require.Error(t, err, "run_task must reject a paused task")

	resumed, err := o.Resume(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, resumed.Status)
}

func TestCancelIsTerminalFromAnyNonTerminalStatus(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, _ := newOrchestrator(exec)

	task := o.CreateTask("cancel me")
	_, err := o.SetPlan(task.ID, twoStepPlan())
	require.NoError(t, err)

	cancelled, err := o.Cancel(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, cancelled.Status)

	_, err = o.Cancel(task.ID)
	require.Error(t, err, "cancel on a terminal task must fail")
}

func TestApprovalTokensAreUniqueAndHighEntropy(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, _ := newOrchestrator(exec)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		task := o.CreateTask("repeat")
		_, err := o.SetPlan(task.ID, []PlannedStep{{Action: domain.Action{Name: "x", Irreversible: true}}})
		require.NoError(t, err)
		waiting, err := o.RunTask(context.Background(), task.ID)
		require.NoError(t, err)
		tok := *waiting.ApprovalToken
		assert.False(t, seen[tok], "approval token reused across tasks")
		assert.GreaterOrEqual(t, len(tok), 20)
		seen[tok] = true
	}
}

func TestGetTaskReturnsCloneNotLiveState(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, _ := newOrchestrator(exec)

	task := o.CreateTask("clone check")
	_, err := o.SetPlan(task.ID, twoStepPlan())
	require.NoError(t, err)

	snap, err := o.GetTask(task.ID)
	require.NoError(t, err)
	snap.Steps[0].Status = domain.StepFailed
	snap.Objective = "mutated"

	fresh, err := o.GetTask(task.ID)
	require.NoError(t, err)
	assert.NotEqual(t, domain.StepFailed, fresh.Steps[0].Status)
	assert.Equal(t, "clone check", fresh.Objective)
}

func TestListTasksOrderedByCreation(t *testing.T) {
	exec := &scriptedExecutor{results: map[string][]executor.Result{}}
	o, _ := newOrchestrator(exec)

	a := o.CreateTask("first")
	time.Sleep(time.Millisecond)
	b := o.CreateTask("second")

	all := o.ListTasks()
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)
}
