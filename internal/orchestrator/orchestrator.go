// Package orchestrator implements the Task Orchestrator: the per-task
// state machine driving a plan through dispatch, retry, approval gates,
// and pause/resume/cancel.
package orchestrator

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/desktopai/runcontrol/internal/apperrors"
	"github.com/desktopai/runcontrol/internal/async"
	"github.com/desktopai/runcontrol/internal/domain"
	"github.com/desktopai/runcontrol/internal/executor"
	"github.com/desktopai/runcontrol/internal/idgen"
	"github.com/desktopai/runcontrol/internal/logging"
)

// StateStore is the subset of the State Store the orchestrator reads
// before every dispatch.
type StateStore interface {
	Current() *domain.Observation
}

// PlannedStep is one step of a plan handed to SetPlan, before it is
// assigned an identifier and lifecycle fields.
type PlannedStep struct {
	Action         domain.Action
	Preconditions  []string
	Postconditions []string
}

// UpdateFunc receives a clone of a task every time an externally visible
// transition occurs.
type UpdateFunc func(*domain.TaskRecord)

// Config constructs an Orchestrator.
type Config struct {
	Executor    executor.Executor
	StateStore  StateStore
	RetryCount  int // minimum 1
	RetryDelay  time.Duration
	OnUpdate    UpdateFunc
	Logger      logging.Logger
}

type taskEntry struct {
	mu     sync.Mutex
	record *domain.TaskRecord
}

// Orchestrator is the Task Orchestrator.
type Orchestrator struct {
	executor   executor.Executor
	stateStore StateStore
	retryCount int
	retryDelay time.Duration
	onUpdate   UpdateFunc
	logger     logging.Logger

	mu    sync.RWMutex
	tasks map[string]*taskEntry

	updatesWG sync.WaitGroup
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	retryCount := cfg.RetryCount
	if retryCount < 1 {
		retryCount = 1
	}
	return &Orchestrator{
		executor:   cfg.Executor,
		stateStore: cfg.StateStore,
		retryCount: retryCount,
		retryDelay: cfg.RetryDelay,
		onUpdate:   cfg.OnUpdate,
		logger:     logging.OrNop(cfg.Logger).With("orchestrator"),
		tasks:      make(map[string]*taskEntry),
	}
}

// CreateTask creates a new task in status created.
func (o *Orchestrator) CreateTask(objective string) *domain.TaskRecord {
	now := time.Now().UTC()
	record := &domain.TaskRecord{
		ID:        idgen.NewTaskID(),
		Objective: objective,
		Status:    domain.TaskCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := &taskEntry{record: record}

	o.mu.Lock()
	o.tasks[record.ID] = entry
	o.mu.Unlock()

	clone := record.Clone()
	o.notify(clone)
	return clone
}

// SetPlan installs steps as task's plan. Rejected unless the task is
// status created or planned.
func (o *Orchestrator) SetPlan(taskID string, steps []PlannedStep) (*domain.TaskRecord, error) {
	entry, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	if entry.record.Status != domain.TaskCreated && entry.record.Status != domain.TaskPlanned {
		status := entry.record.Status
		entry.mu.Unlock()
		return nil, apperrors.Precondition(fmt.Sprintf("cannot set plan while task is %s", status))
	}

	now := time.Now().UTC()
	built := make([]domain.TaskStep, len(steps))
	for i, s := range steps {
		built[i] = domain.TaskStep{
			ID:             idgen.NewStepID(),
			Index:          i,
			Action:         s.Action.Clone(),
			Preconditions:  s.Preconditions,
			Postconditions: s.Postconditions,
			Status:         domain.StepPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	entry.record.Steps = built
	entry.record.Status = domain.TaskPlanned
	entry.record.UpdatedAt = now
	clone := entry.record.Clone()
	entry.mu.Unlock()

	o.notify(clone)
	return clone, nil
}

// RunTask drives task through its single-step cycle until it reaches a
// terminal status, waiting_approval, or is paused. Rejected on terminal
// or empty-plan tasks.
func (o *Orchestrator) RunTask(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	entry, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	switch entry.record.Status {
	case domain.TaskCreated:
		entry.mu.Unlock()
		return nil, apperrors.Precondition("task has no plan")
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
		status := entry.record.Status
		entry.mu.Unlock()
		return nil, apperrors.Precondition(fmt.Sprintf("task is terminal (%s)", status))
	case domain.TaskWaitingApproval:
		entry.mu.Unlock()
		return nil, apperrors.Precondition("task is waiting_approval; approve it first")
	case domain.TaskPaused:
		entry.mu.Unlock()
		return nil, apperrors.Precondition("task is paused; resume it first")
	}
	if len(entry.record.Steps) == 0 {
		entry.mu.Unlock()
		return nil, apperrors.Precondition("task has an empty plan")
	}
	if entry.record.Status == domain.TaskPlanned {
		entry.record.Status = domain.TaskRunning
		entry.record.UpdatedAt = time.Now().UTC()
	}
	entry.mu.Unlock()

	o.advance(ctx, entry)

	entry.mu.Lock()
	clone := entry.record.Clone()
	entry.mu.Unlock()
	return clone, nil
}

// advance is the single-step cycle: it repeats until the task reaches a
// terminal status, waiting_approval, or is paused.
func (o *Orchestrator) advance(ctx context.Context, entry *taskEntry) {
	for {
		entry.mu.Lock()
		if entry.record.Status != domain.TaskRunning {
			entry.mu.Unlock()
			return
		}

		step, idx := nextStep(entry.record)
		if step == nil {
			entry.record.Status = domain.TaskCompleted
			entry.record.CurrentStepIndex = nil
			entry.record.UpdatedAt = time.Now().UTC()
			clone := entry.record.Clone()
			entry.mu.Unlock()
			o.notify(clone)
			return
		}
		entry.record.CurrentStepIndex = &idx

		if step.Action.Irreversible && !step.Approved {
			token, err := idgen.NewApprovalToken()
			if err != nil {
				entry.record.Status = domain.TaskFailed
				entry.record.LastError = fmt.Sprintf("mint approval token: %v", err)
				entry.record.CurrentStepIndex = nil
				entry.record.UpdatedAt = time.Now().UTC()
				clone := entry.record.Clone()
				entry.mu.Unlock()
				o.notify(clone)
				o.logger.Error("internal invariant: %v", apperrors.InternalInvariant(err.Error()))
				return
			}
			now := time.Now().UTC()
			entry.record.Steps[idx].Status = domain.StepBlocked
			entry.record.Steps[idx].UpdatedAt = now
			entry.record.Status = domain.TaskWaitingApproval
			entry.record.ApprovalToken = &token
			entry.record.UpdatedAt = now
			clone := entry.record.Clone()
			entry.mu.Unlock()
			o.notify(clone)
			return
		}

		now := time.Now().UTC()
		entry.record.Steps[idx].Status = domain.StepRunning
		entry.record.Steps[idx].StartedAt = &now
		entry.record.Steps[idx].UpdatedAt = now
		action := entry.record.Steps[idx].Action.Clone()
		objective := entry.record.Objective
		stepID := entry.record.Steps[idx].ID
		runningClone := entry.record.Clone()
		entry.mu.Unlock()
		o.notify(runningClone)

		var obs *domain.Observation
		if o.stateStore != nil {
			obs = o.stateStore.Current()
		}
		spanCtx, span := startDispatchSpan(ctx, entry.record.ID, action.Name)
		result := o.dispatchWithRetry(spanCtx, action, objective, obs)
		endDispatchSpan(span, result.OK, result.Error)

		entry.mu.Lock()
		cur := findStepByID(entry.record, stepID)
		if cur == nil || cur.Status != domain.StepRunning {
			// the step moved on without us (e.g. cancelled during
			// dispatch); discard this result.
			entry.mu.Unlock()
			return
		}
		finishedAt := time.Now().UTC()
		cur.FinishedAt = &finishedAt
		cur.UpdatedAt = finishedAt
		cur.LastResult = result.Result

		if result.OK {
			cur.Status = domain.StepSucceeded
			cur.LastError = ""
			entry.record.UpdatedAt = finishedAt
			clone := entry.record.Clone()
			entry.mu.Unlock()
			o.notify(clone)
			continue
		}

		cur.Status = domain.StepFailed
		cur.LastError = result.Error
		entry.record.Status = domain.TaskFailed
		entry.record.LastError = result.Error
		entry.record.CurrentStepIndex = nil
		entry.record.UpdatedAt = finishedAt
		clone := entry.record.Clone()
		entry.mu.Unlock()
		o.notify(clone)
		return
	}
}

// unsupportedActionMarker is the substring (case-insensitive) an
// executor error carries to signal the orchestrator should not retry.
const unsupportedActionMarker = "unsupported action"

func (o *Orchestrator) dispatchWithRetry(ctx context.Context, action domain.Action, objective string, obs *domain.Observation) executor.Result {
	var last executor.Result
	attempts := 0
	for attempts < o.retryCount {
		attempts++
		last = o.executor.Execute(ctx, action, objective, obs)
		if last.OK {
			break
		}
		if strings.Contains(strings.ToLower(last.Error), unsupportedActionMarker) {
			break
		}
		if attempts < o.retryCount {
			select {
			case <-time.After(o.retryDelay):
				continue
			case <-ctx.Done():
			}
			break
		}
	}
	if last.Result == nil {
		last.Result = map[string]any{}
	}
	last.Result["attempts"] = attempts
	return last
}

// Approve clears the approval gate on task's current step if token
// matches (constant time). On match the task returns to planned and the
// advance loop resumes; on mismatch the task is left untouched.
func (o *Orchestrator) Approve(ctx context.Context, taskID, token string) (*domain.TaskRecord, error) {
	entry, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	if entry.record.Status != domain.TaskWaitingApproval || entry.record.ApprovalToken == nil {
		entry.mu.Unlock()
		return nil, apperrors.Precondition("task is not waiting_approval")
	}
	if subtle.ConstantTimeCompare([]byte(*entry.record.ApprovalToken), []byte(token)) != 1 {
		entry.mu.Unlock()
		return nil, apperrors.Unauthorized("approval token does not match")
	}
	idx := entry.record.CurrentStepIndex
	if idx == nil || *idx < 0 || *idx >= len(entry.record.Steps) {
		entry.mu.Unlock()
		return nil, apperrors.InternalInvariant("waiting_approval task has no current step")
	}

	now := time.Now().UTC()
	entry.record.Steps[*idx].Approved = true
	entry.record.Steps[*idx].Status = domain.StepPending
	entry.record.Steps[*idx].UpdatedAt = now
	entry.record.ApprovalToken = nil
	entry.record.Status = domain.TaskPlanned
	entry.record.UpdatedAt = now
	clone := entry.record.Clone()
	entry.mu.Unlock()

	o.notify(clone)
	return o.RunTask(ctx, taskID)
}

// Pause transitions a non-terminal task to paused.
func (o *Orchestrator) Pause(taskID string) (*domain.TaskRecord, error) {
	entry, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	if entry.record.Status.Terminal() {
		status := entry.record.Status
		entry.mu.Unlock()
		return nil, apperrors.Precondition(fmt.Sprintf("task is terminal (%s)", status))
	}
	entry.record.Status = domain.TaskPaused
	entry.record.UpdatedAt = time.Now().UTC()
	clone := entry.record.Clone()
	entry.mu.Unlock()

	o.notify(clone)
	return clone, nil
}

// Resume transitions a paused task back to planned and resumes the
// advance loop.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	entry, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	if entry.record.Status != domain.TaskPaused {
		status := entry.record.Status
		entry.mu.Unlock()
		return nil, apperrors.Precondition(fmt.Sprintf("task is not paused (%s)", status))
	}
	entry.record.Status = domain.TaskPlanned
	entry.record.UpdatedAt = time.Now().UTC()
	entry.mu.Unlock()

	return o.RunTask(ctx, taskID)
}

// Cancel transitions any non-terminal task to cancelled.
func (o *Orchestrator) Cancel(taskID string) (*domain.TaskRecord, error) {
	entry, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	if entry.record.Status.Terminal() {
		status := entry.record.Status
		entry.mu.Unlock()
		return nil, apperrors.Precondition(fmt.Sprintf("task is terminal (%s)", status))
	}
	entry.record.Status = domain.TaskCancelled
	entry.record.ApprovalToken = nil
	entry.record.CurrentStepIndex = nil
	entry.record.UpdatedAt = time.Now().UTC()
	clone := entry.record.Clone()
	entry.mu.Unlock()

	o.notify(clone)
	return clone, nil
}

// GetTask returns a clone of the named task.
func (o *Orchestrator) GetTask(taskID string) (*domain.TaskRecord, error) {
	entry, err := o.lookup(taskID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record.Clone(), nil
}

// ListTasks returns a clone of every task, oldest first.
func (o *Orchestrator) ListTasks() []*domain.TaskRecord {
	o.mu.RLock()
	entries := make([]*taskEntry, 0, len(o.tasks))
	for _, e := range o.tasks {
		entries = append(entries, e)
	}
	o.mu.RUnlock()

	out := make([]*domain.TaskRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.record.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// HydrateTasks replaces in-memory state from durable snapshots. Any task
// found running or waiting_approval is rewritten to failed and its
// approval token cleared — never resumed, preserving at-most-once
// external side effects.
func (o *Orchestrator) HydrateTasks(records []*domain.TaskRecord) {
	now := time.Now().UTC()
	tasks := make(map[string]*taskEntry, len(records))
	var toNotify []*domain.TaskRecord

	for _, r := range records {
		rec := r.Clone()
		if rec.Status == domain.TaskRunning || rec.Status == domain.TaskWaitingApproval {
			rec.Status = domain.TaskFailed
			rec.LastError = "task restored after restart; rerun task to continue"
			rec.ApprovalToken = nil
			rec.CurrentStepIndex = nil
			rec.UpdatedAt = now
			toNotify = append(toNotify, rec.Clone())
		}
		tasks[rec.ID] = &taskEntry{record: rec}
	}

	o.mu.Lock()
	o.tasks = tasks
	o.mu.Unlock()

	for _, rec := range toNotify {
		o.notify(rec)
	}
}

// DrainUpdates blocks until every update callback fired so far has
// returned, for use during graceful shutdown.
func (o *Orchestrator) DrainUpdates() {
	o.updatesWG.Wait()
}

func (o *Orchestrator) notify(record *domain.TaskRecord) {
	if o.onUpdate == nil {
		return
	}
	async.GoTracked(&o.updatesWG, o.logger, "orchestrator.update", func() {
		o.onUpdate(record)
	})
}

func (o *Orchestrator) lookup(taskID string) (*taskEntry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.tasks[taskID]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("task %s not found", taskID))
	}
	return entry, nil
}

func nextStep(record *domain.TaskRecord) (*domain.TaskStep, int) {
	for i := range record.Steps {
		if record.Steps[i].Status == domain.StepPending || record.Steps[i].Status == domain.StepBlocked {
			return &record.Steps[i], i
		}
	}
	return nil, -1
}

func findStepByID(record *domain.TaskRecord, stepID string) *domain.TaskStep {
	for i := range record.Steps {
		if record.Steps[i].ID == stepID {
			return &record.Steps[i]
		}
	}
	return nil
}
