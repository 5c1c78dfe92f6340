package domain

import "time"

// RunStatus is the lifecycle state of an Autonomy Run Record.
type RunStatus string

const (
	RunRunning         RunStatus = "running"
	RunWaitingApproval RunStatus = "waiting_approval"
	RunCompleted       RunStatus = "completed"
	RunFailed          RunStatus = "failed"
	RunCancelled       RunStatus = "cancelled"
)

// Terminal reports whether status is sticky.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// AutonomyLevel controls whether the runner auto-approves irreversible
// steps on the task it drives.
type AutonomyLevel string

const (
	AutonomySupervised AutonomyLevel = "supervised"
	AutonomyGuided     AutonomyLevel = "guided"
	AutonomyAutonomous AutonomyLevel = "autonomous"
)

// AutoApproves reports whether level alone is enough to clear an
// irreversible step's approval gate without operator intervention.
func (l AutonomyLevel) AutoApproves() bool {
	return l == AutonomyGuided || l == AutonomyAutonomous
}

// AgentLogTag classifies one agent log entry's origin.
type AgentLogTag string

const (
	AgentLogPlanner     AgentLogTag = "planner"
	AgentLogExecutor    AgentLogTag = "executor"
	AgentLogVerifier    AgentLogTag = "verifier"
	AgentLogVisionAgent AgentLogTag = "vision-agent"
)

// AgentLogEntry is one bounded entry in a run's agent log.
type AgentLogEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Agent     AgentLogTag `json:"agent"`
	Message   string      `json:"message"`
}

// AutonomyRunRecord is one outer-loop invocation of the orchestrator over
// a task, driven by a planner and an autonomy policy.
type AutonomyRunRecord struct {
	ID                     string          `json:"id"`
	TaskID                 string          `json:"task_id"`
	Objective              string          `json:"objective"`
	PlannerMode            string          `json:"planner_mode"`
	Status                 RunStatus       `json:"status"`
	Iteration              int             `json:"iteration"`
	MaxIterations          int             `json:"max_iterations"`
	AutonomyLevel          AutonomyLevel   `json:"autonomy_level"`
	AutoApproveIrreversible bool           `json:"auto_approve_irreversible"`
	ApprovalToken          *string         `json:"approval_token"`
	LastError              string          `json:"last_error,omitempty"`
	StartedAt              time.Time       `json:"started_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
	FinishedAt             *time.Time      `json:"finished_at,omitempty"`
	AgentLog               []AgentLogEntry `json:"agent_log"`
}

// Clone returns a deep copy of r.
func (r *AutonomyRunRecord) Clone() *AutonomyRunRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.ApprovalToken != nil {
		token := *r.ApprovalToken
		out.ApprovalToken = &token
	}
	out.FinishedAt = cloneTime(r.FinishedAt)
	if r.AgentLog != nil {
		out.AgentLog = make([]AgentLogEntry, len(r.AgentLog))
		copy(out.AgentLog, r.AgentLog)
	}
	return &out
}

// AppendAgentLog appends entry to r's agent log, dropping the oldest
// entry(ies) once the log exceeds cap. cap <= 0 falls back to 200,
// matching the original implementation's fixed bound.
func (r *AutonomyRunRecord) AppendAgentLog(entry AgentLogEntry, capSize int) {
	if capSize <= 0 {
		capSize = 200
	}
	r.AgentLog = append(r.AgentLog, entry)
	if len(r.AgentLog) > capSize {
		r.AgentLog = r.AgentLog[len(r.AgentLog)-capSize:]
	}
}
