package httpapi

import "github.com/desktopai/runcontrol/internal/domain"

// createTaskRequest is the body for POST /tasks.
type createTaskRequest struct {
	Objective string `json:"objective" binding:"required"`
}

// planStepRequest is one entry of setPlanRequest.Steps.
type planStepRequest struct {
	Action         actionRequest `json:"action" binding:"required"`
	Preconditions  []string      `json:"preconditions"`
	Postconditions []string      `json:"postconditions"`
}

type actionRequest struct {
	Name         string         `json:"name" binding:"required"`
	Parameters   map[string]any `json:"parameters"`
	Description  string         `json:"description"`
	Irreversible bool           `json:"irreversible"`
}

func (a actionRequest) toDomain() domain.Action {
	return domain.Action{
		Name:         a.Name,
		Parameters:   a.Parameters,
		Description:  a.Description,
		Irreversible: a.Irreversible,
	}
}

// setPlanRequest is the body for POST /tasks/:id/plan.
type setPlanRequest struct {
	Steps []planStepRequest `json:"steps" binding:"required,min=1,dive"`
}

// approveRequest is the body for POST /tasks/:id/approve and
// POST /runs/:id/approve.
type approveRequest struct {
	Token string `json:"token" binding:"required"`
}

// startRunRequest is the body for POST /runs.
type startRunRequest struct {
	Objective               string              `json:"objective" binding:"required"`
	MaxIterations           int                 `json:"max_iterations"`
	AutonomyLevel           domain.AutonomyLevel `json:"autonomy_level" binding:"required,oneof=supervised guided autonomous"`
	AutoApproveIrreversible bool                `json:"auto_approve_irreversible"`
}
