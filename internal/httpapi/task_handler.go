package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/desktopai/runcontrol/internal/orchestrator"
)

// TaskHandler binds the /tasks endpoints to a TaskService.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	task := h.tasks.CreateTask(req.Objective)
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.tasks.ListTasks())
}

func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.GetTask(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) SetPlan(c *gin.Context) {
	var req setPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	steps := make([]orchestrator.PlannedStep, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = orchestrator.PlannedStep{
			Action:         s.Action.toDomain(),
			Preconditions:  s.Preconditions,
			Postconditions: s.Postconditions,
		}
	}
	task, err := h.tasks.SetPlan(c.Param("id"), steps)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Run(c *gin.Context) {
	task, err := h.tasks.RunTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	task, err := h.tasks.Approve(c.Request.Context(), c.Param("id"), req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Pause(c *gin.Context) {
	task, err := h.tasks.Pause(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Resume(c *gin.Context) {
	task, err := h.tasks.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Cancel(c *gin.Context) {
	task, err := h.tasks.Cancel(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
