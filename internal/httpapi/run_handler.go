package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/desktopai/runcontrol/internal/runner"
)

// RunHandler binds the /runs endpoints to a RunService.
type RunHandler struct {
	runs RunService
}

// NewRunHandler constructs a RunHandler.
func NewRunHandler(runs RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

func (h *RunHandler) Start(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	run, err := h.runs.Start(c.Request.Context(), runner.StartRequest{
		Objective:               req.Objective,
		MaxIterations:           req.MaxIterations,
		AutonomyLevel:           req.AutonomyLevel,
		AutoApproveIrreversible: req.AutoApproveIrreversible,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (h *RunHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.runs.ListRuns())
}

func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runs.GetRun(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RunHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	run, err := h.runs.Approve(c.Request.Context(), c.Param("id"), req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RunHandler) Cancel(c *gin.Context) {
	run, err := h.runs.Cancel(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
