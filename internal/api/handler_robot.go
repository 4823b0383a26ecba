package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/robot"
)

// GetRobotLogs returns the latest robot task snapshot.
func (h *Handler) GetRobotLogs(c *gin.Context) {
	snap, err := h.console(c).RobotSnapshot()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type triggerRequest struct {
	Preset   string `json:"preset"`
	TaskName string `json:"taskName"`
	Message  string `json:"message"`
}

// TriggerRobot starts a robot task, either a preset or a named task.
func (h *Handler) TriggerRobot(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Preset != "" {
		p, ok := robot.FindPreset(req.Preset)
		if !ok {
			badRequest(c, fmt.Errorf("unknown preset %q", req.Preset))
			return
		}
		req.TaskName, req.Message = p.TaskName, p.Message
	}
	if req.TaskName == "" {
		h.fail(c, apperr.Invalid("taskName", "task name is required"))
		return
	}

	id, err := h.console(c).Trigger(c.Request.Context(), req.TaskName, req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": id, "taskName": req.TaskName})
}

// GetRobotPresets lists the built-in tasks.
func (h *Handler) GetRobotPresets(c *gin.Context) {
	c.JSON(http.StatusOK, robot.Presets)
}
