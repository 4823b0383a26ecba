package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/jobcard"
	"dilution-ops-backend/internal/pharmacy"
)

func jobcardID(c *gin.Context) (int64, bool) {
	return pathID(c, "job card")
}

// ListJobCards re-fetches the list. When a refresh fails after an earlier
// success, the previous rows are returned with the error as a banner.
func (h *Handler) ListJobCards(c *gin.Context) {
	board := h.console(c).Board()
	if err := board.Refresh(c.Request.Context()); err != nil && !board.Loaded() {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": board.Rows(), "banner": board.Banner()})
}

type updateJobCardRequest struct {
	Status     string `json:"status" binding:"required"`
	HardwareID *int64 `json:"hardwareId"`
}

// UpdateJobCard applies an approver's status change.
func (h *Handler) UpdateJobCard(c *gin.Context) {
	id, ok := jobcardID(c)
	if !ok {
		return
	}
	var req updateJobCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	card, err := h.console(c).Board().Update(c.Request.Context(), id, pharmacy.Status(req.Status), req.HardwareID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

// DeleteJobCard removes a job card.
func (h *Handler) DeleteJobCard(c *gin.Context) {
	id, ok := jobcardID(c)
	if !ok {
		return
	}
	if err := h.console(c).Board().Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExecuteJobCard sends an Approved job card to the robot.
func (h *Handler) ExecuteJobCard(c *gin.Context) {
	id, ok := jobcardID(c)
	if !ok {
		return
	}
	con := h.console(c)
	msg, err := con.Execute(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "tab": con.Tab()})
}

// JobCardActions lists the actions exposed for one row.
func (h *Handler) JobCardActions(c *gin.Context) {
	id, ok := jobcardID(c)
	if !ok {
		return
	}
	for _, row := range h.console(c).Board().Rows() {
		if row.JobcardID == id {
			c.JSON(http.StatusOK, gin.H{"actions": row.Actions, "executing": row.Executing})
			return
		}
	}
	h.fail(c, &apperr.APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("job card %d is not in the list", id)})
}

// DismissBanner clears the list error banner.
func (h *Handler) DismissBanner(c *gin.Context) {
	h.console(c).Board().DismissBanner()
	c.Status(http.StatusNoContent)
}

// StartWizard opens a fresh creation wizard.
func (h *Handler) StartWizard(c *gin.Context) {
	c.JSON(http.StatusCreated, h.console(c).StartWizard())
}

// WizardNext completes step 1.
func (h *Handler) WizardNext(c *gin.Context) {
	var in jobcard.RequestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	view, err := h.console(c).WizardNext(in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// WizardSubmit completes step 2 and creates the job card.
func (h *Handler) WizardSubmit(c *gin.Context) {
	var in jobcard.PrescriptionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	card, err := h.console(c).WizardSubmit(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

// WizardCancel discards the draft.
func (h *Handler) WizardCancel(c *gin.Context) {
	if err := h.console(c).WizardCancel(); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
