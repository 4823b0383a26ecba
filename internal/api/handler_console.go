package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dilution-ops-backend/internal/console"
)

// GetConsole returns the whole page state.
func (h *Handler) GetConsole(c *gin.Context) {
	c.JSON(http.StatusOK, h.console(c).Snapshot())
}

type selectTabRequest struct {
	Tab string `json:"tab" binding:"required"`
}

// SelectTab switches between management and execution. Selecting execution
// on an unverified console opens the verification gate instead.
func (h *Handler) SelectTab(c *gin.Context) {
	var req selectTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tab, err := console.ParseTab(req.Tab)
	if err != nil {
		badRequest(c, err)
		return
	}

	con := h.console(c)
	if err := con.SelectTab(tab); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, con.Snapshot())
}

// ShowGate opens the verification overlay.
func (h *Handler) ShowGate(c *gin.Context) {
	con := h.console(c)
	if err := con.ShowGate(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, con.GateSnapshot())
}

// GetGate returns the overlay state for polling clients.
func (h *Handler) GetGate(c *gin.Context) {
	con := h.console(c)
	c.JSON(http.StatusOK, gin.H{"gate": con.GateSnapshot(), "verified": con.Verified(), "tab": con.Tab()})
}

// RetryGate restarts a failed verification.
func (h *Handler) RetryGate(c *gin.Context) {
	con := h.console(c)
	if err := con.RetryGate(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, con.GateSnapshot())
}

// CloseGate dismisses a failed verification.
func (h *Handler) CloseGate(c *gin.Context) {
	con := h.console(c)
	if err := con.CloseGate(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, con.Snapshot())
}

// HideGate removes the overlay in any state.
func (h *Handler) HideGate(c *gin.Context) {
	h.console(c).HideGate()
	c.Status(http.StatusNoContent)
}
