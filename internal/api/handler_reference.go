package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dilution-ops-backend/internal/mw"
)

// GetDilutions lists the dilutions the wizard can pick from.
func (h *Handler) GetDilutions(c *gin.Context) {
	dilutions, err := h.references.ListDilutions(c.Request.Context(), mw.CurrentSession(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dilutions)
}

// GetHardware lists the machines an approver can assign.
func (h *Handler) GetHardware(c *gin.Context) {
	hardware, err := h.references.ListHardware(c.Request.Context(), mw.CurrentSession(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hardware)
}
