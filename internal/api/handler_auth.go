package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dilution-ops-backend/internal/mw"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login opens a session and sets the session cookie.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(mw.SessionCookie, sess.ID, maxAge, "/", "", false, true)
	c.JSON(http.StatusOK, sess)
}

// Logout closes the session and drops its console.
func (h *Handler) Logout(c *gin.Context) {
	sess := mw.CurrentSession(c)
	h.consoles.Drop(sess.ID)
	if err := h.sessions.Logout(c.Request.Context(), sess.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.SetCookie(mw.SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// Me returns the caller's identity.
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, mw.CurrentSession(c))
}
