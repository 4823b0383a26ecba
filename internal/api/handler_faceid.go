package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StartFaceRegistration puts the device into registration mode.
func (h *Handler) StartFaceRegistration(c *gin.Context) {
	if err := h.faces.StartRegistration(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"videoUrl": h.faces.VideoFeedURL(time.Now())})
}

type faceNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// RegisterFace snaps the current frame under a name.
func (h *Handler) RegisterFace(c *gin.Context) {
	var req faceNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.faces.RegisterFace(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteFace removes an enrolled user from the device.
func (h *Handler) DeleteFace(c *gin.Context) {
	res, err := h.faces.DeleteUser(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListFaces lists enrolled users.
func (h *Handler) ListFaces(c *gin.Context) {
	users, err := h.faces.RegisteredUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
