package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dilution-ops-backend/internal/backend"
	"dilution-ops-backend/internal/mw"
	"dilution-ops-backend/internal/pharmacy"
)

func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Errorf("invalid %s id %q", what, c.Param("id")))
		return 0, false
	}
	return id, true
}

func (h *Handler) resource(c *gin.Context) (*backend.Resource, bool) {
	res, ok := h.resources[c.Param("name")]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown resource %q", c.Param("name"))})
		return nil, false
	}
	return res, true
}

func bindRecord(c *gin.Context) (pharmacy.Record, bool) {
	var rec pharmacy.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, err)
		return nil, false
	}
	return rec, true
}

// ListResource fetches a whole backend collection.
func (h *Handler) ListResource(c *gin.Context) {
	res, ok := h.resource(c)
	if !ok {
		return
	}
	records, err := res.List(c.Request.Context(), mw.CurrentSession(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []pharmacy.Record{}
	}
	c.JSON(http.StatusOK, records)
}

// CreateResource posts a record to a backend collection.
func (h *Handler) CreateResource(c *gin.Context) {
	res, ok := h.resource(c)
	if !ok {
		return
	}
	rec, ok := bindRecord(c)
	if !ok {
		return
	}
	created, err := res.Create(c.Request.Context(), mw.CurrentSession(c), rec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateResource replaces one record of a backend collection.
func (h *Handler) UpdateResource(c *gin.Context) {
	res, ok := h.resource(c)
	if !ok {
		return
	}
	id, ok := pathID(c, c.Param("name"))
	if !ok {
		return
	}
	rec, ok := bindRecord(c)
	if !ok {
		return
	}
	updated, err := res.Update(c.Request.Context(), mw.CurrentSession(c), id, rec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteResource removes one record of a backend collection.
func (h *Handler) DeleteResource(c *gin.Context) {
	res, ok := h.resource(c)
	if !ok {
		return
	}
	id, ok := pathID(c, c.Param("name"))
	if !ok {
		return
	}
	if err := res.Delete(c.Request.Context(), mw.CurrentSession(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetProfile returns the caller's backend profile.
func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.passthrough.MyProfile(c.Request.Context(), mw.CurrentSession(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateProfile edits the caller's backend profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}
	profile, err := h.passthrough.UpdateMyProfile(c.Request.Context(), mw.CurrentSession(c), rec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// AddStockBatch adds a stock batch to an inventory master.
func (h *Handler) AddStockBatch(c *gin.Context) {
	id, ok := pathID(c, "inventory")
	if !ok {
		return
	}
	rec, ok := bindRecord(c)
	if !ok {
		return
	}
	batch, err := h.passthrough.AddStockBatch(c.Request.Context(), mw.CurrentSession(c), id, rec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// GetNotifications lists the caller's backend notifications.
func (h *Handler) GetNotifications(c *gin.Context) {
	notes, err := h.passthrough.MyNotifications(c.Request.Context(), mw.CurrentSession(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if notes == nil {
		notes = []pharmacy.Notification{}
	}
	c.JSON(http.StatusOK, notes)
}

// MarkNotificationRead marks one notification as read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c, "notification")
	if !ok {
		return
	}
	if err := h.passthrough.MarkNotificationRead(c.Request.Context(), mw.CurrentSession(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GenerateReport asks the backend to build a report.
func (h *Handler) GenerateReport(c *gin.Context) {
	rec, ok := bindRecord(c)
	if !ok {
		return
	}
	report, err := h.passthrough.GenerateReport(c.Request.Context(), mw.CurrentSession(c), rec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// GetReportPDF streams a generated report.
func (h *Handler) GetReportPDF(c *gin.Context) {
	id, ok := pathID(c, "report")
	if !ok {
		return
	}
	pdf, err := h.passthrough.ReportPDF(c.Request.Context(), mw.CurrentSession(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="report-%d.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// GetDashboard returns the dashboard aggregates. days defaults to the
// backend's own window when omitted.
func (h *Handler) GetDashboard(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("invalid days %q", raw))
			return
		}
		days = n
	}
	data, err := h.passthrough.Dashboard(c.Request.Context(), mw.CurrentSession(c), days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// ListPrescriptions lists the stored prescriptions.
func (h *Handler) ListPrescriptions(c *gin.Context) {
	list, err := h.passthrough.ListPrescriptions(c.Request.Context(), mw.CurrentSession(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []pharmacy.PrescriptionDetail{}
	}
	c.JSON(http.StatusOK, list)
}

type prescriptionRequest struct {
	Age       int     `json:"age" binding:"required,gt=0"`
	Weight    float64 `json:"weight" binding:"required,gt=0"`
	Allergies string  `json:"allergies"`
}

// UpdatePrescription edits one prescription.
func (h *Handler) UpdatePrescription(c *gin.Context) {
	id, ok := pathID(c, "prescription")
	if !ok {
		return
	}
	var req prescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.passthrough.UpdatePrescription(c.Request.Context(), mw.CurrentSession(c), id, pharmacy.NewPrescription{
		Age:       req.Age,
		Weight:    req.Weight,
		Allergies: req.Allergies,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeletePrescription removes one prescription.
func (h *Handler) DeletePrescription(c *gin.Context) {
	id, ok := pathID(c, "prescription")
	if !ok {
		return
	}
	if err := h.passthrough.DeletePrescription(c.Request.Context(), mw.CurrentSession(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
