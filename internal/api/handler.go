package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/backend"
	"dilution-ops-backend/internal/console"
	"dilution-ops-backend/internal/faceid"
	"dilution-ops-backend/internal/jobcard"
	"dilution-ops-backend/internal/mw"
	"dilution-ops-backend/internal/pharmacy"
	"dilution-ops-backend/internal/session"
	"dilution-ops-backend/internal/store"
)

// Sessions opens, resolves and closes dashboard sessions.
type Sessions interface {
	Login(ctx context.Context, username, password string) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Logout(ctx context.Context, id string) error
}

// References serves the slow-changing lists the job card forms need.
type References interface {
	ListDilutions(ctx context.Context, creds backend.Credentials) ([]pharmacy.Dilution, error)
	ListHardware(ctx context.Context, creds backend.Credentials) ([]pharmacy.Hardware, error)
}

// FaceRegistrar manages enrolled faces on the face-ID device.
type FaceRegistrar interface {
	StartRegistration(ctx context.Context) error
	RegisterFace(ctx context.Context, name string) (*faceid.ActionResult, error)
	DeleteUser(ctx context.Context, name string) (*faceid.ActionResult, error)
	RegisteredUsers(ctx context.Context) ([]string, error)
	VideoFeedURL(at time.Time) string
}

// Passthrough forwards the backend calls this service does not interpret.
type Passthrough interface {
	Resources() map[string]*backend.Resource
	MyProfile(ctx context.Context, creds backend.Credentials) (pharmacy.Record, error)
	UpdateMyProfile(ctx context.Context, creds backend.Credentials, rec pharmacy.Record) (pharmacy.Record, error)
	AddStockBatch(ctx context.Context, creds backend.Credentials, inventoryID int64, rec pharmacy.Record) (pharmacy.Record, error)
	MyNotifications(ctx context.Context, creds backend.Credentials) ([]pharmacy.Notification, error)
	MarkNotificationRead(ctx context.Context, creds backend.Credentials, id int64) error
	GenerateReport(ctx context.Context, creds backend.Credentials, rec pharmacy.Record) (pharmacy.Record, error)
	Dashboard(ctx context.Context, creds backend.Credentials, days int) (pharmacy.Record, error)
	ReportPDF(ctx context.Context, creds backend.Credentials, reportID int64) ([]byte, error)
	ListPrescriptions(ctx context.Context, creds backend.Credentials) ([]pharmacy.PrescriptionDetail, error)
	UpdatePrescription(ctx context.Context, creds backend.Credentials, id int64, p pharmacy.NewPrescription) (*pharmacy.PrescriptionDetail, error)
	DeletePrescription(ctx context.Context, creds backend.Credentials, id int64) error
}

// Deps are the handler's collaborators.
type Deps struct {
	Store       store.Store
	Sessions    Sessions
	Consoles    *console.Registry
	References  References
	Faces       FaceRegistrar
	Passthrough Passthrough
	Webpush     *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store       store.Store
	sessions    Sessions
	consoles    *console.Registry
	references  References
	faces       FaceRegistrar
	passthrough Passthrough
	resources   map[string]*backend.Resource
	webpush     *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:       d.Store,
		sessions:    d.Sessions,
		consoles:    d.Consoles,
		references:  d.References,
		faces:       d.Faces,
		passthrough: d.Passthrough,
		webpush:     d.Webpush,
	}
	if d.Passthrough != nil {
		h.resources = d.Passthrough.Resources()
	}
	return h
}

// console returns the page state of the caller's session.
func (h *Handler) console(c *gin.Context) *console.Console {
	return h.consoles.Get(mw.CurrentSession(c))
}

// fail writes err with the status its kind maps to. A 401 from the backend
// means the token is gone, so the session is closed as well.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"error": err.Error()}

	var vErr *apperr.ValidationError
	if errors.As(err, &vErr) && vErr.Field != "" {
		body["field"] = vErr.Field
	}
	var orphan *jobcard.OrphanedPrescriptionError
	if errors.As(err, &orphan) {
		body["orphanedPrescriptionId"] = orphan.PrescriptionID
	}

	if backend.IsUnauthorized(err) {
		if sess := mw.CurrentSession(c); sess != nil {
			h.consoles.Drop(sess.ID)
			if lerr := h.sessions.Logout(c.Request.Context(), sess.ID); lerr != nil {
				zap.S().Warnf("failed to close rejected session %s: %v", sess.ID, lerr)
			}
		}
	}
	if status >= http.StatusInternalServerError {
		zap.S().Errorw("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
