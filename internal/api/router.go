package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"dilution-ops-backend/config"
	"dilution-ops-backend/internal/mw"
	"dilution-ops-backend/internal/pharmacy"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()
	handler := NewHandler(d)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Reference lists change rarely; job cards and robot logs are never cached.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	api.POST("/auth/login", handler.Login)
	api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

	authed := api.Group("")
	authed.Use(mw.RequireSession(d.Sessions))
	{
		authed.POST("/auth/logout", handler.Logout)
		authed.GET("/auth/me", handler.Me)

		authed.GET("/dilutions", caching, handler.GetDilutions)
		authed.GET("/hardware", caching, handler.GetHardware)

		authed.GET("/jobcards", handler.ListJobCards)
		authed.PUT("/jobcards/:id", handler.UpdateJobCard)
		authed.DELETE("/jobcards/:id", handler.DeleteJobCard)
		authed.POST("/jobcards/:id/execute", handler.ExecuteJobCard)
		authed.GET("/jobcards/:id/actions", handler.JobCardActions)
		authed.DELETE("/console/banner", handler.DismissBanner)

		authed.POST("/wizard", handler.StartWizard)
		authed.POST("/wizard/next", handler.WizardNext)
		authed.POST("/wizard/submit", handler.WizardSubmit)
		authed.DELETE("/wizard", handler.WizardCancel)

		authed.GET("/console", handler.GetConsole)
		authed.PUT("/console/tab", handler.SelectTab)
		authed.POST("/console/gate", handler.ShowGate)
		authed.GET("/console/gate", handler.GetGate)
		authed.POST("/console/gate/retry", handler.RetryGate)
		authed.POST("/console/gate/close", handler.CloseGate)
		authed.DELETE("/console/gate", handler.HideGate)

		authed.GET("/robot/logs", handler.GetRobotLogs)
		authed.POST("/robot/trigger", handler.TriggerRobot)
		authed.GET("/robot/presets", handler.GetRobotPresets)

		authed.GET("/subscriptions", handler.GetSubscription)
		authed.PUT("/subscriptions", handler.PutSubscription)
		authed.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	if d.Passthrough != nil {
		pass := authed.Group("")
		pass.GET("/resources/:name", handler.ListResource)
		pass.POST("/resources/:name", handler.CreateResource)
		pass.PUT("/resources/:name/:id", handler.UpdateResource)
		pass.DELETE("/resources/:name/:id", handler.DeleteResource)

		pass.GET("/profile", handler.GetProfile)
		pass.PUT("/profile", handler.UpdateProfile)
		pass.POST("/inventory/:id/stock", handler.AddStockBatch)
		pass.GET("/notifications", handler.GetNotifications)
		pass.PUT("/notifications/:id/read", handler.MarkNotificationRead)
		pass.POST("/reports/generate", handler.GenerateReport)
		pass.GET("/reports/:id/pdf", handler.GetReportPDF)
		pass.GET("/dashboard", handler.GetDashboard)

		pass.GET("/prescriptions", handler.ListPrescriptions)
		pass.PUT("/prescriptions/:id", handler.UpdatePrescription)
		pass.DELETE("/prescriptions/:id", handler.DeletePrescription)
	}

	faces := authed.Group("/faceid", mw.RequireRole(pharmacy.RoleAdmin))
	{
		faces.POST("/registration", handler.StartFaceRegistration)
		faces.POST("/users", handler.RegisterFace)
		faces.GET("/users", handler.ListFaces)
		faces.DELETE("/users/:name", handler.DeleteFace)
	}

	return r
}
