package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"signage-control-backend/config"
	"signage-control-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	if d.Config == nil {
		d.Config = &config.Config{}
		d.Config.ApplyDefaults()
	}
	cfg := d.Config

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), mw.Metrics())

	handler := NewHandler(d)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst, cfg.Server.RequestIPHeader)
	caching := mw.Cache(handler.usageCache, cfg.Server.CacheTTL)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)

	// Device-facing ingest
	device := api.Group("", mw.DeviceAuth(cfg.Auth.DeviceToken))
	{
		device.POST("/device/:id/status", handler.ReportStatus)
		device.POST("/device/:id/commands/:commandId/executed", handler.ConfirmExecuted)
		device.POST("/publish-jobs/:id/progress", handler.ReportJobProgress)
	}

	// Operator API
	operator := api.Group("")
	if cfg.Auth.Enabled {
		operator.Use(mw.BearerAuth(cfg.Auth.JWTSecret))
	}
	{
		operator.POST("/device/:id/command", handler.DispatchCommand)
		operator.GET("/device/:id/commands/history", handler.GetCommandHistory)

		operator.GET("/devices", handler.ListDevices)
		operator.POST("/devices", handler.RegisterDevice)
		operator.DELETE("/devices/:id", handler.DeleteDevice)
		operator.GET("/devices/:id/details", handler.GetDeviceDetails)
		operator.GET("/devices/:id/settings", handler.GetSettings)
		operator.POST("/devices/:id/settings", handler.UpdateSettings)
		operator.GET("/devices/:id/data-usage", caching, handler.GetDataUsage)
		operator.GET("/devices/:id/power-schedule", handler.GetPowerSchedule)
		operator.POST("/devices/:id/power-schedule", handler.SetPowerSchedule)

		operator.GET("/publish-jobs", handler.ListPublishJobs)
		operator.POST("/publish-jobs", handler.CreatePublishJob)

		operator.GET("/groups", handler.ListGroups)
		operator.POST("/groups", handler.CreateGroup)
		operator.PUT("/groups/:id/members", handler.SetGroupMembers)

		operator.GET("/subscriptions", handler.GetSubscription)
		operator.PUT("/subscriptions", handler.PutSubscription)
		operator.DELETE("/subscriptions", handler.DeleteSubscription)
		operator.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		if d.Hub != nil {
			operator.GET("/events", gin.WrapH(d.Hub))
		}
	}

	return r
}
