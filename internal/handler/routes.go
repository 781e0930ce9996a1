package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-council-planner/internal/middleware"
	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/internal/service"
)

// RouteDeps groups what RegisterRoutes mounts. Tokens is nil when service
// token auth is disabled.
type RouteDeps struct {
	Council *CouncilHandler
	Metrics *MetricsHandler
	Tokens  *service.TokenService
	Logger  *zap.Logger
}

// RegisterRoutes mounts health, metrics and the council API under prefix.
func RegisterRoutes(r *gin.Engine, prefix string, deps RouteDeps) {
	r.GET("/health", deps.Metrics.Health)
	r.GET("/ready", deps.Metrics.Ready)
	r.GET("/metrics", deps.Metrics.Prometheus)

	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	// Signed tokens authorize downloads on their own.
	api.GET("/export/:token", deps.Council.DownloadExport)

	councils := api.Group("/councils")
	read, write := []gin.HandlerFunc{}, []gin.HandlerFunc{}
	if deps.Tokens != nil {
		councils.Use(middleware.JWT(deps.Tokens))
		read = append(read, middleware.RequireRoles(models.RoleAdmin, models.RoleViewer))
		write = append(write, middleware.RequireRoles(models.RoleAdmin))
	}
	with := func(chain []gin.HandlerFunc, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, chain...), handlers...)
	}

	councils.POST("/plans", with(write, middleware.Audit(deps.Logger, "plan.upload"), deps.Council.UploadPlan)...)
	councils.POST("/plans/records", with(write, middleware.Audit(deps.Logger, "plan.records"), deps.Council.RecordsPlan)...)
	councils.GET("/plans", with(read, deps.Council.ListPlans)...)
	councils.GET("/plans/:id", with(read, deps.Council.GetPlan)...)
	councils.GET("/plans/:id/archive", with(read, deps.Council.DownloadArchive)...)
	councils.GET("/plans/:id/document", with(read, deps.Council.DownloadDocument)...)
	councils.POST("/plans/:id/exports", with(write, middleware.Audit(deps.Logger, "export.create"), deps.Council.CreateExport)...)
	councils.GET("/exports/:id", with(read, deps.Council.ExportStatus)...)
}
