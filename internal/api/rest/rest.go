package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/api/middleware"
)

// SetupRoutes configures all REST API routes. Route groups are tiered:
// reads need a read credential, pipeline interventions need operate.
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health and metrics endpoints (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	read := v1.Group("")
	read.Use(middleware.RequireRole(authCfg, middleware.RoleRead))
	{
		read.GET("/documents/failed", handler.ListFailedDocuments)
		read.GET("/documents/:file_id", handler.GetDocument)
		read.GET("/refresh/runs", handler.ListRefreshRuns)
		read.GET("/claims/:claim_id/timeline", handler.GetClaimTimeline)
		read.GET("/claims/:claim_id/summary", handler.GetClaimSummary)
	}

	operate := v1.Group("")
	operate.Use(middleware.RequireRole(authCfg, middleware.RoleOperate))
	{
		operate.POST("/documents/:file_id/requeue", handler.RequeueDocument)
		operate.POST("/refresh", handler.TriggerRefresh)
	}
}
