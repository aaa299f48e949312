package app

import (
	"github.com/gin-gonic/gin"
	"github.com/tileverse/core/internal/middleware"
	"github.com/tileverse/core/internal/modules/analytics"
	"github.com/tileverse/core/internal/modules/contact"
	"github.com/tileverse/core/internal/modules/legacy"
	"github.com/tileverse/core/internal/modules/tile"
	"github.com/tileverse/core/internal/modules/user"
	pkgredis "github.com/tileverse/core/internal/pkg/redis"
	"github.com/tileverse/core/internal/pkg/response"
)

func (a *App) registerRoutes(rc *pkgredis.Client, analyticsSvc *analytics.Service) {
	r := a.router
	db := a.db
	authMW := middleware.Auth()
	adminMW := middleware.AdminOnly()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	r.GET("/", func(c *gin.Context) {
		response.OK(c, gin.H{
			"name":    "tileverse-core",
			"version": "1.0.0",
		})
	})
	r.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v2")
	api.Use(middleware.OptionalAuth())
	api.Use(middleware.RateLimit(rc.Raw()))

	// Every successful authenticated tile detail fetch becomes a view event.
	api.Use(analytics.Middleware(analyticsSvc, a.logger.Named("AnalyticsMiddleware")))

	tile.NewHandler(tile.NewService(db)).RegisterRoutes(api, authMW, adminMW)
	user.NewHandler(user.NewService(db)).RegisterRoutes(api, authMW, adminMW)
	contact.NewHandler(contact.NewService(db)).RegisterRoutes(api, authMW, adminMW)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(api, authMW, adminMW)
	legacy.NewHandler(legacy.NewImporter(db, a.logger.Named("LegacyImport"))).RegisterRoutes(api, authMW, adminMW)

	jobs := api.Group("/jobs", authMW, adminMW)
	jobs.GET("", func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})
	jobs.POST("/:name/run", func(c *gin.Context) {
		if err := a.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, "job not found")
			return
		}
		response.OK(c, gin.H{"message": "job triggered"})
	})
}
