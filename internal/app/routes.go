package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/drewmudry/cadence-api/auth"
	"github.com/drewmudry/cadence-api/drafts"
	"github.com/drewmudry/cadence-api/internal/metrics"
	"github.com/drewmudry/cadence-api/internal/platform"
	"github.com/drewmudry/cadence-api/publishing"
	"github.com/drewmudry/cadence-api/worker"
)

// Router builds the HTTP API.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), platform.RequestLogger())

	// CORS for the dashboard frontend
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", a.Config.FrontendURL)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID, x-cron-secret, cron-secret")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := a.DB.DB()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Cadence API v1"})
	})

	publishHandler := publishing.NewHandler(a.Dispatcher, a.Tasks)
	draftHandler := drafts.NewHandler(a.DB, a.Nightly)

	cronCheck := auth.OptionalCronSecret(a.Config.CronSecret)
	publishRoutes := router.Group("/publishing")
	{
		publishRoutes.GET("/run", cronCheck, publishHandler.RunDue)
		publishRoutes.POST("/run", cronCheck, publishHandler.RunDue)
		publishRoutes.POST("/publish-now", publishHandler.PublishNow)
	}

	router.POST("/drafts/generate-all", auth.RequireCronSecret(a.Config.CronSecret), draftHandler.GenerateAll)

	admin := router.Group("", auth.RequireAdminKey(a.Config.AdminAPIKey))
	{
		admin.POST("/subcategories/:id/occurrences", draftHandler.CreateOccurrence)
		admin.PATCH("/occurrences/:id", draftHandler.UpdateOccurrence)
		admin.DELETE("/occurrences/:id", draftHandler.DeleteOccurrence)
		admin.GET("/tasks/:id", worker.GetTask(a.DB))
	}

	if a.State != nil {
		connect := auth.NewHandler(a.DB, a.State, a.Cipher, a.Config.ConnectConfig())
		oauthRoutes := router.Group("/oauth")
		{
			oauthRoutes.GET("/:provider/start", connect.Start)
			oauthRoutes.GET("/:provider/callback", connect.Callback)
		}
	} else {
		logrus.Warn("[APP] OAUTH_STATE_SECRET not set, /oauth routes disabled")
	}

	return router
}
