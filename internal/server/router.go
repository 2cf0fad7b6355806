package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/videorag-backend/internal/handlers"
)

type RouterConfig struct {
	UploadHandler     *handlers.UploadHandler
	ManagementHandler *handlers.ManagementHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("videorag-backend"))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/uploads", cfg.UploadHandler.Submit)

		mgmt := api.Group("/management")
		mgmt.POST("/videos/batch-delete", cfg.ManagementHandler.BatchDelete)
		mgmt.DELETE("/videos/:video_id", cfg.ManagementHandler.DeleteVideo)
		mgmt.DELETE("/videos/:video_id/vectors", cfg.ManagementHandler.DeleteVectors)
		mgmt.DELETE("/videos/:video_id/stages/:stage", cfg.ManagementHandler.DeleteStage)
		mgmt.GET("/videos/:video_id/status", cfg.ManagementHandler.GetStatus)
		mgmt.GET("/videos/:video_id/progress", cfg.ManagementHandler.GetProgress)
	}

	return router
}
