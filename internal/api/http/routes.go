package http

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures the API routes for the batch shipping service
func SetupRoutes(router *gin.Engine, handlers *Handlers) {
	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", handlers.StartRun)
			runs.GET("", handlers.GetHistory)
			runs.GET("/status", handlers.GetStatus)
		}
	}
}
