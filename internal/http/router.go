package http

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go.ngs.io/regional-ocean/internal/usecase"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(runner *usecase.Runner) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Default to allow all origins if not specified.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	handler := NewHandler(runner)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.GET("/grid", handler.GetGrid)
	v1.GET("/outputs", handler.GetOutputs)

	// Pipeline runs. One run at a time.
	runs := v1.Group("/runs")
	runs.POST("/grid", handler.RunGrid)
	runs.POST("/initial-condition", handler.RunInitialCondition)
	runs.POST("/segments", handler.RunSegments)
	runs.POST("/tides", handler.RunTides)
	runs.GET("/last", handler.GetLastRun)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}
