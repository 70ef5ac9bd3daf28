package server

import (
	"cart-autofill/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *types.Config, handler *Handler, logger *logrus.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		automation := v1.Group("/automation")
		{
			automation.POST("", RateLimitMiddleware(NewRateLimiter(cfg.RatePerSecond, cfg.RateBurst)), handler.StartAutomation)
			automation.GET("/progress", handler.Progress)
		}
	}

	return router
}
