package http

import (
	"net/http"

	"github.com/autopecas/sigesync/config"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter creates and configures the Gin router. metrics may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, metrics http.Handler, logger logrus.FieldLogger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(RequestContextMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sync", handler.RunSync)

		mappings := v1.Group("/mappings")
		{
			mappings.GET("", handler.ListMappings)
			mappings.PUT("/:sku", handler.SetMapping)
			mappings.DELETE("/:sku", handler.DeleteMapping)
		}

		v1.GET("/balances/:key", handler.GetBalance)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return router
}
