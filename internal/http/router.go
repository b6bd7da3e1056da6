package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/datalinker/correlation-backend/internal/http/handlers"
	httpMW "github.com/datalinker/correlation-backend/internal/http/middleware"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	CorrelationHandler *httpH.CorrelationHandler
	HealthHandler      *httpH.HealthHandler

	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS())
	if cfg.ServiceName != "" {
		r.Use(httpMW.Tracing(cfg.ServiceName))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.CorrelationHandler != nil {
			api.POST("/correlations/discover", cfg.CorrelationHandler.Discover)
			api.POST("/correlations/validate-batch", cfg.CorrelationHandler.ValidateBatch)
			api.GET("/correlations", cfg.CorrelationHandler.List)
			api.GET("/correlations/:id", cfg.CorrelationHandler.Get)
			api.GET("/correlations/:id/validations", cfg.CorrelationHandler.History)
			api.POST("/correlations/:id/validate", cfg.CorrelationHandler.Validate)
			api.POST("/correlations/:id/tags", cfg.CorrelationHandler.AddTags)
			api.DELETE("/correlations/:id/tags", cfg.CorrelationHandler.RemoveTags)
			api.PUT("/correlations/:id/parameters", cfg.CorrelationHandler.UpdateParameters)
			api.DELETE("/correlations/:id", cfg.CorrelationHandler.Delete)

			api.GET("/statistics", cfg.CorrelationHandler.Statistics)
		}
	}

	return r
}
