package app

import (
	httpx "github.com/datalinker/correlation-backend/internal/http"
	httpH "github.com/datalinker/correlation-backend/internal/http/handlers"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Correlation *httpH.CorrelationHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(),
		Correlation: httpH.NewCorrelationHandler(services.Discovery, services.Pipeline, services.Lifecycle, services.Query),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers) *httpx.Server {
	log.Info("Wiring router...")
	return httpx.NewServer(httpx.RouterConfig{
		Log:                log,
		CorrelationHandler: handlers.Correlation,
		HealthHandler:      handlers.Health,
		ServiceName:        cfg.ServiceName,
	})
}
