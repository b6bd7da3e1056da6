package app

import (
	"github.com/datalinker/correlation-backend/internal/pkg/envutil"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
	"github.com/datalinker/correlation-backend/internal/validation"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string
	Version     string

	Validation validation.Config
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:        envutil.GetEnv("PORT", "8080", log),
		ServiceName: envutil.GetEnv("SERVICE_NAME", "correlation-backend", log),
		Environment: envutil.GetEnv("ENVIRONMENT", "development", log),
		Version:     envutil.GetEnv("SERVICE_VERSION", "dev", log),
		Validation:  validation.ConfigFromEnv(log),
	}
}
