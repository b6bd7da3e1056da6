package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/discovery"
	"github.com/datalinker/correlation-backend/internal/events"
	"github.com/datalinker/correlation-backend/internal/lifecycle"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
	"github.com/datalinker/correlation-backend/internal/query"
	"github.com/datalinker/correlation-backend/internal/registry"
	"github.com/datalinker/correlation-backend/internal/validation"
)

type Services struct {
	Registry  registry.Registry
	Bus       events.Bus
	Discovery *discovery.Engine
	Pipeline  *validation.Pipeline
	Lifecycle *lifecycle.Controller
	Query     *query.Service
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	reg := registry.New(db, log)

	var bus events.Bus
	if os.Getenv("REDIS_ADDR") != "" {
		rb, err := events.NewRedisBus(log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis bus: %w", err)
		}
		bus = rb
	} else {
		log.Info("REDIS_ADDR not set, using in-process event bus")
		bus = events.NewMemoryBus()
	}

	engine := discovery.NewEngine(db, log, reg, reposet.Correlation, reposet.Stat, bus)

	pipeline, err := validation.NewPipeline(db, log, cfg.Validation, reg, reposet.Correlation, reposet.Validation, reposet.Stat, bus)
	if err != nil {
		return Services{}, err
	}

	controller := lifecycle.NewController(db, log, reposet.Correlation, reposet.Validation, reposet.Stat, bus)
	queries := query.NewService(log, reposet.Correlation, reposet.Stat)

	return Services{
		Registry:  reg,
		Bus:       bus,
		Discovery: engine,
		Pipeline:  pipeline,
		Lifecycle: controller,
		Query:     queries,
	}, nil
}
