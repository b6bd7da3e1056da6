package app

import (
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/data/repos"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

type Repos struct {
	Correlation repos.CorrelationRepo
	Validation  repos.ValidationRepo
	Stat        repos.StatRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Correlation: repos.NewCorrelationRepo(db, log),
		Validation:  repos.NewValidationRepo(db, log),
		Stat:        repos.NewStatRepo(db, log),
	}
}
