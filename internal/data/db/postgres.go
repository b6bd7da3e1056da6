package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/envutil"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := envutil.GetEnv("POSTGRES_HOST", "localhost", log)
	port := envutil.GetEnv("POSTGRES_PORT", "5432", log)
	user := envutil.GetEnv("POSTGRES_USER", "postgres", log)
	password := envutil.GetEnv("POSTGRES_PASSWORD", "", log)
	name := envutil.GetEnv("POSTGRES_NAME", "correlation", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&domain.Dataset{},
		&domain.ColumnProfile{},
		&domain.Correlation{},
		&domain.Validation{},
		&domain.CorrelationStat{},
		&domain.CorrelationTypeCount{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	// Validation rows are owned by their correlation; the FK backs the
	// cascade guarantee even outside the repo's explicit delete.
	if err := s.db.Exec(`
		ALTER TABLE "validation"
		DROP CONSTRAINT IF EXISTS "fk_validation_correlation_id"
	`).Error; err != nil {
		return fmt.Errorf("drop fk_validation_correlation_id: %w", err)
	}
	if err := s.db.Exec(`
		ALTER TABLE "validation"
		ADD CONSTRAINT "fk_validation_correlation_id"
		FOREIGN KEY ("correlation_id")
		REFERENCES "correlation"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("add fk_validation_correlation_id: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
