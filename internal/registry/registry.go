// Package registry is the engine's read-only client for dataset metadata.
// The engine never inspects dataset content; everything discovery and
// validation know about a dataset comes from here.
package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/apierr"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

type Registry interface {
	// GetDataset resolves dataset metadata or fails with a NotFound kind.
	GetDataset(dbc dbctx.Context, id uuid.UUID) (*domain.Dataset, error)
	// GetColumnProfile returns the precomputed statistics for one column,
	// or nil when the registry has no profile for it.
	GetColumnProfile(dbc dbctx.Context, id uuid.UUID, column string) (*domain.ColumnProfile, error)
}

type gormRegistry struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, baseLog *logger.Logger) Registry {
	return &gormRegistry{db: db, log: baseLog.With("service", "DatasetRegistry")}
}

func (r *gormRegistry) handle(dbc dbctx.Context) *gorm.DB {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(dbc.Ctx)
}

func (r *gormRegistry) GetDataset(dbc dbctx.Context, id uuid.UUID) (*domain.Dataset, error) {
	var row domain.Dataset
	err := r.handle(dbc).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("dataset_not_found", fmt.Errorf("dataset %s", id))
	}
	if err != nil {
		return nil, apierr.Dependency("registry_unavailable", err)
	}
	if err := row.Validate(); err != nil {
		return nil, apierr.Dependency("registry_corrupt_metadata", err)
	}
	return &row, nil
}

func (r *gormRegistry) GetColumnProfile(dbc dbctx.Context, id uuid.UUID, column string) (*domain.ColumnProfile, error) {
	var row domain.ColumnProfile
	err := r.handle(dbc).Where("dataset_id = ? AND column_name = ?", id, column).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.Dependency("registry_unavailable", err)
	}
	return &row, nil
}
