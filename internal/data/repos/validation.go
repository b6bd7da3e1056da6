package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

type ValidationRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Validation) ([]*domain.Validation, error)
	GetByCorrelationID(dbc dbctx.Context, correlationID uuid.UUID) ([]*domain.Validation, error)
	CountByCorrelationIDs(dbc dbctx.Context, correlationIDs []uuid.UUID) (int64, error)
	DeleteByCorrelationIDs(dbc dbctx.Context, correlationIDs []uuid.UUID) (int64, error)
}

type validationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewValidationRepo(db *gorm.DB, baseLog *logger.Logger) ValidationRepo {
	return &validationRepo{db: db, log: baseLog.With("repo", "ValidationRepo")}
}

func (r *validationRepo) handle(dbc dbctx.Context) *gorm.DB {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(dbc.Ctx)
}

func (r *validationRepo) Create(dbc dbctx.Context, rows []*domain.Validation) ([]*domain.Validation, error) {
	if len(rows) == 0 {
		return []*domain.Validation{}, nil
	}
	if err := r.handle(dbc).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetByCorrelationID returns the validation history, newest first. The first
// row is authoritative for the correlation's current status.
func (r *validationRepo) GetByCorrelationID(dbc dbctx.Context, correlationID uuid.UUID) ([]*domain.Validation, error) {
	var rows []*domain.Validation
	if err := r.handle(dbc).
		Where("correlation_id = ?", correlationID).
		Order("validated_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *validationRepo) CountByCorrelationIDs(dbc dbctx.Context, correlationIDs []uuid.UUID) (int64, error) {
	if len(correlationIDs) == 0 {
		return 0, nil
	}
	var n int64
	if err := r.handle(dbc).Model(&domain.Validation{}).
		Where("correlation_id IN ?", correlationIDs).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *validationRepo) DeleteByCorrelationIDs(dbc dbctx.Context, correlationIDs []uuid.UUID) (int64, error) {
	if len(correlationIDs) == 0 {
		return 0, nil
	}
	res := r.handle(dbc).Where("correlation_id IN ?", correlationIDs).Delete(&domain.Validation{})
	return res.RowsAffected, res.Error
}
