package repos

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

// ListFilter is the AND-combinable filter set for listings. Nil and empty
// members are ignored.
type ListFilter struct {
	SourceDatasetID *uuid.UUID
	TargetDatasetID *uuid.UUID
	Type            *domain.CorrelationType
	MinConfidence   *float64
	Tag             string
}

type CorrelationRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Correlation) ([]*domain.Correlation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Correlation, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Correlation, error)
	Save(dbc dbctx.Context, row *domain.Correlation) error
	ApplyValidationOutcome(dbc dbctx.Context, id uuid.UUID, status domain.CorrelationStatus, validityScore float64, at time.Time) (int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
	List(dbc dbctx.Context, filter ListFilter, limit, offset int) ([]*domain.Correlation, int64, error)
}

type correlationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCorrelationRepo(db *gorm.DB, baseLog *logger.Logger) CorrelationRepo {
	return &correlationRepo{db: db, log: baseLog.With("repo", "CorrelationRepo")}
}

func (r *correlationRepo) handle(dbc dbctx.Context) *gorm.DB {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(dbc.Ctx)
}

func (r *correlationRepo) Create(dbc dbctx.Context, rows []*domain.Correlation) ([]*domain.Correlation, error) {
	if len(rows) == 0 {
		return []*domain.Correlation{}, nil
	}
	if err := r.handle(dbc).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *correlationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Correlation, error) {
	var row domain.Correlation
	err := r.handle(dbc).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *correlationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Correlation, error) {
	var rows []*domain.Correlation
	if len(ids) == 0 {
		return rows, nil
	}
	if err := r.handle(dbc).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *correlationRepo) Save(dbc dbctx.Context, row *domain.Correlation) error {
	return r.handle(dbc).Save(row).Error
}

// ApplyValidationOutcome writes status, validity score, and last_validated in
// one UPDATE so readers never observe a validated status with a stale score.
// Version is deliberately untouched: validation is not a structural edit.
func (r *correlationRepo) ApplyValidationOutcome(dbc dbctx.Context, id uuid.UUID, status domain.CorrelationStatus, validityScore float64, at time.Time) (int64, error) {
	res := r.handle(dbc).Model(&domain.Correlation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"validity_score": validityScore,
			"last_validated": at,
			"updated_at":     at,
		})
	return res.RowsAffected, res.Error
}

func (r *correlationRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.handle(dbc).Where("id IN ?", ids).Delete(&domain.Correlation{})
	return res.RowsAffected, res.Error
}

// List pages through correlations under the stable sort key (created_at, id)
// so a paginating reader sees no duplicates and no gaps while unrelated rows
// are written concurrently.
func (r *correlationRepo) List(dbc dbctx.Context, filter ListFilter, limit, offset int) ([]*domain.Correlation, int64, error) {
	q := r.handle(dbc).Model(&domain.Correlation{})
	q = applyFilter(q, filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*domain.Correlation
	if err := q.
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func applyFilter(q *gorm.DB, filter ListFilter) *gorm.DB {
	if filter.SourceDatasetID != nil {
		q = q.Where("source_dataset_id = ?", *filter.SourceDatasetID)
	}
	if filter.TargetDatasetID != nil {
		q = q.Where("target_dataset_id = ?", *filter.TargetDatasetID)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.MinConfidence != nil {
		q = q.Where("confidence >= ?", *filter.MinConfidence)
	}
	if filter.Tag != "" {
		member, _ := json.Marshal([]string{filter.Tag})
		q = q.Where("tags @> ?", datatypes.JSON(member))
	}
	return q
}
