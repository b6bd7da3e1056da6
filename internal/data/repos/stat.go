package repos

import (
	"time"

	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/domain"
	"github.com/datalinker/correlation-backend/internal/pkg/dbctx"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

const statRowID = 1

// StatRepo maintains the incremental aggregates behind Statistics(). Every
// mutation is a single atomic upsert with additive deltas, called inside the
// same transaction as the correlation/validation write it accounts for.
type StatRepo interface {
	ApplyCorrelationCreated(dbc dbctx.Context, typ domain.CorrelationType, confidence float64) error
	ApplyCorrelationDeleted(dbc dbctx.Context, typ domain.CorrelationType, confidence float64, validationCount int64) error
	ApplyValidationRecorded(dbc dbctx.Context) error
	Get(dbc dbctx.Context) (*domain.CorrelationStats, error)
}

type statRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStatRepo(db *gorm.DB, baseLog *logger.Logger) StatRepo {
	return &statRepo{db: db, log: baseLog.With("repo", "StatRepo")}
}

func (r *statRepo) handle(dbc dbctx.Context) *gorm.DB {
	tx := dbc.Tx
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(dbc.Ctx)
}

func (r *statRepo) applyDeltas(dbc dbctx.Context, correlations, validations int64, confidence float64) error {
	return r.handle(dbc).Exec(`
		INSERT INTO correlation_stat (id, total_correlations, total_validations, confidence_sum, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_correlations = correlation_stat.total_correlations + EXCLUDED.total_correlations,
			total_validations  = correlation_stat.total_validations + EXCLUDED.total_validations,
			confidence_sum     = correlation_stat.confidence_sum + EXCLUDED.confidence_sum,
			updated_at         = EXCLUDED.updated_at
	`, statRowID, correlations, validations, confidence, time.Now().UTC()).Error
}

func (r *statRepo) applyTypeDelta(dbc dbctx.Context, typ domain.CorrelationType, delta int64) error {
	return r.handle(dbc).Exec(`
		INSERT INTO correlation_type_count (type, count)
		VALUES (?, ?)
		ON CONFLICT (type) DO UPDATE SET
			count = correlation_type_count.count + EXCLUDED.count
	`, typ, delta).Error
}

func (r *statRepo) ApplyCorrelationCreated(dbc dbctx.Context, typ domain.CorrelationType, confidence float64) error {
	if err := r.applyDeltas(dbc, 1, 0, confidence); err != nil {
		return err
	}
	return r.applyTypeDelta(dbc, typ, 1)
}

func (r *statRepo) ApplyCorrelationDeleted(dbc dbctx.Context, typ domain.CorrelationType, confidence float64, validationCount int64) error {
	if err := r.applyDeltas(dbc, -1, -validationCount, -confidence); err != nil {
		return err
	}
	return r.applyTypeDelta(dbc, typ, -1)
}

func (r *statRepo) ApplyValidationRecorded(dbc dbctx.Context) error {
	return r.applyDeltas(dbc, 0, 1, 0)
}

func (r *statRepo) Get(dbc dbctx.Context) (*domain.CorrelationStats, error) {
	var row domain.CorrelationStat
	err := r.handle(dbc).Where("id = ?", statRowID).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}

	var typeRows []domain.CorrelationTypeCount
	if err := r.handle(dbc).Find(&typeRows).Error; err != nil {
		return nil, err
	}

	stats := &domain.CorrelationStats{
		TotalCorrelations: row.TotalCorrelations,
		TotalValidations:  row.TotalValidations,
		TypeBreakdown:     make(map[string]int64, len(typeRows)),
	}
	if row.TotalCorrelations > 0 {
		stats.AverageConfidence = row.ConfidenceSum / float64(row.TotalCorrelations)
	}
	for _, tr := range typeRows {
		if tr.Count != 0 {
			stats.TypeBreakdown[string(tr.Type)] = tr.Count
		}
	}
	return stats, nil
}
