package domain

import "time"

// CorrelationStat is the singleton aggregate row behind Statistics(). It is
// maintained incrementally in the same transaction as every correlation and
// validation write, so reads stay O(1) regardless of corpus size.
type CorrelationStat struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	TotalCorrelations int64     `gorm:"column:total_correlations;not null;default:0" json:"total_correlations"`
	TotalValidations  int64     `gorm:"column:total_validations;not null;default:0" json:"total_validations"`
	ConfidenceSum     float64   `gorm:"column:confidence_sum;not null;default:0" json:"confidence_sum"`
	UpdatedAt         time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (CorrelationStat) TableName() string { return "correlation_stat" }

// CorrelationTypeCount is the per-type slice of the aggregate.
type CorrelationTypeCount struct {
	Type  CorrelationType `gorm:"column:type;primaryKey" json:"type"`
	Count int64           `gorm:"column:count;not null;default:0" json:"count"`
}

func (CorrelationTypeCount) TableName() string { return "correlation_type_count" }

// CorrelationStats is the aggregate summary served by the query engine.
type CorrelationStats struct {
	TotalCorrelations int64            `json:"total_correlations"`
	TotalValidations  int64            `json:"total_validations"`
	AverageConfidence float64          `json:"average_confidence"`
	TypeBreakdown     map[string]int64 `json:"correlation_type_breakdown"`
}
