package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Validation is one validation run over a correlation. A correlation may be
// validated many times; the latest run is authoritative for its status and
// validity score. Rows are owned by the correlation and deleted with it.
type Validation struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CorrelationID uuid.UUID `gorm:"type:uuid;not null;index" json:"correlation_id"`

	StatisticalScore  float64 `gorm:"column:statistical_score;not null" json:"statistical_score"`
	SemanticScore     float64 `gorm:"column:semantic_score;not null" json:"semantic_score"`
	StructuralScore   float64 `gorm:"column:structural_score;not null" json:"structural_score"`
	ConservationError float64 `gorm:"column:conservation_error;not null" json:"conservation_error"`
	TestAccuracy      float64 `gorm:"column:test_accuracy;not null" json:"test_accuracy"`
	ValidityScore     float64 `gorm:"column:validity_score;not null" json:"validity_score"`

	ConfidenceLower float64 `gorm:"column:confidence_lower;not null" json:"confidence_lower"`
	ConfidenceUpper float64 `gorm:"column:confidence_upper;not null" json:"confidence_upper"`

	ValidationMethod string         `gorm:"column:validation_method;not null" json:"validation_method"`
	ValidationTimeMs int64          `gorm:"column:validation_time_ms" json:"validation_time_ms"`
	DataSize         int64          `gorm:"column:data_size" json:"data_size"`
	SampleSize       int64          `gorm:"column:sample_size" json:"sample_size"`
	CounterExamples  datatypes.JSON `gorm:"column:counter_examples;type:jsonb" json:"counter_examples"`
	ValidatedAt      time.Time      `gorm:"not null;default:now()" json:"validated_at"`
}

func (Validation) TableName() string { return "validation" }

func (v *Validation) Validate() error {
	if v.CorrelationID == uuid.Nil {
		return fmt.Errorf("validation requires a correlation id")
	}
	for _, s := range []struct {
		name string
		val  float64
	}{
		{"statistical_score", v.StatisticalScore},
		{"semantic_score", v.SemanticScore},
		{"structural_score", v.StructuralScore},
		{"conservation_error", v.ConservationError},
		{"test_accuracy", v.TestAccuracy},
		{"validity_score", v.ValidityScore},
		{"confidence_lower", v.ConfidenceLower},
		{"confidence_upper", v.ConfidenceUpper},
	} {
		if err := CheckScore(s.name, s.val); err != nil {
			return err
		}
	}
	if v.ConfidenceLower > v.ConfidenceUpper {
		return fmt.Errorf("confidence interval is inverted: [%v, %v]", v.ConfidenceLower, v.ConfidenceUpper)
	}
	return nil
}
