package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/datalinker/correlation-backend/internal/domain"
)

func SeedDataset(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, recordCount int64, fields []domain.FieldDef) *domain.Dataset {
	tb.Helper()
	schema, err := json.Marshal(fields)
	if err != nil {
		tb.Fatalf("marshal schema: %v", err)
	}
	d := &domain.Dataset{
		ID:          uuid.New(),
		Name:        name,
		Type:        domain.DatasetStructured,
		Format:      "csv",
		SizeBytes:   recordCount * 100,
		RecordCount: recordCount,
		Schema:      datatypes.JSON(schema),
		Visibility:  "private",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed dataset: %v", err)
	}
	return d
}

func SeedCorrelation(tb testing.TB, ctx context.Context, tx *gorm.DB, sourceID, targetID uuid.UUID, typ domain.CorrelationType, confidence float64, createdAt time.Time) *domain.Correlation {
	tb.Helper()
	c := &domain.Correlation{
		ID:              uuid.New(),
		SourceDatasetID: sourceID,
		TargetDatasetID: targetID,
		Type:            typ,
		Parameters:      datatypes.JSON([]byte(`{"keyColumn":"id"}`)),
		Confidence:      confidence,
		Status:          domain.StatusProposed,
		Version:         1,
		DiscoveryMethod: domain.MethodStatistical,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed correlation: %v", err)
	}
	return c
}

func SeedValidation(tb testing.TB, ctx context.Context, tx *gorm.DB, correlationID uuid.UUID, validityScore float64) *domain.Validation {
	tb.Helper()
	v := &domain.Validation{
		ID:               uuid.New(),
		CorrelationID:    correlationID,
		StatisticalScore: validityScore,
		SemanticScore:    validityScore,
		StructuralScore:  validityScore,
		TestAccuracy:     validityScore,
		ValidityScore:    validityScore,
		ConfidenceLower:  validityScore * 0.9,
		ConfidenceUpper:  validityScore,
		ValidationMethod: "composite",
		ValidatedAt:      time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed validation: %v", err)
	}
	return v
}
