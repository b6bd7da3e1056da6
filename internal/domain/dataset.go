package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DatasetType string

const (
	DatasetStructured   DatasetType = "structured"
	DatasetUnstructured DatasetType = "unstructured"
)

// Dataset is owned by the ingestion side; the engine reads it through the
// registry and never inspects dataset content, only this metadata.
type Dataset struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	Description string         `gorm:"column:description" json:"description"`
	Type        DatasetType    `gorm:"column:type;not null" json:"type"`
	Format      string         `gorm:"column:format" json:"format"`
	SizeBytes   int64          `gorm:"column:size_bytes" json:"size_bytes"`
	RecordCount int64          `gorm:"column:record_count" json:"record_count"`
	Schema      datatypes.JSON `gorm:"column:schema;type:jsonb" json:"schema"`
	Tags        datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	Visibility  string         `gorm:"column:visibility" json:"visibility"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Dataset) TableName() string { return "dataset" }

// FieldDef is one entry of a dataset's ordered schema.
type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (d *Dataset) Fields() ([]FieldDef, error) {
	if len(d.Schema) == 0 {
		return nil, nil
	}
	var fields []FieldDef
	if err := json.Unmarshal(d.Schema, &fields); err != nil {
		return nil, fmt.Errorf("decode dataset schema: %w", err)
	}
	return fields, nil
}

func (d *Dataset) Validate() error {
	if d.SizeBytes < 0 {
		return fmt.Errorf("dataset size must be non-negative, got %d", d.SizeBytes)
	}
	if d.RecordCount < 0 {
		return fmt.Errorf("dataset record count must be non-negative, got %d", d.RecordCount)
	}
	return nil
}

// ColumnProfile is the registry's precomputed per-column statistics summary.
// Discovery and validation work from these profiles so their cost tracks the
// profile size, not the dataset row count.
type ColumnProfile struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_column_profile_dataset_column,unique" json:"dataset_id"`
	Column        string         `gorm:"column:column_name;not null;index:idx_column_profile_dataset_column,unique" json:"column"`
	DistinctCount int64          `gorm:"column:distinct_count" json:"distinct_count"`
	NullFraction  float64        `gorm:"column:null_fraction" json:"null_fraction"`
	NumericMin    *float64       `gorm:"column:numeric_min" json:"numeric_min,omitempty"`
	NumericMax    *float64       `gorm:"column:numeric_max" json:"numeric_max,omitempty"`
	NumericMean   *float64       `gorm:"column:numeric_mean" json:"numeric_mean,omitempty"`
	TimeMin       *time.Time     `gorm:"column:time_min" json:"time_min,omitempty"`
	TimeMax       *time.Time     `gorm:"column:time_max" json:"time_max,omitempty"`
	SampleValues  datatypes.JSON `gorm:"column:sample_values;type:jsonb" json:"sample_values"`
	SeriesSample  datatypes.JSON `gorm:"column:series_sample;type:jsonb" json:"series_sample"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ColumnProfile) TableName() string { return "column_profile" }

// Samples decodes the sampled distinct values (strings, registry-normalized).
func (p *ColumnProfile) Samples() []string {
	if len(p.SampleValues) == 0 {
		return nil
	}
	var vals []string
	if err := json.Unmarshal(p.SampleValues, &vals); err != nil {
		return nil
	}
	return vals
}

// Series decodes the per-period aggregated value sample for temporal columns.
func (p *ColumnProfile) Series() []float64 {
	if len(p.SeriesSample) == 0 {
		return nil
	}
	var vals []float64
	if err := json.Unmarshal(p.SeriesSample, &vals); err != nil {
		return nil
	}
	return vals
}
