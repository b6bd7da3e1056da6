package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CorrelationType string

const (
	TypeOneToOne           CorrelationType = "one_to_one"
	TypeOneToMany          CorrelationType = "one_to_many"
	TypeManyToOne          CorrelationType = "many_to_one"
	TypeManyToMany         CorrelationType = "many_to_many"
	TypeWeightedManyToMany CorrelationType = "weighted_many_to_many"
	TypeTemporal           CorrelationType = "temporal"
	TypeSpatial            CorrelationType = "spatial"
	TypeSemantic           CorrelationType = "semantic"
	TypeStatistical        CorrelationType = "statistical"
	TypeStructural         CorrelationType = "structural"
	TypeFunctional         CorrelationType = "functional"
	TypeCausal             CorrelationType = "causal"
)

var correlationTypes = map[CorrelationType]bool{
	TypeOneToOne:           true,
	TypeOneToMany:          true,
	TypeManyToOne:          true,
	TypeManyToMany:         true,
	TypeWeightedManyToMany: true,
	TypeTemporal:           true,
	TypeSpatial:            true,
	TypeSemantic:           true,
	TypeStatistical:        true,
	TypeStructural:         true,
	TypeFunctional:         true,
	TypeCausal:             true,
}

func (t CorrelationType) Valid() bool { return correlationTypes[t] }

// CorrelationTypes returns the enum in stable order, for statistics breakdowns.
func CorrelationTypes() []CorrelationType {
	out := make([]CorrelationType, 0, len(correlationTypes))
	for t := range correlationTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type CorrelationStatus string

const (
	StatusProposed    CorrelationStatus = "proposed"
	StatusValidated   CorrelationStatus = "validated"
	StatusInvalidated CorrelationStatus = "invalidated"
)

// CanTransition encodes the lifecycle state machine. Proposed correlations can
// be validated or invalidated; re-validation can flip between validated and
// invalidated; nothing ever returns to proposed.
func CanTransition(from, to CorrelationStatus) bool {
	if to == StatusProposed {
		return false
	}
	switch from {
	case StatusProposed, StatusValidated, StatusInvalidated:
		return to == StatusValidated || to == StatusInvalidated
	default:
		return false
	}
}

type DiscoveryMethod string

const (
	MethodNeuralNetwork     DiscoveryMethod = "neural_network"
	MethodStatistical       DiscoveryMethod = "statistical"
	MethodEvolutionary      DiscoveryMethod = "evolutionary"
	MethodInformationTheory DiscoveryMethod = "information_theory"
)

func (m DiscoveryMethod) Valid() bool {
	switch m {
	case MethodNeuralNetwork, MethodStatistical, MethodEvolutionary, MethodInformationTheory:
		return true
	}
	return false
}

// Correlation is a proposed relationship between two distinct datasets.
// Created only by the discovery engine, mutated only through the lifecycle
// controller and the validation pipeline, hard-deleted with its validations.
type Correlation struct {
	ID                  uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	SourceDatasetID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"source_dataset_id"`
	TargetDatasetID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"target_dataset_id"`
	Type                CorrelationType   `gorm:"column:type;not null;index" json:"type"`
	Parameters          datatypes.JSON    `gorm:"column:parameters;type:jsonb" json:"parameters"`
	Confidence          float64           `gorm:"column:confidence;not null" json:"confidence"`
	ValidityScore       float64           `gorm:"column:validity_score;not null;default:0" json:"validity_score"`
	Status              CorrelationStatus `gorm:"column:status;not null;default:'proposed';index" json:"status"`
	ParentCorrelationID *uuid.UUID        `gorm:"type:uuid" json:"parent_correlation_id,omitempty"`
	Version             int               `gorm:"column:version;not null;default:1" json:"version"`
	Tags                datatypes.JSON    `gorm:"column:tags;type:jsonb" json:"tags"`
	Metadata            datatypes.JSON    `gorm:"column:metadata;type:jsonb" json:"metadata"`
	DiscoveryMethod     DiscoveryMethod   `gorm:"column:discovery_method" json:"discovery_method"`
	LastValidated       *time.Time        `gorm:"column:last_validated" json:"last_validated,omitempty"`
	CreatedAt           time.Time         `gorm:"not null;default:now();index:idx_correlation_created_id,priority:1" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (Correlation) TableName() string { return "correlation" }

// Validate rejects out-of-range scores and self-correlations. Violating
// inputs are errors, never clamped.
func (c *Correlation) Validate() error {
	if c.SourceDatasetID == uuid.Nil || c.TargetDatasetID == uuid.Nil {
		return fmt.Errorf("source and target dataset ids are required")
	}
	if c.SourceDatasetID == c.TargetDatasetID {
		return fmt.Errorf("correlation source and target must be distinct datasets")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unknown correlation type %q", c.Type)
	}
	if err := CheckScore("confidence", c.Confidence); err != nil {
		return err
	}
	if err := CheckScore("validity_score", c.ValidityScore); err != nil {
		return err
	}
	if c.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", c.Version)
	}
	return nil
}

// CheckScore enforces the [0,1] bound shared by every score in the model.
func CheckScore(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0,1], got %v", name, v)
	}
	return nil
}

// TagSet decodes the tags column into a sorted, deduplicated slice.
func (c *Correlation) TagSet() []string {
	return decodeTags(c.Tags)
}

// EncodeTags normalizes a slice into the stored sorted-set representation.
func EncodeTags(tags []string) (datatypes.JSON, error) {
	return encodeTags(tags)
}
