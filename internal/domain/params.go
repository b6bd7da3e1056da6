package domain

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Params is the tagged union behind a correlation's open parameters column.
// Each correlation type decodes into the variant that carries exactly its
// required fields, so a temporal correlation cannot exist without lagDays.
type Params interface {
	CorrelationType() CorrelationType
	Validate() error
}

type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
)

func (j JoinType) Valid() bool {
	switch j {
	case JoinInner, JoinLeft, JoinRight, JoinFull:
		return true
	}
	return false
}

// CardinalityParams serves the five cardinality types. Weights is populated
// by the discovery engine for weighted_many_to_many and holds the per-pair
// weight distribution.
type CardinalityParams struct {
	typ CorrelationType

	KeyColumn string             `json:"keyColumn"`
	JoinType  JoinType           `json:"joinType,omitempty"`
	Weights   map[string]float64 `json:"weights,omitempty"`
}

func (p *CardinalityParams) CorrelationType() CorrelationType { return p.typ }

func (p *CardinalityParams) Validate() error {
	if p.KeyColumn == "" {
		return fmt.Errorf("%s correlation requires parameter %q", p.typ, "keyColumn")
	}
	if p.JoinType == "" {
		p.JoinType = JoinInner
	}
	if !p.JoinType.Valid() {
		return fmt.Errorf("unknown joinType %q", p.JoinType)
	}
	for pair, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %q must be non-negative, got %v", pair, w)
		}
	}
	return nil
}

type Aggregation string

const (
	AggSum   Aggregation = "sum"
	AggCount Aggregation = "count"
	AggMean  Aggregation = "mean"
)

func (a Aggregation) Valid() bool {
	switch a {
	case AggSum, AggCount, AggMean:
		return true
	}
	return false
}

type TemporalParams struct {
	LagDays     *int        `json:"lagDays"`
	Aggregation Aggregation `json:"aggregation"`

	// Set by the discovery engine when detected.
	Seasonal bool `json:"seasonal,omitempty"`
	Trending bool `json:"trending,omitempty"`
}

func (p *TemporalParams) CorrelationType() CorrelationType { return TypeTemporal }

func (p *TemporalParams) Validate() error {
	if p.LagDays == nil {
		return fmt.Errorf("temporal correlation requires parameter %q", "lagDays")
	}
	if *p.LagDays < 0 {
		return fmt.Errorf("lagDays must be non-negative, got %d", *p.LagDays)
	}
	if p.Aggregation == "" {
		return fmt.Errorf("temporal correlation requires parameter %q", "aggregation")
	}
	if !p.Aggregation.Valid() {
		return fmt.Errorf("unknown aggregation %q", p.Aggregation)
	}
	return nil
}

type SpatialParams struct {
	Distance      *float64 `json:"distance"`
	SpatialWeight *float64 `json:"spatialWeight"`

	// Set by the discovery engine when neighbor density crosses the
	// clustering threshold.
	Clustered bool `json:"clustered,omitempty"`
}

func (p *SpatialParams) CorrelationType() CorrelationType { return TypeSpatial }

func (p *SpatialParams) Validate() error {
	if p.Distance == nil {
		return fmt.Errorf("spatial correlation requires parameter %q", "distance")
	}
	if *p.Distance < 0 {
		return fmt.Errorf("distance must be non-negative, got %v", *p.Distance)
	}
	if p.SpatialWeight == nil {
		return fmt.Errorf("spatial correlation requires parameter %q", "spatialWeight")
	}
	if *p.SpatialWeight < 0 || *p.SpatialWeight > 1 {
		return fmt.Errorf("spatialWeight must be in [0,1], got %v", *p.SpatialWeight)
	}
	return nil
}

type SemanticParams struct {
	Similarity string   `json:"similarity,omitempty"`
	Embedding  string   `json:"embedding,omitempty"`
	Threshold  *float64 `json:"threshold"`
}

func (p *SemanticParams) CorrelationType() CorrelationType { return TypeSemantic }

func (p *SemanticParams) Validate() error {
	if p.Threshold == nil {
		return fmt.Errorf("semantic correlation requires parameter %q", "threshold")
	}
	if *p.Threshold < 0 || *p.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", *p.Threshold)
	}
	if p.Similarity == "" {
		p.Similarity = "name"
	}
	return nil
}

type StatisticalParams struct {
	Test string `json:"test,omitempty"`
}

func (p *StatisticalParams) CorrelationType() CorrelationType { return TypeStatistical }

func (p *StatisticalParams) Validate() error {
	if p.Test == "" {
		p.Test = "pearson"
	}
	switch p.Test {
	case "pearson", "spearman", "kendall":
		return nil
	}
	return fmt.Errorf("unknown statistical test %q", p.Test)
}

type StructuralParams struct {
	MatchTypes bool `json:"matchTypes,omitempty"`
}

func (p *StructuralParams) CorrelationType() CorrelationType { return TypeStructural }

func (p *StructuralParams) Validate() error { return nil }

type FunctionalParams struct {
	DeterminantColumn string `json:"determinantColumn,omitempty"`
}

func (p *FunctionalParams) CorrelationType() CorrelationType { return TypeFunctional }

func (p *FunctionalParams) Validate() error { return nil }

type CausalParams struct {
	MaxLagDays int `json:"maxLagDays,omitempty"`
}

func (p *CausalParams) CorrelationType() CorrelationType { return TypeCausal }

func (p *CausalParams) Validate() error {
	if p.MaxLagDays < 0 {
		return fmt.Errorf("maxLagDays must be non-negative, got %d", p.MaxLagDays)
	}
	if p.MaxLagDays == 0 {
		p.MaxLagDays = 7
	}
	return nil
}

// ParseParams decodes the open parameters map into the typed variant for the
// given correlation type and validates it. Missing required keys are errors,
// never silent defaults.
func ParseParams(t CorrelationType, raw datatypes.JSON) (Params, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown correlation type %q", t)
	}
	if len(raw) == 0 {
		raw = datatypes.JSON([]byte("{}"))
	}

	var p Params
	switch t {
	case TypeOneToOne, TypeOneToMany, TypeManyToOne, TypeManyToMany, TypeWeightedManyToMany:
		p = &CardinalityParams{typ: t}
	case TypeTemporal:
		p = &TemporalParams{}
	case TypeSpatial:
		p = &SpatialParams{}
	case TypeSemantic:
		p = &SemanticParams{}
	case TypeStatistical:
		p = &StatisticalParams{}
	case TypeStructural:
		p = &StructuralParams{}
	case TypeFunctional:
		p = &FunctionalParams{}
	case TypeCausal:
		p = &CausalParams{}
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s parameters: %w", t, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodeParams serializes a typed variant back into the stored column.
func EncodeParams(p Params) (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s parameters: %w", p.CorrelationType(), err)
	}
	return datatypes.JSON(raw), nil
}
