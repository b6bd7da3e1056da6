package domain

import (
	"testing"

	"github.com/google/uuid"
)

func validCorrelation() *Correlation {
	return &Correlation{
		ID:              uuid.New(),
		SourceDatasetID: uuid.New(),
		TargetDatasetID: uuid.New(),
		Type:            TypeOneToMany,
		Confidence:      0.85,
		ValidityScore:   0,
		Status:          StatusProposed,
		Version:         1,
		DiscoveryMethod: MethodStatistical,
	}
}

func TestCorrelationValidate(t *testing.T) {
	if err := validCorrelation().Validate(); err != nil {
		t.Fatalf("valid correlation rejected: %v", err)
	}
}

func TestCorrelationValidateRejectsSameDataset(t *testing.T) {
	c := validCorrelation()
	c.TargetDatasetID = c.SourceDatasetID
	if err := c.Validate(); err == nil {
		t.Fatalf("expected same-dataset correlation to be rejected")
	}
}

func TestCorrelationValidateRejectsOutOfRangeScores(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Correlation)
	}{
		{"confidence_negative", func(c *Correlation) { c.Confidence = -0.01 }},
		{"confidence_above_one", func(c *Correlation) { c.Confidence = 1.01 }},
		{"validity_negative", func(c *Correlation) { c.ValidityScore = -1 }},
		{"validity_above_one", func(c *Correlation) { c.ValidityScore = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCorrelation()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected out-of-range score to be rejected")
			}
		})
	}
}

func TestCorrelationValidateRejectsUnknownType(t *testing.T) {
	c := validCorrelation()
	c.Type = CorrelationType("sideways")
	if err := c.Validate(); err == nil {
		t.Fatalf("expected unknown type to be rejected")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to CorrelationStatus
		want     bool
	}{
		{StatusProposed, StatusValidated, true},
		{StatusProposed, StatusInvalidated, true},
		{StatusValidated, StatusInvalidated, true},
		{StatusInvalidated, StatusValidated, true},
		{StatusValidated, StatusProposed, false},
		{StatusInvalidated, StatusProposed, false},
		{StatusProposed, StatusProposed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s)=%v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTagSetNormalization(t *testing.T) {
	raw, err := EncodeTags([]string{"b", "a", "b", " ", "a"})
	if err != nil {
		t.Fatalf("EncodeTags: %v", err)
	}
	c := validCorrelation()
	c.Tags = raw
	got := c.TagSet()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("TagSet=%v, want [a b]", got)
	}
}

func TestValidationValidate(t *testing.T) {
	v := &Validation{
		ID:                uuid.New(),
		CorrelationID:     uuid.New(),
		StatisticalScore:  0.8,
		SemanticScore:     0.7,
		StructuralScore:   0.9,
		ConservationError: 0.02,
		TestAccuracy:      0.85,
		ValidityScore:     0.79,
		ConfidenceLower:   0.7,
		ConfidenceUpper:   0.88,
		ValidationMethod:  "composite",
	}
	if err := v.Validate(); err != nil {
		t.Fatalf("valid validation rejected: %v", err)
	}

	v.ConfidenceLower = 0.9
	if err := v.Validate(); err == nil {
		t.Fatalf("expected inverted confidence interval to be rejected")
	}

	v.ConfidenceLower = 0.7
	v.ConservationError = 1.5
	if err := v.Validate(); err == nil {
		t.Fatalf("expected out-of-range conservation error to be rejected")
	}
}
