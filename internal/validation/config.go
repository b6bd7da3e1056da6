// Package validation scores proposed correlations against registry evidence
// and settles their status. A run blends four components into one validity
// score: statistical significance, semantic alignment, structural similarity,
// and conservation of aggregate mass across the mapping.
package validation

import (
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/datalinker/correlation-backend/internal/pkg/envutil"
	"github.com/datalinker/correlation-backend/internal/platform/logger"
)

type Config struct {
	// Threshold is the validity score at or above which a correlation is
	// marked validated.
	Threshold float64

	WeightStatistical  float64
	WeightSemantic     float64
	WeightStructural   float64
	WeightConservation float64

	// Permutations is the resample count for the significance test.
	Permutations int
	// BootstrapSamples sizes the confidence-interval resampling.
	BootstrapSamples int
	// HoldoutFraction of the evidence is withheld for test accuracy.
	HoldoutFraction float64
	// SemanticThreshold gates which field alignments count toward the
	// semantic component.
	SemanticThreshold float64

	// ValidationsPerSecond and Burst bound pipeline intake. Zero disables
	// the limiter.
	ValidationsPerSecond float64
	Burst                int
	// FDRAlpha is the false-discovery-rate level for batch validation.
	FDRAlpha float64
}

func DefaultConfig() Config {
	return Config{
		Threshold:            0.70,
		WeightStatistical:    0.30,
		WeightSemantic:       0.25,
		WeightStructural:     0.25,
		WeightConservation:   0.20,
		Permutations:         200,
		BootstrapSamples:     200,
		HoldoutFraction:      0.2,
		SemanticThreshold:    0.5,
		ValidationsPerSecond: 50,
		Burst:                100,
		FDRAlpha:             0.05,
	}
}

// ConfigFromEnv is DefaultConfig overridden by environment variables.
func ConfigFromEnv(log *logger.Logger) Config {
	cfg := DefaultConfig()
	cfg.Threshold = envutil.GetEnvAsFloat("VALIDATION_THRESHOLD", cfg.Threshold, log)
	cfg.Permutations = envutil.GetEnvAsInt("VALIDATION_PERMUTATIONS", cfg.Permutations, log)
	cfg.BootstrapSamples = envutil.GetEnvAsInt("VALIDATION_BOOTSTRAP_SAMPLES", cfg.BootstrapSamples, log)
	cfg.HoldoutFraction = envutil.GetEnvAsFloat("VALIDATION_HOLDOUT_FRACTION", cfg.HoldoutFraction, log)
	cfg.ValidationsPerSecond = envutil.GetEnvAsFloat("VALIDATION_RATE_PER_SECOND", cfg.ValidationsPerSecond, log)
	cfg.Burst = envutil.GetEnvAsInt("VALIDATION_RATE_BURST", cfg.Burst, log)
	cfg.FDRAlpha = envutil.GetEnvAsFloat("VALIDATION_FDR_ALPHA", cfg.FDRAlpha, log)
	return cfg
}

func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", c.Threshold)
	}
	sum := c.WeightStatistical + c.WeightSemantic + c.WeightStructural + c.WeightConservation
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("component weights must sum to 1, got %v", sum)
	}
	for _, w := range []float64{c.WeightStatistical, c.WeightSemantic, c.WeightStructural, c.WeightConservation} {
		if w < 0 {
			return fmt.Errorf("component weights must be non-negative")
		}
	}
	if c.Permutations < 1 {
		return fmt.Errorf("permutations must be positive, got %d", c.Permutations)
	}
	if c.BootstrapSamples < 1 {
		return fmt.Errorf("bootstrap samples must be positive, got %d", c.BootstrapSamples)
	}
	if c.HoldoutFraction < 0 || c.HoldoutFraction >= 1 {
		return fmt.Errorf("holdout fraction must be in [0,1), got %v", c.HoldoutFraction)
	}
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		return fmt.Errorf("semantic threshold must be in [0,1], got %v", c.SemanticThreshold)
	}
	if c.FDRAlpha <= 0 || c.FDRAlpha >= 1 {
		return fmt.Errorf("fdr alpha must be in (0,1), got %v", c.FDRAlpha)
	}
	return nil
}

func (c Config) limiter() *rate.Limiter {
	if c.ValidationsPerSecond <= 0 {
		return nil
	}
	burst := c.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.ValidationsPerSecond), burst)
}

// validity is the weighted blend that settles a correlation's status.
func (c Config) validity(statistical, semantic, structural, conservationError float64) float64 {
	v := c.WeightStatistical*statistical +
		c.WeightSemantic*semantic +
		c.WeightStructural*structural +
		c.WeightConservation*(1-conservationError)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
