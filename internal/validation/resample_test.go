package validation

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestPermutationPValueSeparatesSignalFromNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	xs := make([]float64, 40)
	ys := make([]float64, 40)
	noise := make([]float64, 40)
	for i := range xs {
		xs[i] = float64(i) + rng.NormFloat64()
		ys[i] = 2*xs[i] + rng.NormFloat64()
		noise[i] = rng.NormFloat64()
	}

	signalP := permutationPValue(xs, ys, stat.Correlation(xs, ys, nil), 200, 42)
	noiseP := permutationPValue(xs, noise, stat.Correlation(xs, noise, nil), 200, 42)

	if signalP > 0.05 {
		t.Fatalf("strong linear signal should be significant, p=%v", signalP)
	}
	if noiseP < 0.05 {
		t.Fatalf("independent noise should not be significant, p=%v", noiseP)
	}
}

func TestPermutationPValueDeterministic(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	ys := []float64{2, 4, 5, 9, 10, 11, 15, 16}
	obs := stat.Correlation(xs, ys, nil)

	a := permutationPValue(xs, ys, obs, 200, 99)
	b := permutationPValue(xs, ys, obs, 200, 99)
	if a != b {
		t.Fatalf("same seed must reproduce the same p-value: %v vs %v", a, b)
	}
}

func TestMonteCarloPValuePerfectOverlap(t *testing.T) {
	p := monteCarloPValue(1.0, 0.5, 50, 200, 11)
	if math.Abs(p-1.0/201) > 1e-12 {
		t.Fatalf("perfect overlap against a coin-flip null should hit the floor, got %v", p)
	}

	weak := monteCarloPValue(0.1, 0.5, 50, 200, 11)
	if weak < 0.5 {
		t.Fatalf("below-chance overlap should not be significant, got %v", weak)
	}
}

func TestBootstrapCIBoundsAndOrder(t *testing.T) {
	values := []float64{1, 1, 1, 0, 1, 1, 0, 1, 1, 1}
	lo, hi := bootstrapCI(values, 200, 3, 0.95)

	if lo > hi {
		t.Fatalf("interval inverted: [%v, %v]", lo, hi)
	}
	if lo < 0 || hi > 1 {
		t.Fatalf("bootstrap means of indicators must stay in [0,1], got [%v, %v]", lo, hi)
	}

	mean := 0.8
	if mean < lo || mean > hi {
		t.Fatalf("observed mean %v should fall inside [%v, %v]", mean, lo, hi)
	}
}

func TestBootstrapCIEmpty(t *testing.T) {
	lo, hi := bootstrapCI(nil, 200, 1, 0.95)
	if lo != 0 || hi != 1 {
		t.Fatalf("no evidence should yield the vacuous interval, got [%v, %v]", lo, hi)
	}
}
