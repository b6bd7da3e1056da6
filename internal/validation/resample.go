package validation

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// permutationPValue tests the observed series correlation against the null
// built by shuffling one side. The +1 smoothing keeps the p-value away from
// an impossible zero.
func permutationPValue(xs, ys []float64, observed float64, permutations int, seed int64) float64 {
	if len(xs) < minSeriesOverlap {
		return 1
	}
	rng := rand.New(rand.NewSource(seed))
	obs := math.Abs(observed)

	shuffled := make([]float64, len(ys))
	copy(shuffled, ys)

	extreme := 0
	for i := 0; i < permutations; i++ {
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		r := stat.Correlation(xs[:len(shuffled)], shuffled, nil)
		if math.IsNaN(r) {
			continue
		}
		if math.Abs(r) >= obs {
			extreme++
		}
	}
	return float64(1+extreme) / float64(1+permutations)
}

// monteCarloPValue tests an observed key-overlap fraction against the null
// where each sampled key hits the other side independently with hitProb.
func monteCarloPValue(observed, hitProb float64, sampleSize, trials int, seed int64) float64 {
	if sampleSize == 0 {
		return 1
	}
	rng := rand.New(rand.NewSource(seed))

	extreme := 0
	for i := 0; i < trials; i++ {
		hits := 0
		for j := 0; j < sampleSize; j++ {
			if rng.Float64() < hitProb {
				hits++
			}
		}
		if float64(hits)/float64(sampleSize) >= observed {
			extreme++
		}
	}
	return float64(1+extreme) / float64(1+trials)
}

// bootstrapCI is the percentile confidence interval of the mean of values,
// from samples resampled with replacement.
func bootstrapCI(values []float64, samples int, seed int64, level float64) (lower, upper float64) {
	if len(values) == 0 {
		return 0, 1
	}
	rng := rand.New(rand.NewSource(seed))

	means := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		sum := 0.0
		for j := 0; j < len(values); j++ {
			sum += values[rng.Intn(len(values))]
		}
		means = append(means, sum/float64(len(values)))
	}
	sort.Float64s(means)

	tail := (1 - level) / 2
	lower = stat.Quantile(tail, stat.Empirical, means, nil)
	upper = stat.Quantile(1-tail, stat.Empirical, means, nil)
	return lower, upper
}
