package validation

import "sort"

// benjaminiHochberg returns the step-up adjusted p-values, in the input
// order. Adjusted values are monotone over the sorted raw values and capped
// at 1.
func benjaminiHochberg(pvalues []float64) []float64 {
	n := len(pvalues)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return pvalues[order[a]] < pvalues[order[b]] })

	adjusted := make([]float64, n)
	running := 1.0
	for rank := n; rank >= 1; rank-- {
		i := order[rank-1]
		adj := pvalues[i] * float64(n) / float64(rank)
		if adj < running {
			running = adj
		}
		adjusted[i] = running
	}
	return adjusted
}
