package ranker

import "sort"

// NormalizeRanks maps values to [0,1] by fractional rank: each value gets the
// average zero-based position of all values equal to it in ascending order,
// divided by n-1. A single value maps to 1. The result is index-aligned with
// values.
func NormalizeRanks(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	switch n {
	case 0:
		return out
	case 1:
		out[0] = 1
		return out
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})

	denom := float64(n - 1)
	for start := 0; start < n; {
		end := start
		for end+1 < n && values[order[end+1]] == values[order[start]] {
			end++
		}
		// Positions start..end share one value.
		mid := float64(start+end) / 2
		for k := start; k <= end; k++ {
			out[order[k]] = mid / denom
		}
		start = end + 1
	}
	return out
}
