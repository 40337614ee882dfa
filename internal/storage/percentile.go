package storage

import "sort"

// percentile returns the p-th percentile (0..1) of values using linear
// interpolation between closest ranks, matching PostgreSQL's percentile_cont.
// The input slice is sorted in place.
func percentile(values []int64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	if len(values) == 1 {
		return float64(values[0])
	}

	rank := p * float64(len(values)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(values) {
		return float64(values[len(values)-1])
	}
	frac := rank - float64(lower)
	return float64(values[lower]) + frac*float64(values[upper]-values[lower])
}
