package volatility

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Finite returns the finite values of xs in order.
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, v := range xs {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

// LastValid returns the last finite value of a series.
func LastValid(xs []float64) (float64, bool) {
	for i := len(xs) - 1; i >= 0; i-- {
		if isFinite(xs[i]) {
			return xs[i], true
		}
	}
	return math.NaN(), false
}

// Mean averages the finite values of xs; NaN when there are none.
func Mean(xs []float64) float64 {
	valid := Finite(xs)
	if len(valid) == 0 {
		return math.NaN()
	}
	return stat.Mean(valid, nil)
}

// RollingMean returns the trailing mean over window positions ending at each
// index. Positions whose span holds fewer than minPeriods finite values are
// NaN. Non-finite inputs are skipped, not counted as zero.
func RollingMean(xs []float64, window, minPeriods int) []float64 {
	out := nanSeries(len(xs))
	if window < 1 {
		return out
	}
	if minPeriods < 1 {
		minPeriods = 1
	}

	// each span is summed afresh; a running sum drifts below zero on long
	// flat stretches and the square root of that is NaN
	for i := range xs {
		var sum float64
		count := 0
		for j := max(0, i-window+1); j <= i; j++ {
			if isFinite(xs[j]) {
				sum += xs[j]
				count++
			}
		}
		if count >= minPeriods {
			out[i] = sum / float64(count)
		}
	}
	return out
}
