// Package motion holds the per-sample signal stages that sit between the
// angle extractor and the scorer: resampling, smoothing, calibration and
// the sliding window.
package motion

import (
	"fmt"

	"gonum.org/v1/gonum/interp"

	"github.com/teslashibe/go-handscore/internal/angles"
)

// Resample linearly interpolates seq onto exactly n samples.
//
// Samples are placed at i/(N-1) and read back at j/(n-1), so the first and
// last samples survive unchanged. An empty input yields n zero vectors and an
// input that already has n samples is copied as is.
func Resample(seq []angles.Vector, n int) []angles.Vector {
	if n <= 0 {
		return []angles.Vector{}
	}

	out := make([]angles.Vector, n)
	if len(seq) == 0 {
		return out
	}
	if len(seq) == n {
		copy(out, seq)
		return out
	}

	column := make([]float64, len(seq))
	for k := 0; k < angles.Dims; k++ {
		for i, v := range seq {
			column[i] = v[k]
		}
		for j, x := range ResampleSeries(column, n) {
			out[j][k] = x
		}
	}
	return out
}

// ResampleSeries is the single-dimension form of Resample
func ResampleSeries(series []float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}

	out := make([]float64, n)
	switch {
	case len(series) == 0:
		return out
	case len(series) == n:
		copy(out, series)
		return out
	case len(series) == 1:
		for j := range out {
			out[j] = series[0]
		}
		return out
	case n == 1:
		out[0] = series[0]
		return out
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(unitPositions(len(series)), series); err != nil {
		// knots are strictly increasing and at least two, so Fit only fails on a bug
		panic(fmt.Sprintf("motion: piecewise fit: %v", err))
	}

	last := float64(n - 1)
	for j := range out {
		out[j] = pl.Predict(float64(j) / last)
	}
	// pin the tail so rounding in j/(n-1) can never drift off the last knot
	out[n-1] = series[len(series)-1]
	return out
}

// unitPositions returns n evenly spaced positions covering [0, 1]
func unitPositions(n int) []float64 {
	xs := make([]float64, n)
	last := float64(n - 1)
	for i := range xs {
		xs[i] = float64(i) / last
	}
	return xs
}
