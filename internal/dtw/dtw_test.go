package dtw_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/dtw"
)

func scalar(xs ...float64) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[i] = []float64{x}
	}
	return out
}

func TestDistance_EmptyInput(t *testing.T) {
	_, err := dtw.Distance(nil, scalar(1, 2), nil)
	assert.ErrorIs(t, err, dtw.ErrEmptySequence)

	_, err = dtw.Distance(scalar(1), [][]float64{}, nil)
	assert.ErrorIs(t, err, dtw.ErrEmptySequence)
}

func TestDistance_DimensionMismatch(t *testing.T) {
	_, err := dtw.Distance([][]float64{{1, 2}}, [][]float64{{1}}, nil)
	assert.ErrorIs(t, err, dtw.ErrDimensionMismatch)
}

func TestDistance_Identity(t *testing.T) {
	a := [][]float64{{0, 10}, {5, 20}, {9, 1}}
	for _, mode := range []dtw.MemoryMode{dtw.TwoRows, dtw.FullMatrix} {
		d, err := dtw.Distance(a, a, &dtw.Options{MemoryMode: mode})
		require.NoError(t, err)
		assert.Equal(t, 0.0, d)
	}
}

func TestDistance_Euclidean(t *testing.T) {
	d, err := dtw.Distance([][]float64{{0, 0}}, [][]float64{{3, 4}}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-12)
}

func TestDistance_SymmetricAndNonNegative(t *testing.T) {
	a := scalar(1, 3, 4, 9, 8)
	b := scalar(1, 2, 5, 7, 8, 8)

	ab, err := dtw.Distance(a, b, nil)
	require.NoError(t, err)
	ba, err := dtw.Distance(b, a, nil)
	require.NoError(t, err)

	assert.InDelta(t, ab, ba, 1e-12)
	assert.GreaterOrEqual(t, ab, 0.0)
}

func TestDistance_ModesAgree(t *testing.T) {
	a := scalar(0, 2, 4, 6, 3, 1)
	b := scalar(0, 1, 4, 5, 6, 2, 1, 0)

	rows, err := dtw.Distance(a, b, &dtw.Options{MemoryMode: dtw.TwoRows})
	require.NoError(t, err)
	full, err := dtw.Distance(a, b, &dtw.Options{MemoryMode: dtw.FullMatrix})
	require.NoError(t, err)
	assert.InDelta(t, full, rows, 1e-12)
}

func TestDistance_WindowTooNarrow(t *testing.T) {
	d, err := dtw.Distance(scalar(1, 2, 3), scalar(1, 2, 3, 4, 5), &dtw.Options{Window: 1})
	require.NoError(t, err)
	assert.True(t, math.IsInf(d, 1))
}

func TestAlign_Path(t *testing.T) {
	d, path, err := dtw.Align(scalar(1, 2, 3), scalar(1, 2, 2, 3), &dtw.Options{MemoryMode: dtw.FullMatrix})
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
	require.Len(t, path, 4)
	assert.Equal(t, dtw.Coord{I: 0, J: 0}, path[0])
	assert.Equal(t, dtw.Coord{I: 2, J: 3}, path[len(path)-1])

	// monotone, unit steps
	for i := 1; i < len(path); i++ {
		di := path[i].I - path[i-1].I
		dj := path[i].J - path[i-1].J
		assert.True(t, di >= 0 && di <= 1 && dj >= 0 && dj <= 1 && di+dj > 0)
	}
}

func TestAlign_NeedsFullMatrix(t *testing.T) {
	_, _, err := dtw.Align(scalar(1), scalar(1), &dtw.Options{MemoryMode: dtw.TwoRows})
	assert.ErrorIs(t, err, dtw.ErrPathNeedsFullMatrix)
}

func TestSeriesAndProjection(t *testing.T) {
	seq := []angles.Vector{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}}

	assert.Equal(t, [][]float64{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}}, dtw.Series(seq))
	assert.Equal(t, [][]float64{{3}, {8}}, dtw.Projection(seq, angles.Middle))
}
