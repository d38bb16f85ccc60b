package dtw

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/teslashibe/go-handscore/internal/angles"
)

var (
	// ErrEmptySequence indicates one or both inputs are empty
	ErrEmptySequence = errors.New("dtw: input sequences must be non-empty")

	// ErrDimensionMismatch indicates frames of differing width
	ErrDimensionMismatch = errors.New("dtw: frames must share one dimension")

	// ErrPathNeedsFullMatrix indicates Align was asked to run on two rows
	ErrPathNeedsFullMatrix = errors.New("dtw: path recovery requires MemoryMode=FullMatrix")
)

// MemoryMode selects how much of the cost table is kept
type MemoryMode int

const (
	// TwoRows keeps the previous and current row only
	TwoRows MemoryMode = iota

	// FullMatrix keeps every row and allows path recovery
	FullMatrix
)

// Options configures a DTW run. A nil *Options means no band and TwoRows.
type Options struct {
	// Window is the Sakoe-Chiba band half-width; 0 or less disables the band
	Window     int
	MemoryMode MemoryMode
}

// Coord is one step of a warping path, indexing a and b respectively
type Coord struct {
	I, J int
}

// Distance returns the DTW distance between a and b.
// Every frame of both sequences must have the same width.
func Distance(a, b [][]float64, opts *Options) (float64, error) {
	if err := validate(a, b); err != nil {
		return 0, err
	}

	window := band(opts)
	if opts != nil && opts.MemoryMode == FullMatrix {
		table := fill(a, b, window)
		return table[len(a)][len(b)], nil
	}

	n, m := len(a), len(b)
	inf := math.Inf(1)
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := 1; j <= m; j++ {
		prev[j] = inf
	}

	for i := 1; i <= n; i++ {
		curr[0] = inf
		for j := 1; j <= m; j++ {
			if outside(i, j, window) {
				curr[j] = inf
				continue
			}
			curr[j] = floats.Distance(a[i-1], b[j-1], 2) + min3(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[m], nil
}

// Align returns the DTW distance together with the optimal warping path,
// ordered from (0,0) to (len(a)-1, len(b)-1).
func Align(a, b [][]float64, opts *Options) (float64, []Coord, error) {
	if opts != nil && opts.MemoryMode != FullMatrix {
		return 0, nil, ErrPathNeedsFullMatrix
	}
	if err := validate(a, b); err != nil {
		return 0, nil, err
	}

	table := fill(a, b, band(opts))
	n, m := len(a), len(b)
	dist := table[n][m]
	if math.IsInf(dist, 1) {
		// band too narrow to connect the corners
		return dist, nil, nil
	}

	path := make([]Coord, 0, n+m)
	i, j := n, m
	for i > 0 && j > 0 {
		path = append(path, Coord{I: i - 1, J: j - 1})
		diag, up, left := table[i-1][j-1], table[i-1][j], table[i][j-1]
		switch {
		case diag <= up && diag <= left:
			i--
			j--
		case up <= left:
			i--
		default:
			j--
		}
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return dist, path, nil
}

// fill builds the full (n+1)x(m+1) cost table
func fill(a, b [][]float64, window int) [][]float64 {
	n, m := len(a), len(b)
	inf := math.Inf(1)

	table := make([][]float64, n+1)
	for i := range table {
		table[i] = make([]float64, m+1)
	}
	for i := 1; i <= n; i++ {
		table[i][0] = inf
	}
	for j := 1; j <= m; j++ {
		table[0][j] = inf
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if outside(i, j, window) {
				table[i][j] = inf
				continue
			}
			table[i][j] = floats.Distance(a[i-1], b[j-1], 2) +
				min3(table[i-1][j], table[i][j-1], table[i-1][j-1])
		}
	}
	return table
}

func validate(a, b [][]float64) error {
	if len(a) == 0 || len(b) == 0 {
		return ErrEmptySequence
	}
	dim := len(a[0])
	for _, seq := range [][][]float64{a, b} {
		for idx, frame := range seq {
			if len(frame) != dim {
				return fmt.Errorf("%w: frame %d has %d values, want %d", ErrDimensionMismatch, idx, len(frame), dim)
			}
		}
	}
	return nil
}

func band(opts *Options) int {
	if opts == nil || opts.Window <= 0 {
		return 0
	}
	return opts.Window
}

func outside(i, j, window int) bool {
	if window == 0 {
		return false
	}
	d := i - j
	if d < 0 {
		d = -d
	}
	return d > window
}

// min3 returns the minimum of three float64 values
func min3(a, b, c float64) float64 {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

// Series converts angle vectors into DTW frames
func Series(seq []angles.Vector) [][]float64 {
	out := make([][]float64, len(seq))
	for i, v := range seq {
		out[i] = v.Slice()
	}
	return out
}

// Projection extracts joint k of every vector as one-wide frames
func Projection(seq []angles.Vector, k angles.Joint) [][]float64 {
	out := make([][]float64, len(seq))
	for i, v := range seq {
		out[i] = []float64{v[k]}
	}
	return out
}
