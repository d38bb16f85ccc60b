// Package report turns a score history into accuracy-vs-time charts
package report

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-handscore/internal/scoring"
)

// ErrNoScores is returned when there is nothing to chart
var ErrNoScores = errors.New("report: no scores")

// Series is a score history split into plottable columns. T is seconds
// since the first score.
type Series struct {
	Start         time.Time
	T             []float64
	Combined      []float64
	Sequence      []float64
	Instantaneous []float64
}

// NewSeries extracts columns from scores in the order given
func NewSeries(scores []scoring.Score) Series {
	s := Series{
		T:             make([]float64, len(scores)),
		Combined:      make([]float64, len(scores)),
		Sequence:      make([]float64, len(scores)),
		Instantaneous: make([]float64, len(scores)),
	}
	if len(scores) == 0 {
		return s
	}
	s.Start = scores[0].Timestamp
	for i, sc := range scores {
		s.T[i] = sc.Timestamp.Sub(s.Start).Seconds()
		s.Combined[i] = sc.Combined
		s.Sequence[i] = sc.Sequence
		s.Instantaneous[i] = sc.Instantaneous
	}
	return s
}

// Len returns the number of points
func (s Series) Len() int {
	return len(s.T)
}

// Summary describes the combined score over a session
type Summary struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Duration float64 `json:"duration_seconds"`
}

// Summarize computes summary statistics of the combined score
func Summarize(scores []scoring.Score) Summary {
	s := NewSeries(scores)
	if s.Len() == 0 {
		return Summary{}
	}
	mean, std := stat.MeanStdDev(s.Combined, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Summary{
		Count:    s.Len(),
		Mean:     mean,
		StdDev:   std,
		Min:      floats.Min(s.Combined),
		Max:      floats.Max(s.Combined),
		Duration: s.T[s.Len()-1],
	}
}
