// Package scoring turns DTW distance and per-joint deviation into bounded
// percentage scores.
package scoring

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/dtw"
	"github.com/teslashibe/go-handscore/internal/motion"
)

// Input is one evaluation request. Live and Reference must be non-empty;
// Live is resampled to len(Reference) when the lengths differ.
type Input struct {
	Live             []angles.Vector
	Reference        []angles.Vector
	Current          angles.Vector
	ReferenceCurrent angles.Vector
}

// Scorer evaluates inputs under one configuration. It is stateless and safe
// for concurrent use.
type Scorer struct {
	cfg Config
}

// New validates cfg and returns a scorer
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Config returns the scorer configuration
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score evaluates in. Timestamp and identity fields are left for the caller.
func (s *Scorer) Score(in Input) (Score, error) {
	var out Score
	if len(in.Live) == 0 || len(in.Reference) == 0 {
		return out, fmt.Errorf("scoring: %w", dtw.ErrEmptySequence)
	}

	L := len(in.Reference)
	live := in.Live
	if len(live) != L {
		live = motion.Resample(live, L)
	}

	dist, err := dtw.Distance(dtw.Series(live), dtw.Series(in.Reference), nil)
	if err != nil {
		return out, fmt.Errorf("scoring: sequence distance: %w", err)
	}
	out.RawDistance = dist
	out.Sequence = SequenceSimilarity(dist, L, angles.Dims)

	out.PerJoint, out.Instantaneous = s.instantaneous(in.Current, in.ReferenceCurrent)

	if s.cfg.JointDiagnostics {
		for k := angles.Thumb; k <= angles.Pinky; k++ {
			d, err := dtw.Distance(dtw.Projection(live, k), dtw.Projection(in.Reference, k), nil)
			if err != nil {
				return out, fmt.Errorf("scoring: %s distance: %w", k, err)
			}
			out.JointSequence[k] = SequenceSimilarity(d, L, 1)
		}
	}

	w := s.cfg.SequenceWeight
	out.Combined = clip(w*out.Sequence+(1-w)*out.Instantaneous, 0, 100)
	return out, nil
}

// instantaneous returns the policy-adjusted per-joint scores and their mean
func (s *Scorer) instantaneous(current, ref angles.Vector) ([angles.Dims]float64, float64) {
	diff := current.AbsDiff(ref)

	var perJoint [angles.Dims]float64
	for k, d := range diff {
		perJoint[k] = JointScore(d, s.cfg.ToleranceDeg, s.cfg.HardFailDeg)
	}
	perJoint = s.cfg.Policy.apply(perJoint, diff, s.cfg.HardFailDeg)

	return perJoint, clip(angles.Vector(perJoint).Mean(), 0, 100)
}

// SequenceSimilarity maps a DTW distance over length frames of dims joints
// onto [0,100] against the worst case length*dims*180.
func SequenceSimilarity(distance float64, length, dims int) float64 {
	maxPossible := float64(length) * float64(dims) * angles.MaxAngle
	if maxPossible <= 0 || math.IsNaN(distance) || math.IsInf(distance, 1) {
		return 0
	}
	return clip(100*(1-distance/maxPossible), 0, 100)
}

// JointScore is 100 inside the tolerance band falling linearly to 0 at hardFail
func JointScore(diff, tolerance, hardFail float64) float64 {
	span := hardFail - tolerance
	if span <= 0 {
		if diff <= tolerance {
			return 100
		}
		return 0
	}
	return 100 * clip(1-math.Max(0, diff-tolerance)/span, 0, 1)
}

func clip(v, lo, hi float64) float64 {
	return angles.Clamp(v, lo, hi)
}
