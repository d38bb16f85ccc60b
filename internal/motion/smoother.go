package motion

import "github.com/teslashibe/go-handscore/internal/angles"

// Smooth applies one exponential-moving-average step.
// With no previous value the current sample is returned unchanged.
func Smooth(prev *angles.Vector, current angles.Vector, alpha float64) angles.Vector {
	if prev == nil {
		return current
	}
	return current.Scale(alpha).Add(prev.Scale(1 - alpha))
}

// Smoother keeps the EMA memory between samples
type Smoother struct {
	alpha float64
	prev  *angles.Vector
}

// NewSmoother creates a smoother. Higher alpha tracks new data faster.
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Update folds v into the running average and returns the smoothed value
func (s *Smoother) Update(v angles.Vector) angles.Vector {
	out := Smooth(s.prev, v, s.alpha)
	s.prev = &out
	return out
}

// Reset forgets the smoothing memory
func (s *Smoother) Reset() {
	s.prev = nil
}

// Primed reports whether a previous value is held
func (s *Smoother) Primed() bool {
	return s.prev != nil
}
