package motion

import (
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-handscore/internal/angles"
)

// CalibrationState is the calibrator lifecycle
type CalibrationState int

const (
	Uncalibrated CalibrationState = iota
	Collecting
	Calibrated
)

func (s CalibrationState) String() string {
	switch s {
	case Uncalibrated:
		return "uncalibrated"
	case Collecting:
		return "collecting"
	case Calibrated:
		return "calibrated"
	default:
		return "unknown"
	}
}

// Calibrator collects the first frames of an episode and derives the
// baseline pose subtracted from every later reading.
type Calibrator struct {
	frames   int
	state    CalibrationState
	samples  []angles.Vector
	baseline angles.Vector
}

// NewCalibrator creates a calibrator needing frames samples (minimum 1)
func NewCalibrator(frames int) *Calibrator {
	if frames < 1 {
		frames = 1
	}
	return &Calibrator{
		frames:  frames,
		samples: make([]angles.Vector, 0, frames),
	}
}

// Add feeds one smoothed observation. It returns true on the call that
// completes calibration. Once calibrated further samples are ignored until Reset.
func (c *Calibrator) Add(v angles.Vector) bool {
	if c.state == Calibrated {
		return false
	}

	c.state = Collecting
	c.samples = append(c.samples, v)
	if len(c.samples) < c.frames {
		return false
	}

	c.baseline = meanOf(c.samples)
	c.state = Calibrated
	return true
}

// Baseline returns the baseline pose, present only when calibrated
func (c *Calibrator) Baseline() (angles.Vector, bool) {
	if c.state != Calibrated {
		return angles.Vector{}, false
	}
	return c.baseline, true
}

// State returns the current calibration state
func (c *Calibrator) State() CalibrationState {
	return c.state
}

// Progress returns collected and required sample counts
func (c *Calibrator) Progress() (collected, required int) {
	return len(c.samples), c.frames
}

// Reset returns to Uncalibrated and drops collected samples
func (c *Calibrator) Reset() {
	c.state = Uncalibrated
	c.samples = c.samples[:0]
	c.baseline = angles.Vector{}
}

// meanOf returns the elementwise arithmetic mean of vs
func meanOf(vs []angles.Vector) angles.Vector {
	var out angles.Vector
	column := make([]float64, len(vs))
	for k := 0; k < angles.Dims; k++ {
		for i, v := range vs {
			column[i] = v[k]
		}
		out[k] = stat.Mean(column, nil)
	}
	return out
}
