package scoring

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned for scorer settings that cannot produce bounded scores
var ErrInvalidConfig = errors.New("scoring: invalid configuration")

// Config holds the scorer thresholds
type Config struct {
	ToleranceDeg     float64
	HardFailDeg      float64
	SequenceWeight   float64
	Policy           Policy
	JointDiagnostics bool
}

// DefaultConfig returns 15 degree tolerance, 60 degree hard fail and a 0.7 sequence weight
func DefaultConfig() Config {
	return Config{
		ToleranceDeg:     15,
		HardFailDeg:      60,
		SequenceWeight:   0.7,
		Policy:           HardFail,
		JointDiagnostics: true,
	}
}

// Validate rejects configurations whose denominators could reach zero
func (c Config) Validate() error {
	if c.ToleranceDeg < 0 {
		return fmt.Errorf("%w: tolerance_deg must be >= 0, got %v", ErrInvalidConfig, c.ToleranceDeg)
	}
	if c.HardFailDeg <= c.ToleranceDeg {
		return fmt.Errorf("%w: hard_fail_deg (%v) must be greater than tolerance_deg (%v)",
			ErrInvalidConfig, c.HardFailDeg, c.ToleranceDeg)
	}
	if c.SequenceWeight < 0 || c.SequenceWeight > 1 {
		return fmt.Errorf("%w: w_seq must be in [0,1], got %v", ErrInvalidConfig, c.SequenceWeight)
	}
	if c.Policy != HardFail && c.Policy != SoftPenalty {
		return fmt.Errorf("%w: unknown tolerance policy %d", ErrInvalidConfig, int(c.Policy))
	}
	return nil
}
