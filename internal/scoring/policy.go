package scoring

import (
	"fmt"
	"strings"
)

// Policy selects how per-joint deviations beyond the hard-fail threshold are treated
type Policy int

const (
	// HardFail zeroes the instantaneous score when any joint exceeds the threshold
	HardFail Policy = iota
	// SoftPenalty scales the scores down continuously past the threshold
	SoftPenalty
)

func (p Policy) String() string {
	switch p {
	case HardFail:
		return "hard-fail"
	case SoftPenalty:
		return "soft-penalty"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "hard-fail" or "soft-penalty" (underscores allowed)
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "hard-fail", "hardfail":
		return HardFail, nil
	case "soft-penalty", "softpenalty":
		return SoftPenalty, nil
	default:
		return 0, fmt.Errorf("%w: unknown tolerance policy %q", ErrInvalidConfig, s)
	}
}

// apply turns raw per-joint scores into policy-adjusted ones.
// diff holds the absolute per-joint deviations the scores came from.
func (p Policy) apply(perJoint, diff [5]float64, hardFail float64) [5]float64 {
	switch p {
	case SoftPenalty:
		worst := 0.0
		for _, d := range diff {
			over := clip((d-hardFail)/hardFail, 0, 1)
			if over > worst {
				worst = over
			}
		}
		factor := 1 - worst
		for k := range perJoint {
			perJoint[k] *= factor
		}
		return perJoint
	default:
		for _, d := range diff {
			if d > hardFail {
				return [5]float64{}
			}
		}
		return perJoint
	}
}
