package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned for session settings outside their bounds
var ErrInvalidConfig = errors.New("session: invalid configuration")

// Config configures one controller
type Config struct {
	BufferLen   int     // live window capacity W
	CalibFrames int     // samples averaged into the baseline
	SmoothAlpha float64 // EMA weight of the newest sample
	WindowLen   int     // reference window length; 0 uses BufferLen
	ScoreEvery  int     // score every Nth full-buffer sample

	// ReferenceLocalBaseline subtracts the first frame of each reference
	// window from the window and from the reference current frame.
	ReferenceLocalBaseline bool
}

// DefaultConfig returns a 60 sample window, 12 calibration frames and alpha 0.6
func DefaultConfig() Config {
	return Config{
		BufferLen:   60,
		CalibFrames: 12,
		SmoothAlpha: 0.6,
		ScoreEvery:  1,
	}
}

// Validate checks every bound
func (c Config) Validate() error {
	if c.BufferLen < 1 {
		return fmt.Errorf("%w: buffer_len must be >= 1, got %d", ErrInvalidConfig, c.BufferLen)
	}
	if c.CalibFrames < 1 {
		return fmt.Errorf("%w: calib_frames must be >= 1, got %d", ErrInvalidConfig, c.CalibFrames)
	}
	if c.SmoothAlpha <= 0 || c.SmoothAlpha > 1 {
		return fmt.Errorf("%w: smooth_alpha must be in (0,1], got %v", ErrInvalidConfig, c.SmoothAlpha)
	}
	if c.WindowLen < 0 {
		return fmt.Errorf("%w: window_len must be >= 0, got %d", ErrInvalidConfig, c.WindowLen)
	}
	if c.ScoreEvery < 1 {
		return fmt.Errorf("%w: score_every must be >= 1, got %d", ErrInvalidConfig, c.ScoreEvery)
	}
	return nil
}

func (c Config) windowLen() int {
	if c.WindowLen > 0 {
		return c.WindowLen
	}
	return c.BufferLen
}

// RunnerConfig configures the acquisition and scoring loop
type RunnerConfig struct {
	PollInterval time.Duration
	HistorySize  int
	QueueSize    int
}

// DefaultRunnerConfig polls at 30Hz and keeps the last 300 scores
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval: time.Second / 30,
		HistorySize:  300,
		QueueSize:    8,
	}
}
