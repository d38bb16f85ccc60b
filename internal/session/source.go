// Package session runs the calibration, buffering and scoring state machine
// and drives it from an angle source.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-handscore/internal/angles"
)

// Observation is one tick of extractor output. Detected is false when the
// extractor saw no hand this frame.
type Observation struct {
	Angles    angles.Vector `json:"angles"`
	Detected  bool          `json:"detected"`
	Timestamp time.Time     `json:"timestamp"`
}

// Present reports whether the observation carries usable angles
func (o Observation) Present() bool {
	return o.Detected && o.Angles.Valid()
}

// Missing returns an empty observation stamped with ts
func Missing(ts time.Time) Observation {
	return Observation{Timestamp: ts}
}

// Detected returns an observation carrying v
func Detected(v angles.Vector, ts time.Time) Observation {
	return Observation{Angles: v, Detected: true, Timestamp: ts}
}

// Source provides joint angles from an external extractor
type Source interface {
	// Next returns the observation for the current tick. A source with no
	// new data returns a missing observation rather than blocking.
	Next(ctx context.Context) (Observation, error)

	// Close releases hardware resources
	Close() error

	// Healthy returns true if the source is operational
	Healthy() bool

	// Name returns the source type name
	Name() string
}

// Slot is a single-slot latest-observation handoff for push-style sources.
// Put overwrites any unread value; Take consumes it.
type Slot struct {
	mu    sync.Mutex
	obs   Observation
	fresh bool
}

// Put stores obs as the latest observation
func (s *Slot) Put(obs Observation) {
	s.mu.Lock()
	s.obs = obs
	s.fresh = true
	s.mu.Unlock()
}

// Take returns the latest unread observation
func (s *Slot) Take() (Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fresh {
		return Observation{}, false
	}
	s.fresh = false
	return s.obs, true
}
