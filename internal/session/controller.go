package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/motion"
	"github.com/teslashibe/go-handscore/internal/reference"
	"github.com/teslashibe/go-handscore/internal/scoring"
)

// State is the controller lifecycle
type State int

const (
	Idle State = iota
	Calibrating
	Scoring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case Scoring:
		return "scoring"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "calibrating":
		*s = Calibrating
	case "scoring":
		*s = Scoring
	default:
		return fmt.Errorf("session: unknown state %q", b)
	}
	return nil
}

// Controller owns all live-side state of one session: smoothing memory,
// calibrator and sliding buffer. It is not safe for concurrent use; Runner
// serializes access.
type Controller struct {
	cfg    Config
	ref    *reference.Sequence
	scorer *scoring.Scorer

	state    State
	smoother *motion.Smoother
	calib    *motion.Calibrator
	buffer   *motion.SlidingBuffer

	frame     uint64 // shared tick counter, drives the reference index
	pending   int    // full-buffer samples to skip before the next score
	sessionID string
}

// New creates a controller. An empty reference is fatal.
func New(cfg Config, ref *reference.Sequence, scorer *scoring.Scorer) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ref == nil || ref.Len() == 0 {
		return nil, reference.ErrEmptyReference
	}
	if scorer == nil {
		return nil, errors.New("session: scorer is required")
	}

	return &Controller{
		cfg:      cfg,
		ref:      ref,
		scorer:   scorer,
		smoother: motion.NewSmoother(cfg.SmoothAlpha),
		calib:    motion.NewCalibrator(cfg.CalibFrames),
		buffer:   motion.NewSlidingBuffer(cfg.BufferLen),
	}, nil
}

// Start begins a new calibration episode from any state and returns its
// session ID.
func (c *Controller) Start() string {
	c.calib.Reset()
	c.buffer.Clear()
	c.smoother.Reset()
	c.pending = 0
	c.sessionID = uuid.NewString()
	c.state = Calibrating
	return c.sessionID
}

// Stop returns to Idle, dropping the baseline and buffer. The frame counter
// keeps running so the reference stays in step with the clock.
func (c *Controller) Stop() {
	c.state = Idle
	c.calib.Reset()
	c.buffer.Clear()
	c.pending = 0
}

// Reset is Stop plus rewinding the frame counter and smoothing memory
func (c *Controller) Reset() {
	c.Stop()
	c.smoother.Reset()
	c.frame = 0
	c.sessionID = ""
}

// Observe applies one tick. It returns a score when the tick produced one.
// Every call advances the frame counter, present observation or not, and a
// missing observation still scores once the window is full.
func (c *Controller) Observe(obs Observation) (scoring.Score, bool, error) {
	frame := c.frame
	c.frame++

	if !obs.Present() {
		return c.observeMissing(frame, obs.Timestamp)
	}
	smoothed := c.smoother.Update(obs.Angles)

	switch c.state {
	case Calibrating:
		if c.calib.Add(smoothed) {
			c.state = Scoring
			c.buffer.Clear()
			c.pending = 0
		}
		return scoring.Score{}, false, nil

	case Scoring:
		baseline, _ := c.calib.Baseline()
		adjusted := smoothed.Sub(baseline)
		c.buffer.Push(adjusted)
		if !c.buffer.IsFull() {
			return scoring.Score{}, false, nil
		}
		if !c.due() {
			return scoring.Score{}, false, nil
		}
		return c.score(frame, adjusted, obs.Timestamp)

	default:
		return scoring.Score{}, false, nil
	}
}

// observeMissing handles a tick without an observation. Once the window is
// full the held samples are scored again against this tick's reference
// window, with the newest sample standing in as the current pose.
func (c *Controller) observeMissing(frame uint64, ts time.Time) (scoring.Score, bool, error) {
	if c.state != Scoring || !c.buffer.IsFull() {
		return scoring.Score{}, false, nil
	}
	current, ok := c.buffer.Newest()
	if !ok || !c.due() {
		return scoring.Score{}, false, nil
	}
	return c.score(frame, current, ts)
}

// due applies score decimation and reports whether this tick scores
func (c *Controller) due() bool {
	if c.pending > 0 {
		c.pending--
		return false
	}
	c.pending = c.cfg.ScoreEvery - 1
	return true
}

func (c *Controller) score(frame uint64, current angles.Vector, ts time.Time) (scoring.Score, bool, error) {
	L := c.ref.Len()
	end := int(frame % uint64(L))

	window := c.ref.Window(end, c.cfg.windowLen())
	refCurrent := c.ref.At(end)
	if c.cfg.ReferenceLocalBaseline {
		local := window[0]
		for i := range window {
			window[i] = window[i].Sub(local)
		}
		refCurrent = refCurrent.Sub(local)
	}

	s, err := c.scorer.Score(scoring.Input{
		Live:             c.buffer.Snapshot(),
		Reference:        window,
		Current:          current,
		ReferenceCurrent: refCurrent,
	})
	if err != nil {
		return scoring.Score{}, false, fmt.Errorf("session: score frame %d: %w", frame, err)
	}

	if ts.IsZero() {
		ts = time.Now()
	}
	s.Timestamp = ts
	s.SessionID = c.sessionID
	s.FrameIndex = frame
	s.ReferenceIndex = end
	return s, true, nil
}

// State returns the current state
func (c *Controller) State() State {
	return c.state
}

// Baseline returns the calibrated baseline, if any
func (c *Controller) Baseline() (angles.Vector, bool) {
	return c.calib.Baseline()
}

// FrameIndex returns the number of ticks since construction or the last Reset
func (c *Controller) FrameIndex() uint64 {
	return c.frame
}

// SessionID returns the ID of the current episode, empty when none started
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Snapshot describes controller state for status endpoints
type Snapshot struct {
	State           State          `json:"state"`
	SessionID       string         `json:"session_id,omitempty"`
	FrameIndex      uint64         `json:"frame_index"`
	ReferenceLen    int            `json:"reference_len"`
	ReferenceIndex  int            `json:"reference_index"`
	CalibCollected  int            `json:"calib_collected"`
	CalibRequired   int            `json:"calib_required"`
	BufferLen       int            `json:"buffer_len"`
	BufferCap       int            `json:"buffer_cap"`
	Baseline        *angles.Vector `json:"baseline,omitempty"`
	ScoringInterval int            `json:"score_every"`
}

// Snapshot returns a copy of the controller state
func (c *Controller) Snapshot() Snapshot {
	collected, required := c.calib.Progress()
	snap := Snapshot{
		State:           c.state,
		SessionID:       c.sessionID,
		FrameIndex:      c.frame,
		ReferenceLen:    c.ref.Len(),
		ReferenceIndex:  int(c.frame % uint64(c.ref.Len())),
		CalibCollected:  collected,
		CalibRequired:   required,
		BufferLen:       c.buffer.Len(),
		BufferCap:       c.buffer.Cap(),
		ScoringInterval: c.cfg.ScoreEvery,
	}
	if b, ok := c.calib.Baseline(); ok {
		snap.Baseline = &b
	}
	return snap
}
