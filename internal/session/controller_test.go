package session

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/reference"
	"github.com/teslashibe/go-handscore/internal/scoring"
)

func newController(t *testing.T, cfg Config, ref []angles.Vector) *Controller {
	t.Helper()
	seq, err := reference.NewSequence(ref)
	require.NoError(t, err)
	scorer, err := scoring.New(scoring.DefaultConfig())
	require.NoError(t, err)
	c, err := New(cfg, seq, scorer)
	require.NoError(t, err)
	return c
}

func constant(n int, v float64) []angles.Vector {
	out := make([]angles.Vector, n)
	for i := range out {
		out[i] = angles.Uniform(v)
	}
	return out
}

func ramp(n int, step float64) []angles.Vector {
	out := make([]angles.Vector, n)
	for i := range out {
		out[i] = angles.Uniform(float64(i) * step)
	}
	return out
}

// rawConfig disables smoothing so tests can reason about exact values
func rawConfig(buffer, calib int) Config {
	cfg := DefaultConfig()
	cfg.BufferLen = buffer
	cfg.CalibFrames = calib
	cfg.SmoothAlpha = 1
	return cfg
}

func observe(t *testing.T, c *Controller, v float64) (scoring.Score, bool) {
	t.Helper()
	s, ok, err := c.Observe(Detected(angles.Uniform(v), time.Unix(100, 0)))
	require.NoError(t, err)
	return s, ok
}

func TestNew_Errors(t *testing.T) {
	scorer, err := scoring.New(scoring.DefaultConfig())
	require.NoError(t, err)
	seq, err := reference.NewSequence(constant(3, 0))
	require.NoError(t, err)

	_, err = New(DefaultConfig(), nil, scorer)
	assert.ErrorIs(t, err, reference.ErrEmptyReference)

	_, err = New(DefaultConfig(), seq, nil)
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.SmoothAlpha = 0
	_, err = New(bad, seq, scorer)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero buffer", func(c *Config) { c.BufferLen = 0 }},
		{"zero calib", func(c *Config) { c.CalibFrames = 0 }},
		{"alpha above one", func(c *Config) { c.SmoothAlpha = 1.5 }},
		{"negative window", func(c *Config) { c.WindowLen = -1 }},
		{"zero score interval", func(c *Config) { c.ScoreEvery = 0 }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestController_IdenticalMotionScoresFull(t *testing.T) {
	c := newController(t, rawConfig(5, 1), constant(5, 90))
	id := c.Start()
	require.NotEmpty(t, id)

	_, ok := observe(t, c, 0) // baseline 0
	require.False(t, ok)
	require.Equal(t, Scoring, c.State())

	var got scoring.Score
	for i := 0; i < 5; i++ {
		got, ok = observe(t, c, 90)
	}
	require.True(t, ok)
	assert.Equal(t, 0.0, got.RawDistance)
	assert.Equal(t, 100.0, got.Sequence)
	assert.Equal(t, 100.0, got.Combined)
	assert.Equal(t, id, got.SessionID)
	assert.Equal(t, uint64(5), got.FrameIndex)
}

func TestController_CalibrationMean(t *testing.T) {
	c := newController(t, rawConfig(4, 3), constant(4, 0))
	c.Start()

	observe(t, c, 10)
	observe(t, c, 20)
	assert.Equal(t, Calibrating, c.State())
	_, ok := c.Baseline()
	assert.False(t, ok)

	observe(t, c, 30)
	assert.Equal(t, Scoring, c.State())
	base, ok := c.Baseline()
	require.True(t, ok)
	assert.InDeltaSlice(t, angles.Uniform(20).Slice(), base.Slice(), 1e-9)

	// calibration samples are not reused as scoring data
	assert.Equal(t, 0, c.Snapshot().BufferLen)
}

func TestController_Smoothing(t *testing.T) {
	cfg := rawConfig(4, 2)
	cfg.SmoothAlpha = 0.5
	c := newController(t, cfg, constant(4, 0))
	c.Start()

	observe(t, c, 0)
	observe(t, c, 40) // smoothed to 20
	base, ok := c.Baseline()
	require.True(t, ok)
	assert.InDelta(t, 10.0, base[angles.Thumb], 1e-9)
}

func TestController_MissingObservations(t *testing.T) {
	c := newController(t, rawConfig(3, 2), constant(3, 0))
	c.Start()

	_, ok, err := c.Observe(Missing(time.Now()))
	require.NoError(t, err)
	assert.False(t, ok)

	nan := angles.Uniform(0)
	nan[angles.Ring] = math.NaN()
	_, ok, err = c.Observe(Detected(nan, time.Now()))
	require.NoError(t, err)
	assert.False(t, ok)

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.FrameIndex)
	assert.Equal(t, 0, snap.CalibCollected)
	assert.Equal(t, Calibrating, snap.State)
}

func TestController_MissingTickScoresFullWindow(t *testing.T) {
	ref := ramp(4, 10)
	c := newController(t, rawConfig(3, 1), ref)
	c.Start()
	observe(t, c, 0) // frame 0 calibrates, baseline 0

	var last scoring.Score
	for frame := 1; frame <= 3; frame++ {
		last, _ = observe(t, c, ref[frame%len(ref)][angles.Thumb])
	}
	require.Equal(t, uint64(3), last.FrameIndex)
	before := c.Snapshot().BufferLen

	ts := time.Unix(200, 0)
	got, ok, err := c.Observe(Missing(ts))
	require.NoError(t, err)
	require.True(t, ok, "a full window scores on a missing tick")

	// the held window is scored against this tick's reference frame
	assert.Equal(t, uint64(4), got.FrameIndex)
	assert.Equal(t, 0, got.ReferenceIndex)
	assert.Equal(t, ts, got.Timestamp)
	assert.Equal(t, before, c.Snapshot().BufferLen)
	assert.Equal(t, uint64(5), c.FrameIndex())

	// the newest sample (30) stands in for the current pose against ref[0]:
	// 30 degrees off is 15 past tolerance on a 45 degree slope
	assert.InDelta(t, 100*(1-15/45.0), got.Instantaneous, 1e-9)
}

func TestController_MissingTickBeforeWindowFull(t *testing.T) {
	c := newController(t, rawConfig(3, 1), constant(3, 0))
	c.Start()
	observe(t, c, 0)
	observe(t, c, 0)

	_, ok, err := c.Observe(Missing(time.Now()))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Snapshot().BufferLen)
}

func TestController_MissingTickHonoursDecimation(t *testing.T) {
	cfg := rawConfig(2, 1)
	cfg.ScoreEvery = 2
	c := newController(t, cfg, constant(2, 0))
	c.Start()
	observe(t, c, 0)

	var emitted []uint64
	record := func(s scoring.Score, ok bool) {
		if ok {
			emitted = append(emitted, s.FrameIndex)
		}
	}
	record(observe(t, c, 0)) // frame 1
	record(observe(t, c, 0)) // frame 2, window full
	for i := 0; i < 4; i++ {
		s, ok, err := c.Observe(Missing(time.Now()))
		require.NoError(t, err)
		record(s, ok)
	}
	assert.Equal(t, []uint64{2, 4, 6}, emitted)
}

func TestController_IdleIgnoresObservations(t *testing.T) {
	c := newController(t, rawConfig(2, 1), constant(2, 0))

	for i := 0; i < 5; i++ {
		_, ok := observe(t, c, 45)
		assert.False(t, ok)
	}
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, uint64(5), c.FrameIndex())
	assert.Equal(t, 0, c.Snapshot().BufferLen)
}

func TestController_ReferenceWraparound(t *testing.T) {
	c := newController(t, rawConfig(3, 1), ramp(4, 10))
	c.Start()
	observe(t, c, 0) // frame 0 calibrates

	var indices []int
	for i := 0; i < 6; i++ {
		if s, ok := observe(t, c, 0); ok {
			indices = append(indices, s.ReferenceIndex)
		}
	}
	// frames 1 and 2 fill the buffer, frame 3 is the first score
	assert.Equal(t, []int{3, 0, 1, 2}, indices)
}

func TestController_WindowUsesWrappedFrames(t *testing.T) {
	ref := ramp(4, 10)
	c := newController(t, rawConfig(3, 1), ref)
	c.Start()
	observe(t, c, 0) // frame 0 calibrates, baseline 0

	// replaying the reference in step with the clock matches every window,
	// including those that wrap past the last frame
	var indices []int
	for frame := 1; frame <= 8; frame++ {
		s, ok := observe(t, c, ref[frame%len(ref)][angles.Thumb])
		if !ok {
			continue
		}
		indices = append(indices, s.ReferenceIndex)
		assert.Equal(t, 0.0, s.RawDistance, "frame %d", frame)
		assert.Equal(t, 100.0, s.Instantaneous, "frame %d", frame)
	}
	assert.Equal(t, []int{3, 0, 1, 2, 3, 0}, indices)
}

func TestController_ReferenceLocalBaseline(t *testing.T) {
	cfg := rawConfig(3, 1)
	cfg.ReferenceLocalBaseline = true
	c := newController(t, cfg, constant(3, 90))
	c.Start()
	observe(t, c, 0)

	var got scoring.Score
	for i := 0; i < 3; i++ {
		got, _ = observe(t, c, 0)
	}
	assert.Equal(t, 0.0, got.RawDistance)
	assert.Equal(t, 100.0, got.Instantaneous)
}

func TestController_Decimation(t *testing.T) {
	cfg := rawConfig(2, 1)
	cfg.ScoreEvery = 3
	c := newController(t, cfg, constant(2, 0))
	c.Start()
	observe(t, c, 0)

	var emitted []uint64
	for i := 0; i < 10; i++ {
		if s, ok := observe(t, c, 0); ok {
			emitted = append(emitted, s.FrameIndex)
		}
	}
	// primed at frame 2, then every third sample
	assert.Equal(t, []uint64{2, 5, 8}, emitted)
}

func TestController_StopKeepsClock(t *testing.T) {
	c := newController(t, rawConfig(2, 1), constant(2, 0))
	c.Start()
	observe(t, c, 0)
	observe(t, c, 5)

	c.Stop()
	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, uint64(2), snap.FrameIndex)
	assert.Equal(t, 0, snap.BufferLen)
	assert.Nil(t, snap.Baseline)
}

func TestController_ResetIdempotent(t *testing.T) {
	c := newController(t, rawConfig(3, 2), constant(3, 45))
	c.Start()
	for i := 0; i < 8; i++ {
		observe(t, c, float64(i))
	}
	require.Equal(t, Scoring, c.State())

	c.Reset()
	once := c.Snapshot()
	c.Reset()
	twice := c.Snapshot()

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second reset changed state (-once +twice):\n%s", diff)
	}

	want := Snapshot{
		State:           Idle,
		ReferenceLen:    3,
		CalibRequired:   2,
		BufferCap:       3,
		ScoringInterval: 1,
	}
	if diff := cmp.Diff(want, twice, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("reset snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestController_RestartDuringScoring(t *testing.T) {
	c := newController(t, rawConfig(2, 1), constant(2, 0))
	first := c.Start()
	observe(t, c, 10)
	observe(t, c, 10)

	second := c.Start()
	assert.NotEqual(t, first, second)
	assert.Equal(t, Calibrating, c.State())
	assert.Equal(t, 0, c.Snapshot().BufferLen)
	_, ok := c.Baseline()
	assert.False(t, ok)
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, s := range []State{Idle, Calibrating, Scoring} {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var got State
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	var bad State
	assert.Error(t, bad.UnmarshalText([]byte("paused")))
}
