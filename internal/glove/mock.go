package glove

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/session"
)

// MockSource is a glove stand-in for development and tests
type MockSource struct {
	mu        sync.Mutex
	v         angles.Vector
	detected  bool
	healthy   bool
	wave      bool
	replay    []angles.Vector
	pos       int
	startTime time.Time
}

// NewMockSource creates a mock holding a relaxed open hand
func NewMockSource() *MockSource {
	return &MockSource{
		v:         angles.Uniform(170),
		detected:  true,
		healthy:   true,
		startTime: time.Now(),
	}
}

// NewMockSourceWithWave creates a mock that slowly opens and closes the hand
func NewMockSourceWithWave() *MockSource {
	m := NewMockSource()
	m.wave = true
	return m
}

// NewReplaySource creates a mock that plays frames back in a loop, one per call
func NewReplaySource(frames []angles.Vector) *MockSource {
	m := NewMockSource()
	m.replay = append([]angles.Vector(nil), frames...)
	return m
}

// Next returns the current mock reading
func (m *MockSource) Next(ctx context.Context) (session.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.detected {
		return session.Missing(now), nil
	}

	v := m.v
	switch {
	case len(m.replay) > 0:
		v = m.replay[m.pos%len(m.replay)]
		m.pos++
	case m.wave:
		v = waveAt(now.Sub(m.startTime).Seconds())
	}
	return session.Detected(v, now), nil
}

// Close releases resources
func (m *MockSource) Close() error {
	return nil
}

// Healthy returns true if the source is operational
func (m *MockSource) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// Name returns the source type name
func (m *MockSource) Name() string {
	return "mock"
}

// SetAngles sets the fixed mock reading
func (m *MockSource) SetAngles(v angles.Vector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v = v
}

// SetDetected toggles whether a hand is reported
func (m *MockSource) SetDetected(detected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detected = detected
}

// SetHealthy sets the mock health state
func (m *MockSource) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// waveAt flexes between 90 and 170 degrees, each finger slightly behind the previous
func waveAt(elapsed float64) angles.Vector {
	var v angles.Vector
	for k := range v {
		v[k] = 130 + 40*math.Sin(elapsed-float64(k)*0.3)
	}
	return v
}

// WaveFrames samples the mock wave n times at hz, giving a reference that
// matches NewMockSourceWithWave
func WaveFrames(n int, hz float64) []angles.Vector {
	if n <= 0 || hz <= 0 {
		return nil
	}
	out := make([]angles.Vector, n)
	for i := range out {
		out[i] = waveAt(float64(i) / hz)
	}
	return out
}
