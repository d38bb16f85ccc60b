package glove

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-handscore/internal/angles"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want angles.Vector
		ok   bool
	}{
		{
			name: "firmware format",
			line: "Thumb: 12.5 index: 40 middle: 38 ring: 35 pinky: 30",
			want: angles.Vector{12.5, 40, 38, 35, 30},
			ok:   true,
		},
		{
			name: "shuffled and mixed case",
			line: "PINKY:1 Ring : 2, middle:3 | INDEX:4 thumb:-5",
			want: angles.Vector{-5, 4, 3, 2, 1},
			ok:   true,
		},
		{
			name: "leading dot decimals",
			line: "thumb:.5 index:.25 middle:1 ring:2 pinky:+3",
			want: angles.Vector{0.5, 0.25, 1, 2, 3},
			ok:   true,
		},
		{name: "incomplete", line: "thumb: 1 index: 2 middle: 3 ring: 4"},
		{name: "duplicate finger", line: "thumb: 1 thumb: 2 middle: 3 ring: 4 pinky: 5"},
		{name: "too many", line: "thumb:1 index:2 middle:3 ring:4 pinky:5 pinky:6"},
		{name: "noise", line: "booting flex sensors..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseLine ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParseLine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMockSource_Basic(t *testing.T) {
	source := NewMockSource()

	obs, err := source.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !obs.Present() {
		t.Fatal("expected an observation")
	}
	if obs.Angles != angles.Uniform(170) {
		t.Errorf("expected open hand, got %v", obs.Angles)
	}
	if !source.Healthy() {
		t.Error("expected mock to be healthy")
	}
	if source.Name() != "mock" {
		t.Errorf("expected name 'mock', got %s", source.Name())
	}

	source.SetDetected(false)
	obs, _ = source.Next(context.Background())
	if obs.Present() {
		t.Error("expected missing observation")
	}
}

func TestMockSource_Wave(t *testing.T) {
	source := NewMockSourceWithWave()

	for i := 0; i < 5; i++ {
		obs, err := source.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, x := range obs.Angles {
			if x < 90-1e-9 || x > 170+1e-9 {
				t.Fatalf("wave angle %f out of range", x)
			}
		}
	}
}

func TestWaveFrames(t *testing.T) {
	frames := WaveFrames(40, 10)
	if len(frames) != 40 {
		t.Fatalf("expected 40 frames, got %d", len(frames))
	}
	for i, v := range frames {
		for k, x := range v {
			if x < 90 || x > 170 {
				t.Errorf("frame %d finger %d out of range: %f", i, k, x)
			}
		}
	}
	if frames[0] == frames[10] {
		t.Error("expected the wave to move between samples")
	}
	if WaveFrames(0, 10) != nil || WaveFrames(5, 0) != nil {
		t.Error("expected nil for non-positive arguments")
	}
}

func TestReplaySource_Loops(t *testing.T) {
	frames := []angles.Vector{angles.Uniform(1), angles.Uniform(2)}
	source := NewReplaySource(frames)

	var got []float64
	for i := 0; i < 5; i++ {
		obs, _ := source.Next(context.Background())
		got = append(got, obs.Angles[angles.Thumb])
	}
	want := []float64{1, 2, 1, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replay = %v, want %v", got, want)
		}
	}
}

// pipeOpener hands out io.Pipe readers, keeping the writers for the test
type pipeOpener struct {
	mu      sync.Mutex
	writers []*io.PipeWriter
	fail    bool
}

func (p *pipeOpener) open() (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, errors.New("no such device")
	}
	r, w := io.Pipe()
	p.writers = append(p.writers, w)
	return r, nil
}

func (p *pipeOpener) writer(i int) *io.PipeWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= len(p.writers) {
		return nil
	}
	return p.writers[i]
}

func testConfig() SerialConfig {
	cfg := DefaultSerialConfig()
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 20 * time.Millisecond
	cfg.MaxConsecutiveErrors = 1
	return cfg
}

func waitObservation(t *testing.T, src *SerialSource) angles.Vector {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		obs, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if obs.Present() {
			return obs.Angles
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no observation before timeout")
	return angles.Vector{}
}

func TestSerialSource_ReadsLines(t *testing.T) {
	p := &pipeOpener{}
	port, _ := p.open()
	src := newSerialSource(testConfig(), slog.Default(), p.open, port)
	defer src.Close()

	go io.WriteString(p.writer(0), "garbage\nthumb:1 index:2 middle:3 ring:4 pinky:5\n")

	got := waitObservation(t, src)
	if got != (angles.Vector{1, 2, 3, 4, 5}) {
		t.Errorf("unexpected reading %v", got)
	}

	// consumed; the next call reports nothing new
	obs, _ := src.Next(context.Background())
	if obs.Present() {
		t.Error("expected slot to be consumed")
	}

	stats := src.Stats()
	if stats.Lines != 2 || stats.Rejected != 1 {
		t.Errorf("expected 2 lines with 1 rejected, got %+v", stats)
	}
	if !src.Healthy() {
		t.Error("expected healthy source")
	}
}

func TestSerialSource_ReconnectsAfterEOF(t *testing.T) {
	p := &pipeOpener{}
	port, _ := p.open()
	src := newSerialSource(testConfig(), slog.Default(), p.open, port)
	defer src.Close()

	p.writer(0).Close()

	deadline := time.Now().Add(2 * time.Second)
	for p.writer(1) == nil {
		if time.Now().After(deadline) {
			t.Fatal("source did not reopen the port")
		}
		time.Sleep(2 * time.Millisecond)
	}

	go io.WriteString(p.writer(1), "thumb:9 index:9 middle:9 ring:9 pinky:9\n")
	if got := waitObservation(t, src); got != angles.Uniform(9) {
		t.Errorf("unexpected reading %v", got)
	}
	if !src.Healthy() {
		t.Error("expected recovery after a valid line")
	}
}

func TestSerialSource_Close(t *testing.T) {
	p := &pipeOpener{}
	port, _ := p.open()
	src := newSerialSource(testConfig(), slog.Default(), p.open, port)

	if err := src.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if src.Healthy() {
		t.Error("closed source should not be healthy")
	}
	if err := src.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestNewSourceWithFallback(t *testing.T) {
	cfg := DefaultSerialConfig()
	cfg.Port = "/dev/does-not-exist-handscore"

	source := NewSourceWithFallback(cfg, slog.Default())
	if source.Name() != "mock" {
		t.Errorf("expected mock fallback, got %s", source.Name())
	}
}
