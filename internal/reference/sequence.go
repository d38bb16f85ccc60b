// Package reference loads the prerecorded motion a session is scored
// against and exposes it through wrap-around indexing.
package reference

import (
	"errors"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/motion"
)

var (
	// ErrEmptyReference is returned when no usable frame could be read
	ErrEmptyReference = errors.New("reference: sequence is empty")

	// ErrUnrecognizedShape is returned for a document that matches none of the accepted layouts
	ErrUnrecognizedShape = errors.New("reference: unrecognized data shape")
)

// Sequence is an immutable, non-empty ordered run of angle vectors
type Sequence struct {
	frames []angles.Vector
}

// NewSequence copies frames into a Sequence
func NewSequence(frames []angles.Vector) (*Sequence, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyReference
	}
	own := make([]angles.Vector, len(frames))
	copy(own, frames)
	return &Sequence{frames: own}, nil
}

// Len returns the number of frames, L
func (s *Sequence) Len() int {
	return len(s.frames)
}

// At returns frame i, wrapped into [0, L)
func (s *Sequence) At(i int) angles.Vector {
	return s.frames[WrapIndex(i, len(s.frames))]
}

// Frames returns a copy of every frame
func (s *Sequence) Frames() []angles.Vector {
	out := make([]angles.Vector, len(s.frames))
	copy(out, s.frames)
	return out
}

// Window returns the w frames ending at end, oldest first, wrapping around
// the start of the sequence when needed.
func (s *Sequence) Window(end, w int) []angles.Vector {
	idx := WindowIndices(end, w, len(s.frames))
	out := make([]angles.Vector, len(idx))
	for i, j := range idx {
		out[i] = s.frames[j]
	}
	return out
}

// Resampled returns a new sequence linearly interpolated onto n frames.
// n <= 0 returns the receiver.
func (s *Sequence) Resampled(n int) *Sequence {
	if n <= 0 || n == len(s.frames) {
		return s
	}
	return &Sequence{frames: motion.Resample(s.frames, n)}
}
