package motion

import "github.com/teslashibe/go-handscore/internal/angles"

// SlidingBuffer is a fixed-capacity FIFO of angle vectors. When full, a push
// evicts the oldest entry.
type SlidingBuffer struct {
	data []angles.Vector
	head int // next write position
	size int
}

// NewSlidingBuffer creates a buffer holding at most capacity vectors (minimum 1)
func NewSlidingBuffer(capacity int) *SlidingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SlidingBuffer{data: make([]angles.Vector, capacity)}
}

// Push appends v, evicting the oldest entry when at capacity
func (b *SlidingBuffer) Push(v angles.Vector) {
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
	if b.size < len(b.data) {
		b.size++
	}
}

// IsFull reports whether the buffer holds Cap entries
func (b *SlidingBuffer) IsFull() bool {
	return b.size == len(b.data)
}

// Len returns the number of held entries
func (b *SlidingBuffer) Len() int {
	return b.size
}

// Cap returns the capacity
func (b *SlidingBuffer) Cap() int {
	return len(b.data)
}

// Snapshot returns a copy of the contents, oldest first
func (b *SlidingBuffer) Snapshot() []angles.Vector {
	out := make([]angles.Vector, b.size)
	start := (b.head - b.size + len(b.data)) % len(b.data)
	for i := range out {
		out[i] = b.data[(start+i)%len(b.data)]
	}
	return out
}

// Newest returns the most recently pushed entry
func (b *SlidingBuffer) Newest() (angles.Vector, bool) {
	if b.size == 0 {
		return angles.Vector{}, false
	}
	return b.data[(b.head-1+len(b.data))%len(b.data)], true
}

// Clear empties the buffer
func (b *SlidingBuffer) Clear() {
	b.head = 0
	b.size = 0
}
