// Package csvlog writes and reads the per-tick score log.
//
// Columns are fixed: timestamp, final_score, seq_sim, inst_sim, dtw_multi,
// per_thumb, per_index, per_middle, per_ring, per_pinky. Timestamps are
// fractional Unix seconds; per_* hold the per-joint DTW similarities.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-handscore/internal/angles"
	"github.com/teslashibe/go-handscore/internal/scoring"
)

// ErrBadHeader is returned when a log does not start with the score columns
var ErrBadHeader = errors.New("csvlog: unexpected header")

// Writer appends scores to a CSV log. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	path   string
	rows   int64
}

// NewWriter writes the header to w and returns a writer over it
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(scoring.CSVHeader()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{w: cw}, nil
}

// Create opens path for appending. The header is written only when the file
// is new or empty, so restarts extend the same log.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open score log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat score log: %w", err)
	}

	var w *Writer
	if info.Size() == 0 {
		w, err = NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
	} else {
		w = &Writer{w: csv.NewWriter(f)}
	}
	w.closer = f
	w.path = path
	return w, nil
}

// Name identifies the writer as a sink
func (w *Writer) Name() string {
	return "csv"
}

// Path returns the file path, empty for stream writers
func (w *Writer) Path() string {
	return w.path
}

// Write appends one row and flushes it
func (w *Writer) Write(s scoring.Score) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.w.Write(s.CSVRecord()); err != nil {
		return err
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns how many rows this writer appended
func (w *Writer) Rows() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close flushes and closes the underlying file if the writer owns one
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w.Flush()
	err := w.w.Error()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}

// Read parses a score log. Rows that fail to parse are reported with their
// line number.
func Read(r io.Reader) ([]scoring.Score, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var out []scoring.Score
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		s, err := parseRecord(rec)
		if err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadFile parses the score log at path
func ReadFile(path string) ([]scoring.Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func checkHeader(header []string) error {
	want := scoring.CSVHeader()
	if len(header) != len(want) {
		return fmt.Errorf("%w: %d columns, want %d", ErrBadHeader, len(header), len(want))
	}
	for i := range want {
		if header[i] != want[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i, header[i], want[i])
		}
	}
	return nil
}

func parseRecord(rec []string) (scoring.Score, error) {
	if len(rec) != 5+angles.Dims {
		return scoring.Score{}, fmt.Errorf("expected %d fields, got %d", 5+angles.Dims, len(rec))
	}
	vals := make([]float64, len(rec))
	for i, field := range rec {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return scoring.Score{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}

	sec, frac := math.Modf(vals[0])
	s := scoring.Score{
		Timestamp:     time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)),
		Combined:      vals[1],
		Sequence:      vals[2],
		Instantaneous: vals[3],
		RawDistance:   vals[4],
	}
	copy(s.JointSequence[:], vals[5:])
	return s, nil
}
