package reference

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/teslashibe/go-handscore/internal/angles"
)

// Format is the on-disk encoding of a reference file
type Format int

const (
	// FormatAuto picks the format from the file extension, falling back to content sniffing
	FormatAuto Format = iota
	FormatJSON
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	default:
		return "auto"
	}
}

// Load reads and parses the reference file at path
func Load(path string) (*Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference: read %s: %w", path, err)
	}

	seq, err := Parse(data, formatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("reference %s: %w", path, err)
	}
	return seq, nil
}

// LoadAligned loads path and resamples it to frameCount frames, typically the
// frame count of the reference video. frameCount <= 0 keeps the native length.
func LoadAligned(path string, frameCount int) (*Sequence, error) {
	seq, err := Load(path)
	if err != nil {
		return nil, err
	}
	return seq.Resampled(frameCount), nil
}

// Parse decodes a reference document
func Parse(data []byte, format Format) (*Sequence, error) {
	if format == FormatAuto {
		format = sniff(data)
	}

	var (
		frames []angles.Vector
		err    error
	)
	switch format {
	case FormatJSON:
		frames, err = parseJSON(data)
	case FormatCSV:
		frames, err = parseCSV(data)
	default:
		return nil, fmt.Errorf("%w: format %s", ErrUnrecognizedShape, format)
	}
	if err != nil {
		return nil, err
	}
	return NewSequence(frames)
}

func formatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	default:
		return FormatAuto
	}
}

func sniff(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCSV
}

// parseJSON accepts
//
//	{"angles": [...]}   {"frames": [...]}   {"<key>": item, ...}   [...]
//
// where each item is [timestamp, [5 angles]], a bare [5 angles] tuple, or
// {"timestamp": t, "angles": [5 angles]}. Items of any other shape are skipped.
func parseJSON(data []byte) ([]angles.Vector, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		raw, ok := v["angles"]
		if !ok {
			raw, ok = v["frames"]
		}
		if ok {
			list, isList := raw.([]any)
			if !isList {
				return nil, fmt.Errorf("%w: angles/frames must be a list", ErrUnrecognizedShape)
			}
			items = list
		} else {
			items = orderedValues(v)
		}
	default:
		return nil, fmt.Errorf("%w: top-level %T", ErrUnrecognizedShape, doc)
	}

	frames := make([]angles.Vector, 0, len(items))
	for _, item := range items {
		if v, ok := jsonItem(item); ok {
			frames = append(frames, v)
		}
	}
	if len(frames) == 0 {
		return nil, ErrEmptyReference
	}
	return frames, nil
}

// orderedValues returns the map values ordered by key, numerically when
// every key is a number
func orderedValues(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	numeric := true
	for k := range m {
		keys = append(keys, k)
		if _, err := strconv.ParseFloat(k, 64); err != nil {
			numeric = false
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if numeric {
			a, _ := strconv.ParseFloat(keys[i], 64)
			b, _ := strconv.ParseFloat(keys[j], 64)
			return a < b
		}
		return keys[i] < keys[j]
	})

	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func jsonItem(item any) (angles.Vector, bool) {
	switch v := item.(type) {
	case []any:
		if len(v) >= 2 {
			if inner, ok := v[1].([]any); ok {
				return numberTuple(inner)
			}
		}
		return numberTuple(v)
	case map[string]any:
		if inner, ok := v["angles"].([]any); ok {
			return numberTuple(inner)
		}
	}
	return angles.Vector{}, false
}

func numberTuple(v []any) (angles.Vector, bool) {
	var out angles.Vector
	if len(v) != angles.Dims {
		return out, false
	}
	for k, x := range v {
		f, ok := x.(float64)
		if !ok {
			return out, false
		}
		out[k] = f
	}
	return out, out.Valid()
}

// parseCSV accepts a header naming the five joints (thumb, thumb_deg or
// thumb_angle, and so on) or headerless rows of five angles, optionally
// preceded by a timestamp column.
func parseCSV(data []byte) ([]angles.Vector, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	var (
		frames []angles.Vector
		cols   []int
		first  = true
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}

		if first {
			first = false
			if !allNumeric(rec) {
				cols, err = headerColumns(rec)
				if err != nil {
					return nil, err
				}
				continue
			}
		}

		idx := cols
		if idx == nil {
			idx = positionalColumns(len(rec))
			if idx == nil {
				continue
			}
		}
		if v, ok := csvRow(rec, idx); ok {
			frames = append(frames, v)
		}
	}

	if len(frames) == 0 {
		return nil, ErrEmptyReference
	}
	return frames, nil
}

func headerColumns(header []string) ([]int, error) {
	cols := make([]int, angles.Dims)
	for k := range cols {
		cols[k] = -1
	}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		name = strings.TrimSuffix(strings.TrimSuffix(name, "_deg"), "_angle")
		for k, joint := range angles.JointNames {
			if name == joint {
				cols[k] = i
			}
		}
	}
	for k, c := range cols {
		if c < 0 {
			return nil, fmt.Errorf("%w: csv header has no %s column", ErrUnrecognizedShape, angles.JointNames[k])
		}
	}
	return cols, nil
}

func positionalColumns(width int) []int {
	switch width {
	case angles.Dims:
		return []int{0, 1, 2, 3, 4}
	case angles.Dims + 1:
		return []int{1, 2, 3, 4, 5}
	default:
		return nil
	}
}

func csvRow(rec []string, cols []int) (angles.Vector, bool) {
	var out angles.Vector
	for k, c := range cols {
		if c >= len(rec) {
			return out, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)
		if err != nil {
			return out, false
		}
		out[k] = f
	}
	return out, out.Valid()
}

func allNumeric(rec []string) bool {
	for _, f := range rec {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
			return false
		}
	}
	return true
}
