package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-handscore/internal/scoring"
)

func history(n int) []scoring.Score {
	base := time.Unix(1700000000, 0)
	out := make([]scoring.Score, n)
	for i := range out {
		v := float64(40 + 10*i)
		out[i] = scoring.Score{
			Timestamp:     base.Add(time.Duration(i) * 500 * time.Millisecond),
			Combined:      v,
			Sequence:      v + 5,
			Instantaneous: v - 5,
		}
	}
	return out
}

func TestNewSeries(t *testing.T) {
	s := NewSeries(history(3))
	require.Equal(t, 3, s.Len())
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, s.T, 1e-9)
	assert.Equal(t, []float64{40, 50, 60}, s.Combined)
	assert.Equal(t, []float64{45, 55, 65}, s.Sequence)
}

func TestSummarize(t *testing.T) {
	sum := Summarize(history(3))
	assert.Equal(t, 3, sum.Count)
	assert.InDelta(t, 50, sum.Mean, 1e-9)
	assert.InDelta(t, 10, sum.StdDev, 1e-9)
	assert.Equal(t, 40.0, sum.Min)
	assert.Equal(t, 60.0, sum.Max)
	assert.InDelta(t, 1, sum.Duration, 1e-9)

	one := Summarize(history(1))
	assert.Equal(t, 0.0, one.StdDev)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, history(5), "session"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")), "expected PNG signature")
}

func TestWritePNG_Empty(t *testing.T) {
	err := WritePNG(&bytes.Buffer{}, nil, "empty")
	assert.True(t, errors.Is(err, ErrNoScores))
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, SavePNG(path, history(4), "file"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, history(4), "Live session"))
	out := buf.String()
	assert.Contains(t, out, "Live session")
	assert.Contains(t, out, "combined")
	assert.Contains(t, out, "echarts")
}

func TestWriteHTML_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, nil, "Waiting"))
	assert.Contains(t, buf.String(), "Waiting")
}
