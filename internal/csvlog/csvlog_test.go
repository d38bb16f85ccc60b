package csvlog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-handscore/internal/scoring"
)

func sample(ts time.Time, combined float64) scoring.Score {
	return scoring.Score{
		Timestamp:     ts,
		Combined:      combined,
		Sequence:      combined + 1,
		Instantaneous: combined - 1,
		RawDistance:   12.5,
		JointSequence: [5]float64{100, 90, 80, 70, 60},
	}
}

func TestWriter_Schema(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	ts := time.Unix(1700000000, 250000000)
	require.NoError(t, w.Write(sample(ts, 75)))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,final_score,seq_sim,inst_sim,dtw_multi,per_thumb,per_index,per_middle,per_ring,per_pinky", lines[0])
	assert.Equal(t, "1700000000.250000,75.0000,76.0000,74.0000,12.5000,100.0000,90.0000,80.0000,70.0000,60.0000", lines[1])
	assert.Equal(t, int64(1), w.Rows())
}

func TestRead_RoundTripsWrittenLog(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.Write(sample(base.Add(time.Duration(i)*100*time.Millisecond), float64(50+i))))
	}

	scores, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, 52.0, scores[2].Combined)
	assert.Equal(t, [5]float64{100, 90, 80, 70, 60}, scores[0].JointSequence)
	assert.WithinDuration(t, base.Add(200*time.Millisecond), scores[2].Timestamp, time.Microsecond)
}

func TestRead_BadHeader(t *testing.T) {
	_, err := Read(strings.NewReader("a,b,c\n1,2,3\n"))
	assert.True(t, errors.Is(err, ErrBadHeader), "got %v", err)
}

func TestRead_BadRowReportsLine(t *testing.T) {
	data := strings.Join(scoring.CSVHeader(), ",") + "\n" +
		"1,2,3,4,5,6,7,8,9,10\n" +
		"1,2,oops,4,5,6,7,8,9,10\n"
	scores, err := Read(strings.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.Len(t, scores, 1)
}

func TestRead_Empty(t *testing.T) {
	scores, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestCreate_AppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(sample(time.Unix(1, 0), 10)))
	require.NoError(t, w.Close())

	w, err = Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(sample(time.Unix(2, 0), 20)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "timestamp,"))

	scores, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 20.0, scores[1].Combined)
}
