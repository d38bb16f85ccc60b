package scoring

import (
	"strconv"
	"time"

	"github.com/teslashibe/go-handscore/internal/angles"
)

// Score is one similarity evaluation
type Score struct {
	Timestamp      time.Time `json:"timestamp"`
	SessionID      string    `json:"session_id,omitempty"`
	FrameIndex     uint64    `json:"frame_index"`
	ReferenceIndex int       `json:"reference_index"`

	Combined      float64 `json:"combined_score"`
	Sequence      float64 `json:"sequence_score"`
	Instantaneous float64 `json:"instantaneous_score"`
	RawDistance   float64 `json:"raw_distance"`

	PerJoint      [angles.Dims]float64 `json:"per_joint_score"`
	JointSequence [angles.Dims]float64 `json:"joint_sequence_score"`
}

var csvHeader = []string{
	"timestamp", "final_score", "seq_sim", "inst_sim", "dtw_multi",
	"per_thumb", "per_index", "per_middle", "per_ring", "per_pinky",
}

// CSVHeader returns the fixed score-log column names
func CSVHeader() []string {
	out := make([]string, len(csvHeader))
	copy(out, csvHeader)
	return out
}

// CSVRecord renders the score as one score-log row. The timestamp is
// fractional Unix seconds and the per_* columns carry the per-joint DTW
// similarities (JointSequence).
func (s Score) CSVRecord() []string {
	rec := make([]string, 0, len(csvHeader))
	rec = append(rec,
		strconv.FormatFloat(float64(s.Timestamp.UnixNano())/1e9, 'f', 6, 64),
		formatScore(s.Combined),
		formatScore(s.Sequence),
		formatScore(s.Instantaneous),
		formatScore(s.RawDistance),
	)
	for _, v := range s.JointSequence {
		rec = append(rec, formatScore(v))
	}
	return rec
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
