package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-handscore/internal/csvlog"
	"github.com/teslashibe/go-handscore/internal/glove"
	"github.com/teslashibe/go-handscore/internal/reference"
	"github.com/teslashibe/go-handscore/internal/report"
	"github.com/teslashibe/go-handscore/internal/scoring"
	"github.com/teslashibe/go-handscore/internal/session"
)

type replayOptions struct {
	referencePath string
	livePath      string
	outPath       string
	chartPath     string
	fps           float64
	frameCount    int
}

func newReplayCmd(flags *rootFlags) *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Score a recorded angle file against a reference without hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(flags)
			if opts.referencePath == "" {
				opts.referencePath = cfg.Reference.Path
			}
			if opts.frameCount == 0 {
				opts.frameCount = cfg.Reference.FrameCount
			}
			if opts.fps <= 0 {
				opts.fps = float64(cfg.Source.PollHz)
			}

			scoringCfg, err := cfg.ScoringParams()
			if err != nil {
				return err
			}
			sessCfg := cfg.SessionParams()
			if err := sessCfg.Validate(); err != nil {
				return err
			}

			logger := setupLogger(cfg.Logging)
			summary, err := replay(opts, sessCfg, scoringCfg, cmd.OutOrStdout())
			if err != nil {
				logger.Error("replay failed", "error", err)
				return err
			}
			logger.Info("replay finished",
				"scores", summary.Count,
				"mean", summary.Mean,
				"min", summary.Min,
				"max", summary.Max,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.referencePath, "reference", "", "reference angle file (json or csv)")
	cmd.Flags().StringVar(&opts.livePath, "live", "", "recorded live angle file (json or csv)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "score log path (default stdout)")
	cmd.Flags().StringVar(&opts.chartPath, "chart", "", "optional accuracy chart (.png, .svg or .html)")
	cmd.Flags().Float64Var(&opts.fps, "fps", 0, "live sample rate used for timestamps (default source.poll_hz)")
	cmd.Flags().IntVar(&opts.frameCount, "frames", 0, "resample the reference to this many frames")
	_ = cmd.MarkFlagRequired("live")

	return cmd
}

// replay runs the live recording through a fresh session and writes the
// score log. Calibration uses the first calib_frames samples of the
// recording, the same as a live session.
func replay(opts *replayOptions, sessCfg session.Config, scoringCfg scoring.Config, stdout io.Writer) (report.Summary, error) {
	if opts.referencePath == "" {
		return report.Summary{}, fmt.Errorf("--reference or reference.path is required")
	}
	ref, err := reference.LoadAligned(opts.referencePath, opts.frameCount)
	if err != nil {
		return report.Summary{}, fmt.Errorf("load reference: %w", err)
	}
	live, err := reference.Load(opts.livePath)
	if err != nil {
		return report.Summary{}, fmt.Errorf("load live recording: %w", err)
	}

	scorer, err := scoring.New(scoringCfg)
	if err != nil {
		return report.Summary{}, err
	}
	ctrl, err := session.New(sessCfg, ref, scorer)
	if err != nil {
		return report.Summary{}, err
	}

	out := stdout
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return report.Summary{}, err
		}
		defer f.Close()
		out = f
	}
	w, err := csvlog.NewWriter(out)
	if err != nil {
		return report.Summary{}, err
	}

	frames := live.Frames()
	runner := session.NewRunner(glove.NewReplaySource(frames), ctrl, session.RunnerConfig{
		HistorySize: len(frames) + 1,
		QueueSize:   1,
	}, nil)
	runner.Start()

	fps := opts.fps
	if fps <= 0 {
		fps = 30
	}
	start := time.Now()
	step := time.Duration(float64(time.Second) / fps)
	for i, v := range frames {
		score, ok := runner.Apply(session.Detected(v, start.Add(time.Duration(i)*step)))
		if !ok {
			continue
		}
		if err := w.Write(score); err != nil {
			return report.Summary{}, err
		}
	}
	if err := w.Close(); err != nil {
		return report.Summary{}, err
	}

	scores := runner.History(0)
	if opts.chartPath != "" && len(scores) > 0 {
		if err := writeChart(opts.chartPath, scores, "Replay: "+filepath.Base(opts.livePath)); err != nil {
			return report.Summary{}, err
		}
	}
	return report.Summarize(scores), nil
}

// writeChart picks the renderer from the file extension
func writeChart(path string, scores []scoring.Score, title string) error {
	if strings.EqualFold(filepath.Ext(path), ".html") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return report.WriteHTML(f, scores, title)
	}
	return report.SavePNG(path, scores, title)
}
