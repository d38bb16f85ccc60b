package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-handscore/internal/csvlog"
	"github.com/teslashibe/go-handscore/internal/report"
)

func newReportCmd() *cobra.Command {
	var (
		inPath  string
		outPath string
		title   string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Chart a score log as accuracy over time",
		RunE: func(cmd *cobra.Command, args []string) error {
			scores, err := csvlog.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", inPath, err)
			}
			if len(scores) == 0 {
				return fmt.Errorf("%s: %w", inPath, report.ErrNoScores)
			}
			if title == "" {
				title = "Accuracy: " + filepath.Base(inPath)
			}
			if err := writeChart(outPath, scores, title); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report.Summarize(scores))
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "score log (csv)")
	cmd.Flags().StringVar(&outPath, "out", "accuracy.png", "chart path (.png, .svg, .pdf or .html)")
	cmd.Flags().StringVar(&title, "title", "", "chart title")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}
