package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/teslashibe/go-handscore/internal/scoring"
)

// WriteHTML renders an interactive accuracy chart. An empty history still
// renders an empty chart so the page loads before the first score.
func WriteHTML(w io.Writer, scores []scoring.Score, title string) error {
	s := NewSeries(scores)
	sum := Summarize(scores)

	xs := make([]string, s.Len())
	combined := make([]opts.LineData, s.Len())
	sequence := make([]opts.LineData, s.Len())
	instant := make([]opts.LineData, s.Len())
	for i := range xs {
		xs[i] = fmt.Sprintf("%.2f", s.T[i])
		combined[i] = opts.LineData{Value: s.Combined[i]}
		sequence[i] = opts.LineData{Value: s.Sequence[i]}
		instant[i] = opts.LineData{Value: s.Instantaneous[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("scores=%d mean=%.1f min=%.1f max=%.1f", sum.Count, sum.Mean, sum.Min, sum.Max),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Accuracy (%)", Min: 0, Max: 100}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xs).
		AddSeries("combined", combined).
		AddSeries("sequence", sequence).
		AddSeries("instantaneous", instant)

	return line.Render(w)
}
