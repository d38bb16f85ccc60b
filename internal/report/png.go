package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/teslashibe/go-handscore/internal/scoring"
)

var (
	combinedColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	sequenceColor = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	instantColor  = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

// NewPlot builds the accuracy-vs-time plot
func NewPlot(scores []scoring.Score, title string) (*plot.Plot, error) {
	if len(scores) == 0 {
		return nil, ErrNoScores
	}
	s := NewSeries(scores)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Accuracy (%)"
	p.Y.Min = 0
	p.Y.Max = 100
	p.Add(plotter.NewGrid())

	for _, ln := range []struct {
		label string
		ys    []float64
		color color.Color
		width vg.Length
	}{
		{"combined", s.Combined, combinedColor, vg.Points(1.5)},
		{"sequence", s.Sequence, sequenceColor, vg.Points(1)},
		{"instantaneous", s.Instantaneous, instantColor, vg.Points(1)},
	} {
		pts := make(plotter.XYs, s.Len())
		for i := range pts {
			pts[i].X = s.T[i]
			pts[i].Y = ln.ys[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", ln.label, err)
		}
		line.Color = ln.color
		line.Width = ln.width
		p.Add(line)
		p.Legend.Add(ln.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePNG renders the accuracy chart as PNG
func WritePNG(w io.Writer, scores []scoring.Score, title string) error {
	p, err := NewPlot(scores, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG renders the accuracy chart to a file; the extension picks the
// format (png, svg, pdf)
func SavePNG(path string, scores []scoring.Score, title string) error {
	p, err := NewPlot(scores, title)
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}
