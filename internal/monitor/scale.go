// Package monitor records per-frame retarget scale diagnostics and renders
// them as PNG plots and HTML charts.
package monitor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/retarget/internal/retarget"
	"github.com/banshee-data/retarget/internal/security"
)

// ScaleSample is one frame of scale state.
type ScaleSample struct {
	Frame        uint64
	CurrentScale float64 // height ratio before clamping
	RootScale    float64
	HeadScale    float64
	LegScale     float64
	Dropped      bool
}

// ScalePlotter accumulates scale samples over a run.
type ScalePlotter struct {
	mu      sync.Mutex
	samples []ScaleSample
}

func NewScalePlotter() *ScalePlotter {
	return &ScalePlotter{}
}

// Sample records the outcome of one Update call.
func (sp *ScalePlotter) Sample(res retarget.FrameResult, currentScale float64, ok bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.samples = append(sp.samples, ScaleSample{
		Frame:        res.Frame,
		CurrentScale: currentScale,
		RootScale:    res.RootScale,
		HeadScale:    res.HeadScale,
		LegScale:     res.LegScale,
		Dropped:      !ok,
	})
}

// Samples returns a copy of the recorded samples.
func (sp *ScalePlotter) Samples() []ScaleSample {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return append([]ScaleSample(nil), sp.samples...)
}

// Dropped returns the number of dropped frames recorded.
func (sp *ScalePlotter) Dropped() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return countDropped(sp.samples)
}

type series struct {
	name  string
	value func(ScaleSample) float64
}

var scaleSeries = []series{
	{"current", func(s ScaleSample) float64 { return s.CurrentScale }},
	{"root", func(s ScaleSample) float64 { return s.RootScale }},
	{"head", func(s ScaleSample) float64 { return s.HeadScale }},
	{"legs", func(s ScaleSample) float64 { return s.LegScale }},
}

// GeneratePlot writes scales_<label>.png (scales.png for an empty label) to
// outputDir and returns its path. Dropped frames are marked on the root scale
// line.
func (sp *ScalePlotter) GeneratePlot(outputDir, label string) (string, error) {
	samples := sp.Samples()
	if len(samples) == 0 {
		return "", fmt.Errorf("no samples to plot")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Retarget Scale"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Scale"

	for i, s := range scaleSeries {
		pts := make(plotter.XYs, len(samples))
		for j, sample := range samples {
			pts[j] = plotter.XY{X: float64(sample.Frame), Y: s.value(sample)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	var dropped plotter.XYs
	for _, s := range samples {
		if s.Dropped {
			dropped = append(dropped, plotter.XY{X: float64(s.Frame), Y: s.RootScale})
		}
	}
	if len(dropped) > 0 {
		sc, err := plotter.NewScatter(dropped)
		if err != nil {
			return "", err
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = plotutil.Color(len(scaleSeries))
		p.Add(sc)
		p.Legend.Add("dropped", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	name := "scales.png"
	if label != "" {
		name = "scales_" + label + ".png"
	}
	file, err := security.JoinWithin(outputDir, name)
	if err != nil {
		return "", err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return "", fmt.Errorf("save scale plot: %w", err)
	}
	return file, nil
}

// WriteScaleChart renders the samples as an HTML line chart.
func WriteScaleChart(w io.Writer, title string, samples []ScaleSample) error {
	x := make([]string, len(samples))
	for i, s := range samples {
		x[i] = strconv.FormatUint(s.Frame, 10)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("frames=%d dropped=%d", len(samples), countDropped(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Scale", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x)
	for _, s := range scaleSeries {
		data := make([]opts.LineData, len(samples))
		for i, sample := range samples {
			data[i] = opts.LineData{Value: s.value(sample)}
		}
		line.AddSeries(s.name, data)
	}

	page := components.NewPage()
	page.AddCharts(line)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render scale chart: %w", err)
	}
	return nil
}

func countDropped(samples []ScaleSample) int {
	n := 0
	for _, s := range samples {
		if s.Dropped {
			n++
		}
	}
	return n
}
