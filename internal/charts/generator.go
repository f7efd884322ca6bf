package charts

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/testkube/quality-dashboard/internal/aggregate"
)

const (
	passedColor = "#22c55e"
	failedColor = "#ef4444"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func initOpts() charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		Height: "300px",
		Width:  "100%",
	})
}

// TrendChart stacks passed and failed counts per day.
func (g *Generator) TrendChart(trend []aggregate.DayBucket) (string, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Test Results Trend"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithColorsOpts(opts.Colors{passedColor, failedColor}),
		initOpts(),
	)

	xAxis := make([]string, len(trend))
	passed := make([]opts.BarData, len(trend))
	failed := make([]opts.BarData, len(trend))
	for i, b := range trend {
		xAxis[i] = b.Date
		passed[i] = opts.BarData{Value: b.Passed}
		failed[i] = opts.BarData{Value: b.Failed}
	}

	stacked := charts.WithBarChartOpts(opts.BarChart{Stack: "results"})
	bar.SetXAxis(xAxis).
		AddSeries("Passed", passed, stacked).
		AddSeries("Failed", failed, stacked)

	return g.renderToString(bar)
}

// PassRateChart plots the daily pass rate. Days without runs plot as 0.
func (g *Generator) PassRateChart(trend []aggregate.DayBucket) (string, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Pass Rate Trend"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
		initOpts(),
	)

	xAxis := make([]string, len(trend))
	yAxis := make([]opts.LineData, len(trend))
	for i, b := range trend {
		xAxis[i] = b.Date
		yAxis[i] = opts.LineData{Value: aggregate.PassRate(b.Passed, b.Passed+b.Failed)}
	}

	line.SetXAxis(xAxis).
		AddSeries("Pass Rate %", yAxis).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return g.renderToString(line)
}

// SuiteChart shows the pass rate of each suite, in the order given.
func (g *Generator) SuiteChart(suites []aggregate.Suite) (string, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Pass Rate by Suite"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
		initOpts(),
	)

	xAxis := make([]string, len(suites))
	rates := make([]opts.BarData, len(suites))
	for i, s := range suites {
		xAxis[i] = s.Name
		color := passedColor
		if s.Trend == aggregate.TrendDown {
			color = failedColor
		}
		rates[i] = opts.BarData{
			Name:      s.Name,
			Value:     s.PassRate,
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	}

	bar.SetXAxis(xAxis).AddSeries("Pass Rate %", rates)

	return g.renderToString(bar)
}

// Sparkline renders values as an inline SVG polyline.
func (g *Generator) Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	width := 100
	height := 30

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if min == max {
		max = min + 1
	}

	step := 0.0
	if len(values) > 1 {
		step = float64(width) / float64(len(values)-1)
	}

	points := make([]string, len(values))
	for i, v := range values {
		x := float64(i) * step
		y := float64(height) - ((v - min) / (max - min) * float64(height))
		points[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}

	polyline := strings.Join(points, " ")

	return fmt.Sprintf(`<svg width="%d" height="%d" class="sparkline"><polyline points="%s" fill="none" stroke="currentColor" stroke-width="2"/></svg>`,
		width, height, polyline)
}

// PassRates turns a trend into daily pass rates, for Sparkline.
func PassRates(trend []aggregate.DayBucket) []float64 {
	out := make([]float64, len(trend))
	for i, b := range trend {
		out[i] = float64(aggregate.PassRate(b.Passed, b.Passed+b.Failed))
	}
	return out
}

// Renderer is anything that can render itself to an io.Writer.
type Renderer interface {
	Render(w io.Writer) error
}

func (g *Generator) renderToString(c Renderer) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.String(), nil
}
