package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/layerlens/layerlens/pkg/classify"
)

const (
	plotChartWidth  = "700px"
	plotChartHeight = "420px"
	plotPieRadius   = "60%"
)

// plotLayers fixes the display order for chart axes.
var plotLayers = []classify.Layer{classify.LayerUnit, classify.LayerIntegration, classify.LayerE2E}

// RenderPlot writes the report as a self-contained HTML page with a
// per-layer coverage bar chart and a test-distribution pie.
func RenderPlot(rep *Report, w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = "Test Layer Analysis"

	page.AddCharts(
		coverageBarChart(rep),
		testDistributionPie(rep),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render plot page: %w", err)
	}

	return nil
}

func coverageBarChart(rep *Report) *charts.Bar {
	bar := charts.NewBar()

	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: plotChartWidth, Height: plotChartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Line Coverage by Layer",
			Subtitle: "Percentage of measurable lines covered per test layer.",
		}),
		charts.WithYAxisOpts(opts.YAxis{Max: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, len(plotLayers))
	data := make([]opts.BarData, 0, len(plotLayers))

	for _, layer := range plotLayers {
		labels = append(labels, string(layer))
		data = append(data, opts.BarData{Value: rep.Coverage[layer].Percent()})
	}

	bar.SetXAxis(labels).AddSeries("Coverage %", data)

	return bar
}

func testDistributionPie(rep *Report) *charts.Pie {
	pie := charts.NewPie()

	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: plotChartWidth, Height: plotChartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Test Distribution",
			Subtitle: "Number of test functions per layer.",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	data := make([]opts.PieData, 0, len(plotLayers))
	for _, layer := range plotLayers {
		data = append(data, opts.PieData{Name: string(layer), Value: rep.TestCounts[layer]})
	}

	pie.AddSeries("Tests", data).SetSeriesOptions(
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c} ({d}%)"}),
		charts.WithPieChartOpts(opts.PieChart{Radius: plotPieRadius}),
	)

	return pie
}
