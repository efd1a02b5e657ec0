package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/layerlens/layerlens/pkg/classify"
)

// Output format identifiers.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatPlot = "plot"
)

// coveragePercent thresholds for severity coloring.
const (
	coverageGood = 80.0
	coverageFair = 50.0
)

// Renderer writes a Report in one of the supported output formats.
type Renderer struct {
	noColor bool
}

// NewRenderer creates a renderer. noColor disables terminal colors in text
// output.
func NewRenderer(noColor bool) *Renderer {
	return &Renderer{noColor: noColor}
}

// Render writes the report to w in the requested format.
func (r *Renderer) Render(rep *Report, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return r.renderJSON(rep, w)
	case FormatPlot:
		return RenderPlot(rep, w)
	default:
		return r.renderText(rep, w)
	}
}

func (r *Renderer) renderJSON(rep *Report, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return nil
}

func (r *Renderer) renderText(rep *Report, w io.Writer) error {
	fmt.Fprintf(w, "Test layers (%s tests across %s files, rule set %s)\n\n",
		humanize.Comma(int64(rep.TotalTests())),
		humanize.Comma(int64(r.totalFiles(rep))),
		rep.RulesVersion)

	r.writeSummaryTable(rep, w)

	if len(rep.Stacks) > 0 {
		labels := make([]string, 0, len(rep.Stacks))
		for _, st := range rep.Stacks {
			labels = append(labels, st.String())
		}

		fmt.Fprintf(w, "\nDetected stacks: %s\n", strings.Join(labels, ", "))
	}

	if len(rep.Duplicates) > 0 {
		fmt.Fprintln(w)
		r.writeDuplicatesTable(rep, w)
	}

	return nil
}

func (r *Renderer) writeSummaryTable(rep *Report, w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Layer", "Files", "Tests", "Covered", "Total", "Coverage"})

	for _, layer := range []classify.Layer{classify.LayerUnit, classify.LayerIntegration, classify.LayerE2E} {
		rec := rep.Coverage[layer]

		tw.AppendRow(table.Row{
			string(layer),
			rep.FileCount(layer),
			rep.TestCounts[layer],
			humanize.Comma(int64(rec.Covered)),
			humanize.Comma(int64(rec.Total)),
			r.colorPercent(rec.Percent()),
		})
	}

	tw.SetStyle(table.StyleLight)
	tw.Render()
}

func (r *Renderer) writeDuplicatesTable(rep *Report, w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Duplicate test", "Layer", "Also in", "Location"})

	for _, dup := range rep.Duplicates {
		others := make([]string, 0, len(dup.OtherLayers))
		for _, layer := range dup.OtherLayers {
			others = append(others, string(layer))
		}

		tw.AppendRow(table.Row{
			dup.Name,
			string(dup.Layer),
			strings.Join(others, ", "),
			fmt.Sprintf("%s:%d", dup.File, dup.Line),
		})
	}

	tw.SetStyle(table.StyleLight)
	tw.Render()
}

// colorPercent renders a percentage with severity coloring: green at or
// above 80%, yellow at or above 50%, red below.
func (r *Renderer) colorPercent(pct float64) string {
	text := fmt.Sprintf("%.1f%%", pct)

	if r.noColor {
		return text
	}

	switch {
	case pct >= coverageGood:
		return color.GreenString(text)
	case pct >= coverageFair:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

func (r *Renderer) totalFiles(rep *Report) int {
	total := 0
	for _, layer := range classify.AllLayers {
		total += rep.FileCount(layer)
	}

	return total
}
