// Package viz renders result series as terminal plots.
package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/msim"
)

const (
	plotWidth  = 80
	plotHeight = 10
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	legendStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Blue,
	asciigraph.Red,
	asciigraph.Green,
	asciigraph.Yellow,
	asciigraph.Magenta,
	asciigraph.Cyan,
}

// DefaultCalibrationSeries are the series plotted after a calibration.
var DefaultCalibrationSeries = []string{"cum_tests", "cum_diagnoses", "cum_deaths"}

// DefaultScenarioSeries are the series plotted for rollout comparisons.
var DefaultScenarioSeries = []string{
	"new_infections", "cum_infections",
	"new_diagnoses", "cum_diagnoses",
	"cum_deaths", "new_vaccinated",
}

// PlotResult plots the named series of a single run.
func PlotResult(r *epi.Result, names []string) error {
	for _, name := range names {
		data, err := r.Get(name)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return fmt.Errorf("series %s is empty", name)
		}
		caption := name
		if r.Label != "" {
			caption = fmt.Sprintf("%s (%s)", name, r.Label)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

// PlotComparison overlays each container's base run for every named
// series, one color per scenario.
func PlotComparison(m *msim.MultiSim, names []string) error {
	if len(m.Runs) == 0 {
		return fmt.Errorf("nothing to plot")
	}

	for _, name := range names {
		series := make([][]float64, 0, len(m.Runs))
		for _, r := range m.Runs {
			data, err := r.Get(name)
			if err != nil {
				return err
			}
			series = append(series, data)
		}

		fmt.Println(titleStyle.Render(name))
		graph := asciigraph.PlotMany(series,
			asciigraph.Height(plotHeight),
			asciigraph.Width(plotWidth),
			asciigraph.SeriesColors(seriesColors[:min(len(series), len(seriesColors))]...),
		)
		fmt.Println(graph)
		fmt.Println(legendStyle.Render(legend(m)))
		fmt.Println()
	}
	return nil
}

func legend(m *msim.MultiSim) string {
	parts := make([]string, 0, len(m.Runs))
	for i, r := range m.Runs {
		color := seriesColors[i%len(seriesColors)]
		parts = append(parts, fmt.Sprintf("%s %s", colorName(color), r.Label))
	}
	return "legend: " + strings.Join(parts, "  |  ")
}

func colorName(c asciigraph.AnsiColor) string {
	switch c {
	case asciigraph.Blue:
		return "blue"
	case asciigraph.Red:
		return "red"
	case asciigraph.Green:
		return "green"
	case asciigraph.Yellow:
		return "yellow"
	case asciigraph.Magenta:
		return "magenta"
	case asciigraph.Cyan:
		return "cyan"
	default:
		return "?"
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
