package metrics

import (
	"fmt"

	"moveforge/internal/classify"
)

// Theme selects a presentation variant for the precomputed chart export.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Chart is the precomputed description of the stacked error-by-category
// chart with a total-error trend line and success markers. The dashboard
// renders it verbatim; no aggregation happens client-side.
type Chart struct {
	Theme          Theme         `json:"theme"`
	Background     string        `json:"background"`
	Foreground     string        `json:"foreground"`
	Labels         []string      `json:"labels"`
	Series         []ChartSeries `json:"series"`
	TrendLine      []int         `json:"trend_line"`
	SuccessMarkers []int         `json:"success_markers"`
	GridColor      string        `json:"grid_color"`
}

// ChartSeries is one stacked band: a category's count per iteration.
type ChartSeries struct {
	Category string `json:"category"`
	Color    string `json:"color"`
	Values   []int  `json:"values"`
}

// categoryColors maps each category to its light/dark palette entry.
var categoryColors = map[classify.Category][2]string{
	classify.AbilityConstraint:        {"#d62728", "#ff6b6b"},
	classify.UnboundReference:         {"#1f77b4", "#74b9ff"},
	classify.InvalidObjectDeclaration: {"#ff7f0e", "#ffa94d"},
	classify.UnexpectedName:           {"#9467bd", "#b197fc"},
	classify.InvalidEntrySignature:    {"#8c564b", "#d7a98c"},
	classify.TypeMismatch:             {"#2ca02c", "#69db7c"},
	classify.Other:                    {"#7f7f7f", "#adb5bd"},
}

// BuildChart turns a snapshot series into the export for one theme.
// Categories that never occur are omitted so the legend stays readable.
func BuildChart(snapshots []Snapshot, theme Theme) Chart {
	chart := Chart{
		Theme:      theme,
		Background: "#ffffff",
		Foreground: "#212529",
		GridColor:  "#dee2e6",
	}
	if theme == ThemeDark {
		chart.Background = "#1a1b1e"
		chart.Foreground = "#e9ecef"
		chart.GridColor = "#343a40"
	}

	paletteIdx := 0
	if theme == ThemeDark {
		paletteIdx = 1
	}

	for _, snap := range snapshots {
		chart.Labels = append(chart.Labels, fmt.Sprintf("iteration %d", snap.IterationIndex))
		chart.TrendLine = append(chart.TrendLine, snap.TotalErrors)
		if snap.SuccessMarker {
			chart.SuccessMarkers = append(chart.SuccessMarkers, snap.IterationIndex)
		}
	}

	for _, cat := range classify.Categories {
		values := make([]int, len(snapshots))
		seen := false
		for i, snap := range snapshots {
			values[i] = snap.CountsByCategory[cat]
			if values[i] > 0 {
				seen = true
			}
		}
		if !seen {
			continue
		}
		chart.Series = append(chart.Series, ChartSeries{
			Category: string(cat),
			Color:    categoryColors[cat][paletteIdx],
			Values:   values,
		})
	}

	return chart
}
