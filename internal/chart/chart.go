// Package chart renders the summary log as an HTML line chart.
package chart

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/geleus/weekly-summary/internal/model"
)

// ErrEmptyLog is returned when there is nothing to plot.
var ErrEmptyLog = errors.New("summary log has no entries")

// Render writes a line chart of commits, PRs and active repositories per
// week to w, oldest week first.
func Render(w io.Writer, log model.SummaryLog, title string) error {
	if len(log.Summaries) == 0 {
		return ErrEmptyLog
	}

	entries := append([]model.WeeklySummaryEntry{}, log.Summaries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].WeekStart < entries[j].WeekStart
	})

	weeks := make([]string, 0, len(entries))
	commits := make([]opts.LineData, 0, len(entries))
	prs := make([]opts.LineData, 0, len(entries))
	repos := make([]opts.LineData, 0, len(entries))
	for _, e := range entries {
		weeks = append(weeks, e.WeekStart)
		commits = append(commits, opts.LineData{Name: e.WeekStart, Value: e.Stats.Commits})
		prs = append(prs, opts.LineData{Name: e.WeekStart, Value: e.Stats.PRs})
		repos = append(repos, opts.LineData{Name: e.WeekStart, Value: e.Stats.ReposActive})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       title,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%s to %s", entries[0].WeekStart, entries[len(entries)-1].WeekEnd),
		}),
	)

	line.SetXAxis(weeks).
		AddSeries("Commits", commits).
		AddSeries("PRs", prs).
		AddSeries("Repos", repos).
		SetSeriesOptions(
			charts.WithLineChartOpts(opts.LineChart{Smooth: true}),
		)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}
