package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/geleus/weekly-summary/internal/model"
)

// Tree connectors.
const (
	branch     = "├── "
	lastBranch = "└── "
	pipe       = "│   "
	indent     = "    "
)

var (
	weekColor  = color.New(color.FgCyan, color.Bold)
	repoColor  = color.New(color.FgGreen)
	statsColor = color.New(color.Faint)
	quoteColor = color.New(color.Italic)
)

// PrintEntries prints entries in order, separated by a blank line.
func PrintEntries(out io.Writer, entries []model.WeeklySummaryEntry) {
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(out)
		}
		PrintEntry(out, e)
	}
}

// PrintEntry prints one week as a tree of repositories and highlights.
func PrintEntry(out io.Writer, e model.WeeklySummaryEntry) {
	weekColor.Fprintf(out, "Week %d (%s to %s)", WeekNumber(e.WeekStart), e.WeekStart, e.WeekEnd)
	if stats := StatsLine(e.Stats); stats != "" {
		fmt.Fprint(out, "  ")
		statsColor.Fprint(out, stats)
	}
	fmt.Fprintln(out)

	groups := GroupHighlights(e)
	if len(groups) == 0 {
		// Entries without repositories still carry their highlights.
		groups = []RepoHighlights{{Highlights: e.Highlights}}
	}

	for i, g := range groups {
		last := i == len(groups)-1
		prefix, childPrefix := branch, pipe
		if last {
			prefix, childPrefix = lastBranch, indent
		}

		if g.Repo != "" {
			fmt.Fprint(out, prefix)
			repoColor.Fprint(out, g.Repo)
			if g.Org != "" {
				fmt.Fprintf(out, " (%s)", g.Org)
			}
			if g.Language != "" {
				fmt.Fprintf(out, " · %s", g.Language)
			}
			fmt.Fprintln(out)
		} else {
			childPrefix = ""
		}

		for j, h := range g.Highlights {
			connector := branch
			if j == len(g.Highlights)-1 {
				connector = lastBranch
			}
			fmt.Fprintf(out, "%s%s%s\n", childPrefix, connector, h)
		}
	}

	if e.Summary != "" {
		fmt.Fprint(out, "  ")
		quoteColor.Fprintf(out, "“%s”", e.Summary)
		fmt.Fprintln(out)
	}
}
