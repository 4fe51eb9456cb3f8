// Package report renders summary log entries for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/geleus/weekly-summary/internal/model"
)

// RepoHighlights is one repository branch of a week.
type RepoHighlights struct {
	Repo       string
	Org        string
	Language   string
	Highlights []string
}

// GroupHighlights assigns each highlight to the first repository whose name
// it mentions, case-insensitively. Highlights that mention none go to the
// first repository. Repositories keep the entry's order.
func GroupHighlights(e model.WeeklySummaryEntry) []RepoHighlights {
	if len(e.Repos) == 0 {
		return nil
	}

	groups := make([]RepoHighlights, len(e.Repos))
	for i, name := range e.Repos {
		groups[i] = RepoHighlights{
			Repo:     name,
			Org:      e.RepoOrgs[name],
			Language: e.RepoLanguages[name],
		}
	}

	for _, h := range e.Highlights {
		lower := strings.ToLower(h)
		target := 0
		for i, name := range e.Repos {
			if strings.Contains(lower, strings.ToLower(name)) {
				target = i
				break
			}
		}
		groups[target].Highlights = append(groups[target].Highlights, h)
	}
	return groups
}

// StatsLine renders the non-zero counters, e.g. "3 commits · 2 repos · 1 PR".
func StatsLine(s model.Stats) string {
	var parts []string
	if s.Commits > 0 {
		parts = append(parts, plural(s.Commits, "commit"))
	}
	if s.ReposActive > 0 {
		parts = append(parts, plural(s.ReposActive, "repo"))
	}
	if s.PRs > 0 {
		parts = append(parts, plural(s.PRs, "PR"))
	}
	return strings.Join(parts, " · ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// WeekNumber returns the ISO week of a YYYY-MM-DD date, or 0 if it does not parse.
func WeekNumber(day string) int {
	t, err := time.Parse(model.DateLayout, day)
	if err != nil {
		return 0
	}
	_, week := t.ISOWeek()
	return week
}
