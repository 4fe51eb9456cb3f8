// Package model defines the core data structures for weekly-summary.
package model

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for window bounds.
const DateLayout = "2006-01-02"

// Pull request states as recorded in the summary log.
const (
	StateOpen   = "open"
	StateMerged = "merged"
	StateClosed = "closed"
)

// Output caps.
const (
	MaxRepoMessages       = 10
	MaxActivityMessages   = 20
	MaxHighlights         = 8
	MaxFallbackHighlights = 5
)

// Window is an inclusive range of UTC calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// TrailingWeek returns the seven-day window ending on the UTC calendar day of now.
func TrailingWeek(now time.Time) Window {
	end := truncateDay(now)
	return Window{Start: end.AddDate(0, 0, -6), End: end}
}

// WeekEndingOn parses a YYYY-MM-DD end date and returns the seven-day window ending on it.
func WeekEndingOn(end string) (Window, error) {
	d, err := time.Parse(DateLayout, end)
	if err != nil {
		return Window{}, err
	}
	return TrailingWeek(d), nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Since is the first instant of the window.
func (w Window) Since() time.Time { return w.Start }

// Until is the last second of the window.
func (w Window) Until() time.Time {
	return w.End.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
}

// StartString returns the start day as YYYY-MM-DD.
func (w Window) StartString() string { return w.Start.Format(DateLayout) }

// EndString returns the end day as YYYY-MM-DD.
func (w Window) EndString() string { return w.End.Format(DateLayout) }

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since()) && !t.After(w.Until())
}

// Identity is the subject user: a login plus every email their commits may carry.
type Identity struct {
	Login  string
	Emails []string
}

// IsLogin reports whether login names the subject user.
func (id Identity) IsLogin(login string) bool {
	return login != "" && strings.EqualFold(login, id.Login)
}

// HasEmail reports whether email is one of the subject's known emails.
func (id Identity) HasEmail(email string) bool {
	if email == "" {
		return false
	}
	for _, e := range id.Emails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// MatchesCommit reports whether a commit with the given author and committer
// identities is attributable to the subject.
func (id Identity) MatchesCommit(authorLogin, committerLogin, authorEmail, committerEmail string) bool {
	return id.IsLogin(authorLogin) || id.IsLogin(committerLogin) ||
		id.HasEmail(authorEmail) || id.HasEmail(committerEmail)
}

// RepoRef identifies a repository and, when known, its primary language.
type RepoRef struct {
	Owner         string
	Name          string
	Language      string
	LanguageKnown bool
}

// FullName returns owner/name.
func (r RepoRef) FullName() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// ParseRepoRef splits an "owner/name" string.
func ParseRepoRef(fullName string) RepoRef {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return RepoRef{Name: fullName}
	}
	return RepoRef{Owner: owner, Name: name}
}

// CommitRecord is a single commit attributed to the subject.
type CommitRecord struct {
	Repo    RepoRef
	SHA     string
	Message string
	Date    time.Time
}

// PullRequestItem is a pull request as reported by the remote API.
type PullRequestItem struct {
	ID     int64
	Owner  string
	Repo   string
	Number int
	Title  string
	State  string
	Merged bool
}

// IssueItem is an issue opened by the subject.
type IssueItem struct {
	ID     int64
	Owner  string
	Repo   string
	Number int
	Title  string
}

// RawActivity is everything a fetcher collected for one window.
type RawActivity struct {
	// Touched lists repositories the subject acted on even without commits.
	Touched []RepoRef
	// Metadata lists repositories seen during discovery, used for language lookup.
	Metadata     []RepoRef
	Commits      []CommitRecord
	PullRequests []PullRequestItem
	Issues       []IssueItem
}

// RepoActivity is the per-repository rollup.
type RepoActivity struct {
	Name         string
	Owner        string
	Language     string
	Commits      int
	Messages     []string
	PullRequests []int
}

// FullName returns owner/name.
func (r RepoActivity) FullName() string {
	return RepoRef{Owner: r.Owner, Name: r.Name}.FullName()
}

// PullRequestRecord is a pull request as stored in the summary log.
type PullRequestRecord struct {
	Title  string `json:"title"`
	Repo   string `json:"repo"`
	Org    string `json:"org"`
	State  string `json:"state"`
	Number int    `json:"number"`
}

// Activity is the aggregated view of one window.
type Activity struct {
	Window       Window
	Repos        []RepoActivity
	CommitCount  int
	PullRequests []PullRequestRecord
	PRsOpened    int
	PRsMerged    int
	PRsClosed    int
	Issues       int
	Languages    []string
	Messages     []string
}

// RepoNames returns the repository names in order.
func (a Activity) RepoNames() []string {
	names := make([]string, 0, len(a.Repos))
	for _, r := range a.Repos {
		names = append(names, r.Name)
	}
	return names
}

// Stats holds the entry counters.
type Stats struct {
	Commits     int `json:"commits"`
	PRs         int `json:"prs"`
	ReposActive int `json:"repos_active"`
}

// WeeklySummaryEntry is one dated record in the summary log.
type WeeklySummaryEntry struct {
	WeekStart     string              `json:"week_start"`
	WeekEnd       string              `json:"week_end"`
	Generated     string              `json:"generated"`
	Trigger       string              `json:"trigger"`
	Summary       string              `json:"summary"`
	Highlights    []string            `json:"highlights"`
	Repos         []string            `json:"repos"`
	PRs           []PullRequestRecord `json:"prs"`
	RepoOrgs      map[string]string   `json:"repo_orgs,omitempty"`
	RepoLanguages map[string]string   `json:"repo_languages,omitempty"`
	Languages     []string            `json:"languages"`
	Stats         Stats               `json:"stats"`
}

// SummaryLog is the persisted document.
type SummaryLog struct {
	Summaries []WeeklySummaryEntry `json:"summaries"`
}
