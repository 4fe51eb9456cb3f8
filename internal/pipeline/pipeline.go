// Package pipeline runs one weekly summary: fetch, aggregate, synthesize,
// merge into the log and clear the notes.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/geleus/weekly-summary/internal/aggregate"
	"github.com/geleus/weekly-summary/internal/config"
	"github.com/geleus/weekly-summary/internal/fetch"
	"github.com/geleus/weekly-summary/internal/metrics"
	"github.com/geleus/weekly-summary/internal/model"
	"github.com/geleus/weekly-summary/internal/summarylog"
	"github.com/geleus/weekly-summary/internal/synopsis"
)

// Run results recorded in metrics.
const (
	ResultWritten = "written"
	ResultSkipped = "skipped"
	ResultDryRun  = "dry_run"
	ResultFailed  = "failed"
)

// Options adjust a single run.
type Options struct {
	// DryRun prints the entry to Out instead of writing the log.
	DryRun bool
	// NoLLM forces the fallback synopsis.
	NoLLM bool
	// Window overrides the trailing week.
	Window *model.Window
	Out    io.Writer
}

// Result describes what a run did.
type Result struct {
	Window   model.Window
	Activity model.Activity
	Entry    *model.WeeklySummaryEntry
	Skipped  bool
	Written  bool
}

// Runner holds the collaborators of a run.
type Runner struct {
	cfg       config.Config
	fetcher   fetch.Fetcher
	languages aggregate.LanguageResolver
	generator *synopsis.Generator
	store     *summarylog.Store
	notes     *summarylog.Notes
	metrics   *metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner wires a Runner. languages may be nil to skip language lookups.
func NewRunner(cfg config.Config, fetcher fetch.Fetcher, languages aggregate.LanguageResolver, generator *synopsis.Generator, rec *metrics.Recorder, logger *slog.Logger) *Runner {
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		fetcher:   fetcher,
		languages: languages,
		generator: generator,
		store:     summarylog.NewStore(cfg.SummariesPath()),
		notes:     summarylog.NewNotes(cfg.NotesPath()),
		metrics:   rec,
		logger:    logger,
		now:       time.Now,
	}
}

// Run performs one summary run.
func (r *Runner) Run(ctx context.Context, opts Options) (res Result, err error) {
	started := r.now()
	outcome := ResultFailed
	defer func() {
		r.metrics.ObserveRun(outcome, started, r.now())
	}()

	w := model.TrailingWeek(started)
	if opts.Window != nil {
		w = *opts.Window
	}
	res.Window = w
	r.logger.Info("weekly summary", "week_start", w.StartString(), "week_end", w.EndString(),
		"user", r.cfg.Username, "strategy", r.fetcher.Name())

	raw, err := r.fetcher.Fetch(ctx, w)
	if err != nil {
		return res, fmt.Errorf("fetching activity: %w", err)
	}

	activity := aggregate.Aggregate(ctx, raw, r.cfg.Identity(), w, r.languages, r.logger)
	res.Activity = activity
	r.metrics.SetActivity(activity)
	r.logger.Info("activity aggregated",
		"commits", activity.CommitCount,
		"repos", len(activity.Repos),
		"prs_opened", activity.PRsOpened,
		"prs_merged", activity.PRsMerged,
		"issues", activity.Issues,
		"languages", activity.Languages)

	notes, err := r.notes.Read()
	if err != nil {
		return res, err
	}

	if summarylog.ShouldSkip(activity, notes) {
		r.logger.Info("no activity or notes this week, skipping")
		outcome = ResultSkipped
		res.Skipped = true
		return res, nil
	}

	syn, err := r.generator.Generate(ctx, activity, notes, !opts.NoLLM)
	if err != nil {
		return res, err
	}
	entry := BuildEntry(activity, syn, r.cfg.Trigger, r.cfg.Identity(), r.now())
	res.Entry = &entry
	r.logger.Info("synopsis ready", "source", syn.Source, "summary", entry.Summary)

	if opts.DryRun {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		data, err := summarylog.Encode(entry)
		if err != nil {
			return res, err
		}
		if _, err := out.Write(data); err != nil {
			return res, fmt.Errorf("writing entry: %w", err)
		}
		outcome = ResultDryRun
		return res, nil
	}

	log, err := r.store.Load()
	if err != nil {
		return res, err
	}
	log = summarylog.Merge(log, entry)
	if err := r.store.Save(log); err != nil {
		return res, err
	}
	res.Written = true
	outcome = ResultWritten
	r.logger.Info("summary written", "path", r.store.Path(), "entries", len(log.Summaries))

	if err := r.notes.Clear(); err != nil {
		r.logger.Warn("could not clear notes", "error", err)
	}
	return res, nil
}

// BuildEntry assembles the log entry for activity and its synopsis.
func BuildEntry(a model.Activity, s synopsis.Synopsis, trigger string, id model.Identity, generated time.Time) model.WeeklySummaryEntry {
	entry := model.WeeklySummaryEntry{
		WeekStart:  a.Window.StartString(),
		WeekEnd:    a.Window.EndString(),
		Generated:  generated.UTC().Format(time.RFC3339),
		Trigger:    trigger,
		Summary:    s.Summary,
		Highlights: s.Highlights,
		Repos:      a.RepoNames(),
		PRs:        append([]model.PullRequestRecord{}, a.PullRequests...),
		Languages:  append([]string{}, a.Languages...),
		Stats: model.Stats{
			Commits:     a.CommitCount,
			PRs:         a.PRsOpened + a.PRsMerged,
			ReposActive: len(a.Repos),
		},
	}
	if entry.Highlights == nil {
		entry.Highlights = []string{}
	}

	orgs := make(map[string]string)
	languages := make(map[string]string)
	for _, r := range a.Repos {
		if r.Owner != "" && !id.IsLogin(r.Owner) {
			orgs[r.Name] = r.Owner
		}
		if r.Language != "" {
			languages[r.Name] = r.Language
		}
	}
	if len(orgs) > 0 {
		entry.RepoOrgs = orgs
	}
	if len(languages) > 0 {
		entry.RepoLanguages = languages
	}
	return entry
}
