package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geleus/weekly-summary/internal/config"
	"github.com/geleus/weekly-summary/internal/metrics"
	"github.com/geleus/weekly-summary/internal/model"
	"github.com/geleus/weekly-summary/internal/summarylog"
	"github.com/geleus/weekly-summary/internal/synopsis"
)

var fixedNow = time.Date(2024, 1, 7, 18, 30, 0, 0, time.UTC)

type fakeFetcher struct {
	raw    *model.RawActivity
	err    error
	window model.Window
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(_ context.Context, w model.Window) (*model.RawActivity, error) {
	f.window = w
	return f.raw, f.err
}

type countingCompleter struct {
	reply string
	calls int
}

func (c *countingCompleter) Complete(context.Context, string) (string, error) {
	c.calls++
	return c.reply, nil
}

type fixture struct {
	cfg       config.Config
	fetcher   *fakeFetcher
	completer *countingCompleter
	rec       *metrics.Recorder
	runner    *Runner
}

func newFixture(t *testing.T, raw *model.RawActivity) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Username = "octocat"
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Trigger = "schedule"

	f := &fixture{
		cfg:       cfg,
		fetcher:   &fakeFetcher{raw: raw},
		completer: &countingCompleter{reply: `{"summary":"Shipped the widget parser.","highlights":["widget: parser"]}`},
		rec:       metrics.NewRecorder(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gen := synopsis.NewGenerator(f.completer, cfg.Identity(), logger)
	f.runner = NewRunner(cfg, f.fetcher, nil, gen, f.rec, logger)
	f.runner.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) writeNotes(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.cfg.DataDir, 0o755))
	require.NoError(t, os.WriteFile(f.cfg.NotesPath(), []byte(text), 0o644))
}

func (f *fixture) readLog(t *testing.T) model.SummaryLog {
	t.Helper()
	log, err := summarylog.NewStore(f.cfg.SummariesPath()).Load()
	require.NoError(t, err)
	return log
}

func activeWeek() *model.RawActivity {
	widget := model.RepoRef{Owner: "octocat", Name: "widget", Language: "Go", LanguageKnown: true}
	return &model.RawActivity{
		Commits: []model.CommitRecord{
			{Repo: widget, SHA: "a", Message: "add parser"},
			{Repo: widget, SHA: "b", Message: "fix bug"},
		},
		PullRequests: []model.PullRequestItem{
			{ID: 1, Owner: "acme", Repo: "gadget", Number: 3, Title: "Ship it", State: "closed", Merged: true},
			{ID: 2, Owner: "octocat", Repo: "widget", Number: 5, Title: "Parser", State: "open"},
			{ID: 3, Owner: "octocat", Repo: "widget", Number: 6, Title: "Dropped", State: "closed"},
		},
	}
}

func TestRunSkipsEmptyWeek(t *testing.T) {
	f := newFixture(t, &model.RawActivity{})

	res, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.False(t, res.Written)
	assert.Zero(t, f.completer.calls, "no synopsis call for an empty week")
	_, err = os.Stat(f.cfg.SummariesPath())
	assert.True(t, os.IsNotExist(err), "log must not be created")
	assert.Equal(t, float64(fixedNow.Unix()), testutil.ToFloat64(f.rec.LastRun(ResultSkipped)))
}

func TestRunNotesAloneAreEnough(t *testing.T) {
	f := newFixture(t, &model.RawActivity{})
	f.writeNotes(t, "Wrote a design doc.")

	res, err := f.runner.Run(context.Background(), Options{NoLLM: true})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, "Worked on various projects with 0 commits.", res.Entry.Summary)
}

func TestRunWritesEntry(t *testing.T) {
	f := newFixture(t, activeWeek())
	f.writeNotes(t, "Reviewed the roadmap.\n")

	res, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.True(t, res.Written)

	assert.Equal(t, "2024-01-01", f.fetcher.window.StartString())
	assert.Equal(t, "2024-01-07", f.fetcher.window.EndString())
	assert.Equal(t, 1, f.completer.calls)

	log := f.readLog(t)
	require.Len(t, log.Summaries, 1)
	e := log.Summaries[0]
	assert.Equal(t, "2024-01-01", e.WeekStart)
	assert.Equal(t, "2024-01-07", e.WeekEnd)
	assert.Equal(t, "2024-01-07T18:30:00Z", e.Generated)
	assert.Equal(t, "schedule", e.Trigger)
	assert.Equal(t, "Shipped the widget parser.", e.Summary)
	assert.Equal(t, []string{"gadget", "widget"}, e.Repos)
	assert.Equal(t, map[string]string{"gadget": "acme"}, e.RepoOrgs)
	assert.Equal(t, map[string]string{"widget": "Go"}, e.RepoLanguages)
	assert.Equal(t, model.Stats{Commits: 2, PRs: 2, ReposActive: 2}, e.Stats)
	require.Len(t, e.PRs, 3)
	assert.Equal(t, model.StateMerged, e.PRs[0].State)

	notes, err := summarylog.NewNotes(f.cfg.NotesPath()).Read()
	require.NoError(t, err)
	assert.Empty(t, notes, "notes are cleared after a write")
}

func TestRunTwiceKeepsOneEntry(t *testing.T) {
	f := newFixture(t, activeWeek())

	_, err := f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	f.completer.reply = `{"summary":"Second pass.","highlights":[]}`
	_, err = f.runner.Run(context.Background(), Options{})
	require.NoError(t, err)

	log := f.readLog(t)
	require.Len(t, log.Summaries, 1)
	assert.Equal(t, "Second pass.", log.Summaries[0].Summary)
}

func TestRunWindowOverride(t *testing.T) {
	f := newFixture(t, activeWeek())
	w, err := model.WeekEndingOn("2023-12-31")
	require.NoError(t, err)

	_, err = f.runner.Run(context.Background(), Options{Window: &w, NoLLM: true})
	require.NoError(t, err)
	_, err = f.runner.Run(context.Background(), Options{NoLLM: true})
	require.NoError(t, err)

	log := f.readLog(t)
	require.Len(t, log.Summaries, 2)
	assert.Equal(t, "2024-01-01", log.Summaries[0].WeekStart)
	assert.Equal(t, "2023-12-25", log.Summaries[1].WeekStart)
	assert.Zero(t, f.completer.calls)
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, activeWeek())
	f.writeNotes(t, "keep me")

	var out bytes.Buffer
	res, err := f.runner.Run(context.Background(), Options{DryRun: true, Out: &out})
	require.NoError(t, err)
	assert.False(t, res.Written)

	var printed model.WeeklySummaryEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
	assert.Equal(t, "2024-01-01", printed.WeekStart)

	_, err = os.Stat(f.cfg.SummariesPath())
	assert.True(t, os.IsNotExist(err))
	notes, err := summarylog.NewNotes(f.cfg.NotesPath()).Read()
	require.NoError(t, err)
	assert.Equal(t, "keep me", notes)
}

func TestRunFailures(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		f := newFixture(t, nil)
		f.fetcher.err = errors.New("401 Bad credentials")

		_, err := f.runner.Run(context.Background(), Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetching activity")
		assert.Zero(t, f.completer.calls)
	})

	t.Run("malformed synopsis", func(t *testing.T) {
		f := newFixture(t, activeWeek())
		f.writeNotes(t, "still here")
		f.completer.reply = "Here you go!"

		_, err := f.runner.Run(context.Background(), Options{})
		require.ErrorIs(t, err, synopsis.ErrMalformedResponse)

		_, statErr := os.Stat(f.cfg.SummariesPath())
		assert.True(t, os.IsNotExist(statErr), "no partial log write")
		notes, err := summarylog.NewNotes(f.cfg.NotesPath()).Read()
		require.NoError(t, err)
		assert.Equal(t, "still here", notes)
		assert.Equal(t, float64(fixedNow.Unix()), testutil.ToFloat64(f.rec.LastRun(ResultFailed)))
	})
}

func TestBuildEntry(t *testing.T) {
	a := model.Activity{
		Window: model.Window{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		},
		Repos:        []model.RepoActivity{{Name: "dotfiles", Owner: "OctoCat"}},
		PullRequests: []model.PullRequestRecord{},
		Languages:    []string{},
	}
	e := BuildEntry(a, synopsis.Synopsis{Summary: "x"}, "manual", model.Identity{Login: "octocat"}, fixedNow.In(time.FixedZone("EST", -5*3600)))

	assert.Equal(t, "2024-01-07T18:30:00Z", e.Generated)
	assert.Nil(t, e.RepoOrgs, "owner matching the login case-insensitively is not an org")
	assert.Nil(t, e.RepoLanguages)
	assert.NotNil(t, e.Highlights)
	assert.NotNil(t, e.PRs)
	assert.Equal(t, []string{"dotfiles"}, e.Repos)
}
