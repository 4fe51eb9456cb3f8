package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geleus/weekly-summary/internal/config"
	"github.com/geleus/weekly-summary/internal/model"
)

// --- Test Setup ---

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"name":"widget","owner":{"login":"octocat"},"language":"Go","pushed_at":"2024-01-05T10:00:00Z"},
			{"name":"stale","owner":{"login":"octocat"},"language":"C","pushed_at":"2023-11-01T10:00:00Z"}]`)
	})
	mux.HandleFunc("/repos/octocat/widget/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"sha":"a1","commit":{"message":"add parser","author":{"date":"2024-01-02T10:00:00Z"}},"author":{"login":"octocat"}},
			{"sha":"a2","commit":{"message":"Merge branch 'main'","author":{"date":"2024-01-03T10:00:00Z"}},"author":{"login":"octocat"}}]`)
	})
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"total_count":0,"items":[]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// setupTests writes a config pointing at a fake GitHub API and returns it.
func setupTests(t *testing.T) config.Config {
	t.Helper()
	for _, k := range []string{config.EnvGitHubToken, config.EnvGitHubTokenAlt, config.EnvAnthropicKey, config.EnvUsername} {
		t.Setenv(k, "")
	}
	t.Setenv(config.EnvTrigger, "test")
	dir := t.TempDir()
	chdir(t, dir)

	srv := fakeGitHub(t)
	body := "username: octocat\n" +
		"data_dir: data\n" +
		"metrics_file: weekly_summary.prom\n" +
		"api_base_url: " + srv.URL + "\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(config.DefaultPath, []byte(body), 0o644))

	cfg, err := config.Load(config.DefaultPath, true)
	require.NoError(t, err)

	defaultLogger := slog.Default()
	t.Cleanup(func() { slog.SetDefault(defaultLogger) })
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return cfg
}

// executeCommandText captures plain text output from a command and the exit
// code it requested.
func executeCommandText(t *testing.T, args ...string) (string, int) {
	t.Helper()
	b := new(bytes.Buffer)

	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs(args)

	// Reset flags to default values before each run
	rootCmd.PersistentFlags().Set("config", config.DefaultPath)
	rootCmd.Flags().Set("dry-run", "false")
	rootCmd.Flags().Set("no-llm", "false")
	rootCmd.Flags().Set("strategy", "")
	rootCmd.Flags().Set("week-end", "")
	showCmd.Flags().Set("limit", "1")
	showCmd.Flags().Set("copy", "false")
	chartCmd.Flags().Set("out", "weekly-summary.html")

	code := 0
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() { exitFunc = os.Exit })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("command execution failed: %v", err)
	}
	return b.String(), code
}

func seedLog(t *testing.T, cfg config.Config) {
	t.Helper()
	log := model.SummaryLog{Summaries: []model.WeeklySummaryEntry{
		{
			WeekStart: "2024-01-08", WeekEnd: "2024-01-14",
			Summary:    "Second week.",
			Highlights: []string{"widget: parser"},
			Repos:      []string{"widget"},
			Stats:      model.Stats{Commits: 4, ReposActive: 1},
		},
		{
			WeekStart: "2024-01-01", WeekEnd: "2024-01-07",
			Summary: "First week.",
			Stats:   model.Stats{Commits: 1},
		},
	}}
	data, err := json.Marshal(log)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.SummariesPath()), 0o755))
	require.NoError(t, os.WriteFile(cfg.SummariesPath(), data, 0o644))
}

// --- Test Functions ---

func TestSummaryCommand(t *testing.T) {
	cfg := setupTests(t)

	_, code := executeCommandText(t, "--week-end", "2024-01-07", "--no-llm")
	require.Zero(t, code)

	data, err := os.ReadFile(cfg.SummariesPath())
	require.NoError(t, err)
	var log model.SummaryLog
	require.NoError(t, json.Unmarshal(data, &log))

	require.Len(t, log.Summaries, 1)
	e := log.Summaries[0]
	assert.Equal(t, "2024-01-01", e.WeekStart)
	assert.Equal(t, "test", e.Trigger)
	assert.Equal(t, "Worked on widget with 2 commits.", e.Summary)
	assert.Equal(t, []string{"add parser"}, e.Highlights)
	assert.Equal(t, []string{"Go"}, e.Languages)
	assert.Equal(t, model.Stats{Commits: 2, ReposActive: 1}, e.Stats)

	metrics, err := os.ReadFile("weekly_summary.prom")
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "weekly_summary_commits 2")
}

func TestSummaryCommandDryRun(t *testing.T) {
	cfg := setupTests(t)

	output, code := executeCommandText(t, "--week-end", "2024-01-07", "--no-llm", "--dry-run")
	require.Zero(t, code)

	var e model.WeeklySummaryEntry
	require.NoError(t, json.Unmarshal([]byte(output), &e))
	assert.Equal(t, "2024-01-07", e.WeekEnd)

	_, err := os.Stat(cfg.SummariesPath())
	assert.True(t, os.IsNotExist(err))
}

func TestSummaryCommandErrors(t *testing.T) {
	setupTests(t)

	t.Run("bad week end", func(t *testing.T) {
		_, code := executeCommandText(t, "--week-end", "next friday")
		assert.Equal(t, 1, code)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, code := executeCommandText(t, "--strategy", "graphql")
		assert.Equal(t, 1, code)
	})

	t.Run("missing explicit config", func(t *testing.T) {
		_, code := executeCommandText(t, "--config", "nope.yml")
		assert.Equal(t, 1, code)
	})
}

func TestShowCommand(t *testing.T) {
	color.NoColor = true
	cfg := setupTests(t)

	t.Run("empty log", func(t *testing.T) {
		output, code := executeCommandText(t, "show")
		require.Zero(t, code)
		assert.Equal(t, "No summaries yet in "+cfg.SummariesPath()+"\n", output)
	})

	seedLog(t, cfg)

	t.Run("latest week", func(t *testing.T) {
		output, code := executeCommandText(t, "show")
		require.Zero(t, code)
		expected := "Week 2 (2024-01-08 to 2024-01-14)  4 commits · 1 repo\n" +
			"└── widget\n" +
			"    └── widget: parser\n" +
			"  “Second week.”\n"
		assert.Equal(t, expected, output)
	})

	t.Run("limit", func(t *testing.T) {
		output, code := executeCommandText(t, "show", "--limit", "5")
		require.Zero(t, code)
		assert.Equal(t, 2, strings.Count(output, "Week "))
	})
}

func TestChartCommand(t *testing.T) {
	cfg := setupTests(t)

	_, code := executeCommandText(t, "chart")
	assert.Equal(t, 1, code, "an empty log has nothing to chart")

	seedLog(t, cfg)
	out := filepath.Join(t.TempDir(), "activity.html")
	output, code := executeCommandText(t, "chart", "--out", out)
	require.Zero(t, code)
	assert.Equal(t, "Chart written to "+out+" (2 weeks)\n", output)

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Weekly GitHub activity")
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
