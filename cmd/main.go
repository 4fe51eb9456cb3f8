package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/geleus/weekly-summary/internal/chart"
	"github.com/geleus/weekly-summary/internal/clipboard"
	"github.com/geleus/weekly-summary/internal/config"
	"github.com/geleus/weekly-summary/internal/fetch"
	"github.com/geleus/weekly-summary/internal/logging"
	"github.com/geleus/weekly-summary/internal/metrics"
	"github.com/geleus/weekly-summary/internal/model"
	"github.com/geleus/weekly-summary/internal/pipeline"
	"github.com/geleus/weekly-summary/internal/report"
	"github.com/geleus/weekly-summary/internal/summarylog"
	"github.com/geleus/weekly-summary/internal/synopsis"
)

// --- Cobra Command Definitions ---

var (
	// Used for flags.
	configPath string
	dryRun     bool
	noLLM      bool
	strategy   string
	weekEnd    string
	showLimit  int
	showCopy   bool
	chartOut   string

	// exitFunc is replaced in tests.
	exitFunc = os.Exit

	// rootCmd runs the weekly summary when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "weekly-summary",
		Short: "Summarize a week of GitHub activity into a JSON log.",
		Long: `weekly-summary collects the last seven days of a user's GitHub activity, asks a language model
for a short synopsis (or builds one without it), and merges the result into a JSON log keyed by week.`,
		Args: cobra.NoArgs,
		Run:  runSummaryCommand,
	}

	// showCmd prints recent entries
	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the most recent weekly summaries.",
		Long:  `Prints the newest entries of the summary log as a tree of repositories and highlights.`,
		Args:  cobra.NoArgs,
		Run:   runShowCommand,
	}

	// chartCmd renders the activity chart
	chartCmd = &cobra.Command{
		Use:   "chart",
		Short: "Render an HTML chart of weekly activity.",
		Long:  `Renders commits, pull requests and active repositories per week from the summary log as an HTML line chart.`,
		Args:  cobra.NoArgs,
		Run:   runChartCommand,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitFunc(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the YAML config file.")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the entry instead of writing the log.")
	rootCmd.Flags().BoolVar(&noLLM, "no-llm", false, "Skip the language model and use the fallback summary.")
	rootCmd.Flags().StringVar(&strategy, "strategy", "", "Activity discovery strategy: pushed, search or events.")
	rootCmd.Flags().StringVar(&weekEnd, "week-end", "", "Last day of the week to summarize (YYYY-MM-DD). Defaults to today.")

	showCmd.Flags().IntVar(&showLimit, "limit", 1, "Number of weeks to print.")
	showCmd.Flags().BoolVar(&showCopy, "copy", false, "Also copy the report to the clipboard.")

	chartCmd.Flags().StringVar(&chartOut, "out", "weekly-summary.html", "Path of the HTML file to write.")

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(chartCmd)
}

// --- Main Application Entry Point ---

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	Execute()
}

// --- Command Execution Logic ---

func fail(msg string, err error, args ...any) {
	slog.Error(msg, append([]any{"error", err}, args...)...)
	exitFunc(1)
}

func runSummaryCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Read(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		fail("failed to load config", err, "path", configPath)
		return
	}
	if strategy != "" {
		cfg.Strategy = strategy
	}
	if err := cfg.Validate(); err != nil {
		fail("invalid configuration", err, "path", configPath)
		return
	}

	var window *model.Window
	if weekEnd != "" {
		w, err := model.WeekEndingOn(weekEnd)
		if err != nil {
			fail("invalid week end, use YYYY-MM-DD", err, "week_end", weekEnd)
			return
		}
		window = &w
	}

	logger, closer, err := logging.New(cfg.Log, cmd.OutOrStdout())
	if err != nil {
		fail("failed to set up logging", err)
		return
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx := cmd.Context()
	rec := metrics.NewRecorder()

	client, err := fetch.NewClient(ctx, cfg, rec, logger)
	if err != nil {
		fail("failed to create GitHub client", err)
		return
	}
	if cfg.Username == "" {
		login, err := client.ResolveLogin(ctx)
		if err != nil {
			fail("could not determine GitHub username", err)
			return
		}
		cfg = cfg.WithUsername(login)
	}
	if !client.Authenticated() {
		logger.Warn("no GitHub token set, only public activity is visible", "env", config.EnvGitHubToken)
	}

	fetcher, err := fetch.New(client, cfg, logger)
	if err != nil {
		fail("failed to select fetch strategy", err, "strategy", cfg.Strategy)
		return
	}

	var completer synopsis.Completer
	if cfg.LLMEnabled() {
		completer = synopsis.NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens, cfg.LLMTimeout)
	}
	generator := synopsis.NewGenerator(completer, cfg.Identity(), logger)

	runner := pipeline.NewRunner(cfg, fetcher, client, generator, rec, logger)
	_, runErr := runner.Run(ctx, pipeline.Options{
		DryRun: dryRun,
		NoLLM:  noLLM,
		Window: window,
		Out:    cmd.OutOrStdout(),
	})

	if cfg.MetricsFile != "" {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("could not write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		fail("weekly summary failed", runErr)
		return
	}
}

func runShowCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Read(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		fail("failed to load config", err, "path", configPath)
		return
	}

	store := summarylog.NewStore(cfg.SummariesPath())
	log, err := store.Load()
	if err != nil {
		fail("failed to load summary log", err, "path", store.Path())
		return
	}

	out := cmd.OutOrStdout()
	if len(log.Summaries) == 0 {
		fmt.Fprintf(out, "No summaries yet in %s\n", store.Path())
		return
	}

	entries := log.Summaries
	if showLimit > 0 && showLimit < len(entries) {
		entries = entries[:showLimit]
	}

	if !showCopy {
		report.PrintEntries(out, entries)
		return
	}

	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	var buf bytes.Buffer
	report.PrintEntries(&buf, entries)
	fmt.Fprint(out, buf.String())
	if err := clipboard.CopyText(buf.String()); err != nil {
		slog.Warn("could not copy report to clipboard", "error", err)
		return
	}
	fmt.Fprintln(out, "\nReport copied to clipboard.")
}

func runChartCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Read(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		fail("failed to load config", err, "path", configPath)
		return
	}

	store := summarylog.NewStore(cfg.SummariesPath())
	log, err := store.Load()
	if err != nil {
		fail("failed to load summary log", err, "path", store.Path())
		return
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, log, "Weekly GitHub activity"); err != nil {
		if errors.Is(err, chart.ErrEmptyLog) {
			fail("nothing to chart", err, "path", store.Path())
			return
		}
		fail("failed to render chart", err)
		return
	}
	if err := os.WriteFile(chartOut, buf.Bytes(), 0o644); err != nil {
		fail("failed to write chart", err, "path", chartOut)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Chart written to %s (%d weeks)\n", chartOut, len(log.Summaries))
}
