// Package metrics records run counters in a private Prometheus registry and
// writes them out for a node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/geleus/weekly-summary/internal/model"
)

// Request outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder holds the metrics of a single run.
type Recorder struct {
	registry *prometheus.Registry

	// requests counts remote API calls.
	// Labels:
	//   - endpoint: logical endpoint (e.g., "list_repos", "search_issues")
	//   - outcome: "ok" or "error"
	requests *prometheus.CounterVec

	commits     prometheus.Gauge
	reposActive prometheus.Gauge
	issues      prometheus.Gauge

	// pullRequests holds the PR tally per state (open, merged, closed).
	pullRequests *prometheus.GaugeVec

	runDuration prometheus.Gauge
	lastRun     *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with every metric registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weekly_summary_api_requests_total",
				Help: "Remote API requests issued during the run",
			},
			[]string{"endpoint", "outcome"},
		),
		commits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weekly_summary_commits",
			Help: "Commits attributed to the subject in the window",
		}),
		reposActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weekly_summary_repos_active",
			Help: "Repositories touched in the window",
		}),
		issues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weekly_summary_issues_opened",
			Help: "Issues opened in the window",
		}),
		pullRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weekly_summary_pull_requests",
				Help: "Pull requests in the window by state",
			},
			[]string{"state"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weekly_summary_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weekly_summary_last_run_timestamp_seconds",
				Help: "Unix time the last run finished, by result",
			},
			[]string{"result"},
		),
	}
	r.registry.MustRegister(r.requests, r.commits, r.reposActive, r.issues,
		r.pullRequests, r.runDuration, r.lastRun)
	return r
}

// ObserveRequest counts one API call.
func (r *Recorder) ObserveRequest(endpoint string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.requests.WithLabelValues(endpoint, outcome).Inc()
}

// Requests returns the request counter for one endpoint and outcome.
func (r *Recorder) Requests(endpoint, outcome string) prometheus.Counter {
	return r.requests.WithLabelValues(endpoint, outcome)
}

// SetActivity publishes the aggregate counters.
func (r *Recorder) SetActivity(a model.Activity) {
	r.commits.Set(float64(a.CommitCount))
	r.reposActive.Set(float64(len(a.Repos)))
	r.issues.Set(float64(a.Issues))
	r.pullRequests.WithLabelValues(model.StateOpen).Set(float64(a.PRsOpened))
	r.pullRequests.WithLabelValues(model.StateMerged).Set(float64(a.PRsMerged))
	r.pullRequests.WithLabelValues(model.StateClosed).Set(float64(a.PRsClosed))
}

// ObserveRun records how the run ended. result is e.g. "written", "skipped" or "failed".
func (r *Recorder) ObserveRun(result string, started, finished time.Time) {
	r.runDuration.Set(finished.Sub(started).Seconds())
	r.lastRun.WithLabelValues(result).Set(float64(finished.Unix()))
}

// LastRun returns the last-run timestamp gauge for result.
func (r *Recorder) LastRun(result string) prometheus.Gauge {
	return r.lastRun.WithLabelValues(result)
}

// WriteTextfile writes every metric in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
