package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geleus/weekly-summary/internal/config"
	"github.com/geleus/weekly-summary/internal/model"
)

// ErrUnknownStrategy is returned by New for an unrecognised strategy name.
var ErrUnknownStrategy = errors.New("unknown fetch strategy")

// Fetcher discovers the subject's activity inside a window.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, w model.Window) (*model.RawActivity, error)
}

// New returns the strategy named by cfg.Strategy. cfg.Username must be set.
func New(client *Client, cfg config.Config, logger *slog.Logger) (Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := cfg.Identity()
	pushed := &PushedStrategy{client: client, identity: id, logger: logger}

	switch cfg.Strategy {
	case config.StrategyPushed, "":
		return pushed, nil
	case config.StrategySearch:
		return &SearchStrategy{client: client, identity: id, fallback: pushed, logger: logger}, nil
	case config.StrategyEvents:
		return &EventsStrategy{client: client, identity: id, orgs: cfg.Orgs, logger: logger}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// collectPullRequestsAndIssues fills in the search-based PR and issue items.
func collectPullRequestsAndIssues(ctx context.Context, client *Client, id model.Identity, w model.Window, raw *model.RawActivity) {
	raw.PullRequests = append(raw.PullRequests, client.SearchPullRequests(ctx, id.Login, w)...)
	raw.Issues = append(raw.Issues, client.SearchIssues(ctx, id.Login, w)...)
}

// PushedStrategy walks the repositories pushed to during the window and
// lists each one's commits.
type PushedStrategy struct {
	client   *Client
	identity model.Identity
	logger   *slog.Logger
}

// Name implements Fetcher.
func (s *PushedStrategy) Name() string { return config.StrategyPushed }

// Fetch implements Fetcher.
func (s *PushedStrategy) Fetch(ctx context.Context, w model.Window) (*model.RawActivity, error) {
	repos, err := s.client.ActiveRepos(ctx, s.identity.Login, w)
	if err != nil {
		return nil, err
	}
	s.logger.Info("repos pushed this week", "count", len(repos))

	raw := &model.RawActivity{Metadata: repos}
	for _, repo := range repos {
		commits, err := s.client.RepoCommits(ctx, repo, w, s.identity)
		if err != nil {
			s.logger.Warn("commit listing failed, skipping rest of repo", "repo", repo.FullName(), "error", err)
		}
		s.logger.Info("repo commits", "repo", repo.FullName(), "language", repo.Language, "commits", len(commits))
		raw.Commits = append(raw.Commits, commits...)
	}

	collectPullRequestsAndIssues(ctx, s.client, s.identity, w, raw)
	return raw, nil
}

// SearchStrategy uses the cross-repository commit search and falls back to
// another strategy when the search finds nothing.
type SearchStrategy struct {
	client   *Client
	identity model.Identity
	fallback Fetcher
	logger   *slog.Logger
}

// Name implements Fetcher.
func (s *SearchStrategy) Name() string { return config.StrategySearch }

// Fetch implements Fetcher.
func (s *SearchStrategy) Fetch(ctx context.Context, w model.Window) (*model.RawActivity, error) {
	dateRange := fmt.Sprintf("committer-date:%s..%s", w.StartString(), w.EndString())
	queries := []string{fmt.Sprintf("author:%s %s", s.identity.Login, dateRange)}
	for _, email := range s.identity.Emails {
		queries = append(queries, fmt.Sprintf("author-email:%s %s", email, dateRange))
	}

	raw := &model.RawActivity{}
	seen := make(map[string]bool)
	for i, q := range queries {
		commits, err := s.client.SearchCommits(ctx, q, w)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			s.logger.Warn("commit search failed", "query", q, "error", err)
			continue
		}
		for _, c := range commits {
			if seen[c.SHA] {
				continue
			}
			seen[c.SHA] = true
			raw.Commits = append(raw.Commits, c)
		}
	}

	if len(raw.Commits) == 0 && s.fallback != nil {
		s.logger.Info("commit search found nothing, falling back", "strategy", s.fallback.Name())
		return s.fallback.Fetch(ctx, w)
	}
	s.logger.Info("commit search", "commits", len(raw.Commits))

	collectPullRequestsAndIssues(ctx, s.client, s.identity, w, raw)
	return raw, nil
}
