// Package fetch collects a user's GitHub activity for a reporting window.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/geleus/weekly-summary/internal/config"
	"github.com/geleus/weekly-summary/internal/metrics"
	"github.com/geleus/weekly-summary/internal/model"
)

const perPage = 100

// rateLimitFloor is the remaining-request count below which a warning is logged.
const rateLimitFloor = 10

// Endpoint labels used for metrics and log records.
const (
	endpointUser         = "get_user"
	endpointListRepos    = "list_repos"
	endpointListCommits  = "list_commits"
	endpointSearchCommit = "search_commits"
	endpointSearchIssues = "search_issues"
	endpointEvents       = "list_events"
	endpointRepo         = "get_repo"
)

// Client wraps the GitHub REST client with per-request timeouts, metrics and
// best-effort rate-limit warnings.
type Client struct {
	gh              *github.Client
	authenticated   bool
	requestTimeout  time.Duration
	metadataTimeout time.Duration
	metrics         *metrics.Recorder
	logger          *slog.Logger
}

// NewClient builds a Client from cfg. Without a token only public data is visible.
func NewClient(ctx context.Context, cfg config.Config, rec *metrics.Recorder, logger *slog.Logger) (*Client, error) {
	var httpClient *http.Client
	if cfg.GitHubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	gh := github.NewClient(httpClient)

	if cfg.APIBaseURL != "" {
		base := cfg.APIBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid api_base_url %q: %w", cfg.APIBaseURL, err)
		}
		gh.BaseURL = u
	}

	if rec == nil {
		rec = metrics.NewRecorder()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		gh:              gh,
		authenticated:   cfg.GitHubToken != "",
		requestTimeout:  cfg.RequestTimeout,
		metadataTimeout: cfg.MetadataTimeout,
		metrics:         rec,
		logger:          logger,
	}, nil
}

// Authenticated reports whether requests carry a token.
func (c *Client) Authenticated() bool { return c.authenticated }

func (c *Client) call(ctx context.Context, endpoint string, timeout time.Duration, fn func(ctx context.Context) (*github.Response, error)) (*github.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := fn(ctx)
	c.metrics.ObserveRequest(endpoint, err)
	if resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining < rateLimitFloor {
		c.logger.Warn("GitHub rate limit nearly exhausted",
			"endpoint", endpoint,
			"remaining", resp.Rate.Remaining,
			"reset", resp.Rate.Reset.Time)
	}
	return resp, err
}

// ResolveLogin returns the login of the token owner.
func (c *Client) ResolveLogin(ctx context.Context) (string, error) {
	var user *github.User
	_, err := c.call(ctx, endpointUser, c.requestTimeout, func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		user, resp, err = c.gh.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("resolving authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}

// Language returns the primary language of owner/name.
func (c *Client) Language(ctx context.Context, owner, name string) (string, error) {
	var repo *github.Repository
	_, err := c.call(ctx, endpointRepo, c.metadataTimeout, func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		repo, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("fetching %s/%s metadata: %w", owner, name, err)
	}
	return repo.GetLanguage(), nil
}

// ActiveRepos lists repositories pushed to since the window start. The
// listing is sorted by push time, so it stops at the first older repository.
// A failure on the first page is returned; later failures end the listing early.
func (c *Client) ActiveRepos(ctx context.Context, login string, w model.Window) ([]model.RepoRef, error) {
	var out []model.RepoRef
	for page := 1; page != 0; {
		repos, resp, err := c.listRepos(ctx, login, page)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("listing repositories: %w", err)
			}
			c.logger.Warn("repository listing failed, keeping partial result", "page", page, "error", err)
			break
		}
		for _, r := range repos {
			if r.PushedAt == nil {
				continue
			}
			if r.GetPushedAt().Time.Before(w.Since()) {
				return out, nil
			}
			out = append(out, repoRef(r))
		}
		page = resp.NextPage
	}
	return out, nil
}

func (c *Client) listRepos(ctx context.Context, login string, page int) ([]*github.Repository, *github.Response, error) {
	var repos []*github.Repository
	resp, err := c.call(ctx, endpointListRepos, c.requestTimeout, func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		list := github.ListOptions{PerPage: perPage, Page: page}
		if c.authenticated {
			repos, resp, err = c.gh.Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
				Sort:        "pushed",
				Direction:   "desc",
				ListOptions: list,
			})
		} else {
			repos, resp, err = c.gh.Repositories.ListByUser(ctx, login, &github.RepositoryListByUserOptions{
				Sort:        "pushed",
				Direction:   "desc",
				ListOptions: list,
			})
		}
		return resp, err
	})
	return repos, resp, err
}

// RepoCommits lists the commits in repo inside the window that belong to id.
// On error it returns the commits collected so far alongside the error.
func (c *Client) RepoCommits(ctx context.Context, repo model.RepoRef, w model.Window, id model.Identity) ([]model.CommitRecord, error) {
	var out []model.CommitRecord
	for page := 1; page != 0; {
		var commits []*github.RepositoryCommit
		resp, err := c.call(ctx, endpointListCommits, c.requestTimeout, func(ctx context.Context) (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)
			commits, resp, err = c.gh.Repositories.ListCommits(ctx, repo.Owner, repo.Name, &github.CommitsListOptions{
				Since:       w.Since(),
				Until:       w.Until(),
				ListOptions: github.ListOptions{PerPage: perPage, Page: page},
			})
			return resp, err
		})
		if err != nil {
			return out, fmt.Errorf("listing commits for %s: %w", repo.FullName(), err)
		}
		if len(commits) == 0 {
			break
		}
		for _, rc := range commits {
			commit := rc.GetCommit()
			if !id.MatchesCommit(rc.GetAuthor().GetLogin(), rc.GetCommitter().GetLogin(),
				commit.GetAuthor().GetEmail(), commit.GetCommitter().GetEmail()) {
				continue
			}
			out = append(out, model.CommitRecord{
				Repo:    repo,
				SHA:     rc.GetSHA(),
				Message: commit.GetMessage(),
				Date:    commit.GetAuthor().GetDate().Time,
			})
		}
		page = resp.NextPage
	}
	return out, nil
}

// SearchCommits runs a commit search query, ascending by committer date, and
// stops at the first commit past the window end.
func (c *Client) SearchCommits(ctx context.Context, query string, w model.Window) ([]model.CommitRecord, error) {
	var out []model.CommitRecord
	for page := 1; page != 0; {
		var result *github.CommitsSearchResult
		resp, err := c.call(ctx, endpointSearchCommit, c.requestTimeout, func(ctx context.Context) (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)
			result, resp, err = c.gh.Search.Commits(ctx, query, &github.SearchOptions{
				Sort:        "committer-date",
				Order:       "asc",
				ListOptions: github.ListOptions{PerPage: perPage, Page: page},
			})
			return resp, err
		})
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("searching commits %q: %w", query, err)
			}
			c.logger.Warn("commit search failed, keeping partial result", "query", query, "page", page, "error", err)
			break
		}
		for _, cr := range result.Commits {
			commit := cr.GetCommit()
			date := commit.GetCommitter().GetDate().Time
			if date.After(w.Until()) {
				return out, nil
			}
			r := cr.GetRepository()
			out = append(out, model.CommitRecord{
				Repo:    model.RepoRef{Owner: r.GetOwner().GetLogin(), Name: r.GetName()},
				SHA:     cr.GetSHA(),
				Message: commit.GetMessage(),
				Date:    date,
			})
		}
		page = resp.NextPage
	}
	return out, nil
}

// SearchPullRequests finds pull requests the login authored or was involved
// in, updated inside the window, deduplicated by id. Query failures are
// logged and skipped.
func (c *Client) SearchPullRequests(ctx context.Context, login string, w model.Window) []model.PullRequestItem {
	seen := make(map[int64]bool)
	var out []model.PullRequestItem
	for _, qualifier := range []string{"author", "involves"} {
		query := fmt.Sprintf("%s:%s updated:%s..%s type:pr", qualifier, login, w.StartString(), w.EndString())
		issues, err := c.searchIssues(ctx, query, "updated")
		if err != nil {
			c.logger.Warn("pull request search failed", "query", query, "error", err)
		}
		for _, is := range issues {
			if seen[is.GetID()] || !inWindow(w, is.GetUpdatedAt()) {
				continue
			}
			seen[is.GetID()] = true
			out = append(out, pullRequestItem(is))
		}
	}
	return out
}

// SearchIssues finds issues the login opened inside the window.
func (c *Client) SearchIssues(ctx context.Context, login string, w model.Window) []model.IssueItem {
	query := fmt.Sprintf("author:%s created:%s..%s type:issue", login, w.StartString(), w.EndString())
	issues, err := c.searchIssues(ctx, query, "created")
	if err != nil {
		c.logger.Warn("issue search failed", "query", query, "error", err)
	}
	out := make([]model.IssueItem, 0, len(issues))
	for _, is := range issues {
		if !inWindow(w, is.GetCreatedAt()) {
			continue
		}
		ref := repoFromURL(is.GetRepositoryURL())
		out = append(out, model.IssueItem{
			ID:     is.GetID(),
			Owner:  ref.Owner,
			Repo:   ref.Name,
			Number: is.GetNumber(),
			Title:  is.GetTitle(),
		})
	}
	return out
}

// searchIssues returns every page of an issue search; on error the pages
// fetched so far are returned with it.
func (c *Client) searchIssues(ctx context.Context, query, sort string) ([]*github.Issue, error) {
	var out []*github.Issue
	for page := 1; page != 0; {
		var result *github.IssuesSearchResult
		resp, err := c.call(ctx, endpointSearchIssues, c.requestTimeout, func(ctx context.Context) (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)
			result, resp, err = c.gh.Search.Issues(ctx, query, &github.SearchOptions{
				Sort:        sort,
				Order:       "desc",
				ListOptions: github.ListOptions{PerPage: perPage, Page: page},
			})
			return resp, err
		})
		if err != nil {
			return out, err
		}
		out = append(out, result.Issues...)
		page = resp.NextPage
	}
	return out, nil
}

// Events returns one page of the login's activity feed, or of their feed
// within org when org is non-empty.
func (c *Client) Events(ctx context.Context, login, org string, page int) ([]*github.Event, *github.Response, error) {
	var events []*github.Event
	resp, err := c.call(ctx, endpointEvents, c.requestTimeout, func(ctx context.Context) (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		opts := &github.ListOptions{PerPage: perPage, Page: page}
		if org == "" {
			events, resp, err = c.gh.Activity.ListEventsPerformedByUser(ctx, login, false, opts)
		} else {
			events, resp, err = c.gh.Activity.ListUserEventsForOrganization(ctx, org, login, opts)
		}
		return resp, err
	})
	return events, resp, err
}

// inWindow reports whether a search hit's timestamp falls inside w. Hits
// without a timestamp are kept.
func inWindow(w model.Window, ts github.Timestamp) bool {
	return ts.IsZero() || w.Contains(ts.Time)
}

func repoRef(r *github.Repository) model.RepoRef {
	return model.RepoRef{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		Language:      r.GetLanguage(),
		LanguageKnown: true,
	}
}

// repoFromURL extracts owner and name from an API repository URL such as
// https://api.github.com/repos/owner/name.
func repoFromURL(raw string) model.RepoRef {
	parts := strings.Split(strings.TrimSuffix(raw, "/"), "/")
	if len(parts) < 2 {
		return model.RepoRef{}
	}
	return model.RepoRef{Owner: parts[len(parts)-2], Name: parts[len(parts)-1]}
}

func pullRequestItem(is *github.Issue) model.PullRequestItem {
	ref := repoFromURL(is.GetRepositoryURL())
	links := is.GetPullRequestLinks()
	return model.PullRequestItem{
		ID:     is.GetID(),
		Owner:  ref.Owner,
		Repo:   ref.Name,
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		State:  is.GetState(),
		Merged: links != nil && links.MergedAt != nil,
	}
}
