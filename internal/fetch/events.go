package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v68/github"

	"github.com/geleus/weekly-summary/internal/config"
	"github.com/geleus/weekly-summary/internal/model"
)

// EventsStrategy reads the user's activity feed and the user's feed inside
// each configured organization, newest first, until it reaches events older
// than the window.
type EventsStrategy struct {
	client   *Client
	identity model.Identity
	orgs     []string
	logger   *slog.Logger
}

// Name implements Fetcher.
func (s *EventsStrategy) Name() string { return config.StrategyEvents }

// Fetch implements Fetcher. Only the personal feed's first page is fatal;
// organization feeds are best effort.
func (s *EventsStrategy) Fetch(ctx context.Context, w model.Window) (*model.RawActivity, error) {
	c := &eventCollector{
		identity: s.identity,
		raw:      &model.RawActivity{},
		seen:     make(map[string]bool),
		prs:      make(map[int64]bool),
		issues:   make(map[int64]bool),
		logger:   s.logger,
	}

	feeds := append([]string{""}, s.orgs...)
	for _, org := range feeds {
		n, err := s.readFeed(ctx, org, w, c)
		if err != nil {
			if org == "" {
				return nil, err
			}
			s.logger.Warn("organization feed failed", "org", org, "error", err)
			continue
		}
		s.logger.Info("events read", "feed", feedName(org), "events", n)
	}
	return c.raw, nil
}

func feedName(org string) string {
	if org == "" {
		return "user"
	}
	return org
}

// readFeed pages through one feed. It returns an error only when the first
// page cannot be read.
func (s *EventsStrategy) readFeed(ctx context.Context, org string, w model.Window, c *eventCollector) (int, error) {
	count := 0
	for page := 1; page != 0; {
		events, resp, err := s.client.Events(ctx, s.identity.Login, org, page)
		if err != nil {
			if page == 1 {
				return 0, fmt.Errorf("listing %s events: %w", feedName(org), err)
			}
			s.logger.Warn("event feed failed, keeping partial result", "feed", feedName(org), "page", page, "error", err)
			return count, nil
		}
		for _, e := range events {
			created := e.GetCreatedAt().Time
			if created.Before(w.Since()) {
				return count, nil
			}
			if created.After(w.Until()) {
				continue
			}
			if c.add(e) {
				count++
			}
		}
		page = resp.NextPage
	}
	return count, nil
}

type eventCollector struct {
	identity model.Identity
	raw      *model.RawActivity
	seen     map[string]bool
	prs      map[int64]bool
	issues   map[int64]bool
	logger   *slog.Logger
}

// add classifies one event. It reports false for duplicates.
func (c *eventCollector) add(e *github.Event) bool {
	if id := e.GetID(); id != "" {
		if c.seen[id] {
			return false
		}
		c.seen[id] = true
	}

	repo := model.ParseRepoRef(e.GetRepo().GetName())
	payload, err := e.ParsePayload()
	if err != nil {
		c.logger.Warn("could not parse event payload", "type", e.GetType(), "repo", repo.FullName(), "error", err)
		return true
	}

	switch p := payload.(type) {
	case *github.PushEvent:
		c.addPush(repo, e, p)
	case *github.PullRequestEvent:
		c.addPullRequest(repo, p)
	case *github.IssuesEvent:
		if p.GetAction() == "opened" && !c.issues[p.GetIssue().GetID()] {
			c.issues[p.GetIssue().GetID()] = true
			c.raw.Issues = append(c.raw.Issues, model.IssueItem{
				ID:     p.GetIssue().GetID(),
				Owner:  repo.Owner,
				Repo:   repo.Name,
				Number: p.GetIssue().GetNumber(),
				Title:  p.GetIssue().GetTitle(),
			})
		}
	case *github.CreateEvent, *github.DeleteEvent, *github.ForkEvent, *github.WatchEvent,
		*github.ReleaseEvent, *github.PullRequestReviewEvent, *github.IssueCommentEvent:
		c.raw.Touched = append(c.raw.Touched, repo)
	}
	return true
}

// addPush records the distinct commits of a push. When identity emails are
// configured, commits by other authors (e.g. merged branches) are dropped.
func (c *eventCollector) addPush(repo model.RepoRef, e *github.Event, p *github.PushEvent) {
	if len(p.Commits) == 0 {
		c.raw.Touched = append(c.raw.Touched, repo)
		return
	}
	for _, hc := range p.Commits {
		if hc.Distinct != nil && !*hc.Distinct {
			continue
		}
		author := hc.GetAuthor()
		if len(c.identity.Emails) > 0 && !c.identity.MatchesCommit(author.GetLogin(), "", author.GetEmail(), "") {
			continue
		}
		sha := hc.GetSHA()
		if sha == "" {
			sha = hc.GetID()
		}
		c.raw.Commits = append(c.raw.Commits, model.CommitRecord{
			Repo:    repo,
			SHA:     sha,
			Message: hc.GetMessage(),
			Date:    e.GetCreatedAt().Time,
		})
	}
}

// addPullRequest keeps the first event seen per pull request, which is the
// newest because feeds are ordered newest first.
func (c *eventCollector) addPullRequest(repo model.RepoRef, p *github.PullRequestEvent) {
	switch p.GetAction() {
	case "opened", "closed", "reopened":
	default:
		c.raw.Touched = append(c.raw.Touched, repo)
		return
	}
	pr := p.GetPullRequest()
	if c.prs[pr.GetID()] {
		return
	}
	c.prs[pr.GetID()] = true

	number := pr.GetNumber()
	if number == 0 {
		number = p.GetNumber()
	}
	c.raw.PullRequests = append(c.raw.PullRequests, model.PullRequestItem{
		ID:     pr.GetID(),
		Owner:  repo.Owner,
		Repo:   repo.Name,
		Number: number,
		Title:  pr.GetTitle(),
		State:  pr.GetState(),
		Merged: pr.GetMerged() || pr.MergedAt != nil,
	})
}
