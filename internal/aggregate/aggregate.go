// Package aggregate turns fetched records into the per-repository rollup
// that the synopsis and the summary log are built from.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/geleus/weekly-summary/internal/model"
)

// LanguageResolver looks up a repository's primary language.
type LanguageResolver interface {
	Language(ctx context.Context, owner, name string) (string, error)
}

// Commit message prefixes that are never sampled.
var skippedPrefixes = []string{"[bot]", "Merge"}

// FirstLine returns the subject line of a commit message, or "" when the
// message is empty or machine generated.
func FirstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return ""
	}
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(line, p) {
			return ""
		}
	}
	return line
}

type repoState struct {
	activity model.RepoActivity
	resolved bool
	seen     map[string]bool
}

type builder struct {
	repos    map[string]*repoState
	order    []string
	metadata map[string]model.RepoRef
}

// touch returns the state for ref's short name, creating it on first sight.
// The first owner seen for a name wins.
func (b *builder) touch(ref model.RepoRef) *repoState {
	if st, ok := b.repos[ref.Name]; ok {
		if !st.resolved && ref.LanguageKnown {
			st.activity.Language, st.resolved = ref.Language, true
		}
		return st
	}

	st := &repoState{
		activity: model.RepoActivity{
			Name:         ref.Name,
			Owner:        ref.Owner,
			Messages:     []string{},
			PullRequests: []int{},
		},
		seen: make(map[string]bool),
	}
	switch {
	case ref.LanguageKnown:
		st.activity.Language, st.resolved = ref.Language, true
	default:
		if meta, ok := b.metadata[ref.FullName()]; ok {
			st.activity.Language, st.resolved = meta.Language, true
		}
	}
	b.repos[ref.Name] = st
	b.order = append(b.order, ref.Name)
	return st
}

func (st *repoState) addMessage(line string) {
	if line == "" || st.seen[line] {
		return
	}
	st.seen[line] = true
	if len(st.activity.Messages) < model.MaxRepoMessages {
		st.activity.Messages = append(st.activity.Messages, line)
	}
}

// PullRequestState classifies a pull request. A merge timestamp wins over
// the reported state.
func PullRequestState(item model.PullRequestItem) string {
	if item.Merged {
		return model.StateMerged
	}
	switch strings.ToLower(item.State) {
	case model.StateClosed:
		return model.StateClosed
	default:
		return model.StateOpen
	}
}

// Aggregate builds the Activity for w from raw. Repositories with commits,
// repositories explicitly touched and repositories referenced by pull
// requests are all included. Languages missing from the fetched metadata
// are looked up through resolver; failed lookups leave the language empty.
func Aggregate(ctx context.Context, raw *model.RawActivity, id model.Identity, w model.Window, resolver LanguageResolver, logger *slog.Logger) model.Activity {
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = &model.RawActivity{}
	}

	b := &builder{
		repos:    make(map[string]*repoState),
		metadata: make(map[string]model.RepoRef),
	}
	for _, ref := range raw.Metadata {
		if ref.LanguageKnown {
			b.metadata[ref.FullName()] = ref
		}
	}

	activity := model.Activity{
		Window:       w,
		PullRequests: []model.PullRequestRecord{},
		Issues:       len(raw.Issues),
	}

	for _, c := range raw.Commits {
		if c.Repo.Name == "" {
			continue
		}
		st := b.touch(c.Repo)
		st.activity.Commits++
		activity.CommitCount++
		st.addMessage(FirstLine(c.Message))
	}

	for _, ref := range raw.Touched {
		if ref.Name != "" {
			b.touch(ref)
		}
	}

	for _, pr := range raw.PullRequests {
		state := PullRequestState(pr)
		switch state {
		case model.StateMerged:
			activity.PRsMerged++
		case model.StateOpen:
			activity.PRsOpened++
		}

		org := pr.Owner
		if id.IsLogin(org) {
			org = ""
		}
		activity.PullRequests = append(activity.PullRequests, model.PullRequestRecord{
			Title:  pr.Title,
			Repo:   pr.Repo,
			Org:    org,
			State:  state,
			Number: pr.Number,
		})

		if pr.Repo != "" {
			st := b.touch(model.RepoRef{Owner: pr.Owner, Name: pr.Repo})
			st.activity.PullRequests = append(st.activity.PullRequests, pr.Number)
		}
	}
	activity.PRsClosed = len(activity.PullRequests) - activity.PRsOpened - activity.PRsMerged

	b.resolveLanguages(ctx, resolver, logger)

	activity.Repos = make([]model.RepoActivity, 0, len(b.order))
	activity.Messages = []string{}
	languages := make(map[string]bool)
	for _, name := range b.order {
		st := b.repos[name]
		activity.Repos = append(activity.Repos, st.activity)
		for _, m := range st.activity.Messages {
			if len(activity.Messages) < model.MaxActivityMessages {
				activity.Messages = append(activity.Messages, m)
			}
		}
		if st.activity.Language != "" {
			languages[st.activity.Language] = true
		}
	}
	sort.SliceStable(activity.Repos, func(i, j int) bool {
		return activity.Repos[i].Name < activity.Repos[j].Name
	})

	activity.Languages = make([]string, 0, len(languages))
	for lang := range languages {
		activity.Languages = append(activity.Languages, lang)
	}
	sort.Strings(activity.Languages)

	return activity
}

func (b *builder) resolveLanguages(ctx context.Context, resolver LanguageResolver, logger *slog.Logger) {
	for _, name := range b.order {
		st := b.repos[name]
		if st.resolved || resolver == nil || st.activity.Owner == "" {
			continue
		}
		lang, err := resolver.Language(ctx, st.activity.Owner, st.activity.Name)
		if err != nil {
			logger.Warn("language lookup failed", "repo", st.activity.FullName(), "error", err)
			continue
		}
		st.activity.Language, st.resolved = lang, true
	}
}
