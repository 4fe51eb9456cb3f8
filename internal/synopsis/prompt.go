package synopsis

import (
	"fmt"
	"strings"

	"github.com/geleus/weekly-summary/internal/model"
)

// promptMessagesPerRepo bounds the commit subjects quoted per repository.
const promptMessagesPerRepo = 8

const promptInstructions = `Return a JSON object with exactly these fields:
- "summary": 2-3 sentences (at most 280 characters) describing the week's work. Name the repositories, organizations and technologies involved and what was accomplished.
- "highlights": an array of 5-8 bullet points, each at most 120 characters.
  - Begin each highlight with the repository name and a colon, e.g. "widget: ...".
  - Be concrete: mention the features, fixes or changes visible in commit subjects and pull request titles.
  - Cover every repository listed above, including those with pull requests but no direct commits.
  - Split a repository into several highlights when its work was unrelated.
  - For organization repositories add the organization, e.g. "gadget (acme): reviewed the settings PR".

Return only valid JSON without markdown fencing.`

// BuildPrompt renders the request sent to the language model.
func BuildPrompt(a model.Activity, notes string, id model.Identity) string {
	var b strings.Builder

	fmt.Fprintln(&b, "You are summarizing a developer's weekly GitHub activity for their portfolio website.")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Activity for %s to %s:\n", a.Window.StartString(), a.Window.EndString())
	fmt.Fprintf(&b, "- Total commits: %d\n", a.CommitCount)
	fmt.Fprintf(&b, "- Repos active: %s\n", joinOr(a.RepoNames(), "none"))

	fmt.Fprintln(&b, "- Per-repo breakdown:")
	if len(a.Repos) == 0 {
		fmt.Fprintln(&b, "  (none)")
	}
	for _, r := range a.Repos {
		lang := r.Language
		if lang == "" {
			lang = "unknown"
		}
		org := ""
		if r.Owner != "" && !id.IsLogin(r.Owner) {
			org = fmt.Sprintf(" (org: %s)", r.Owner)
		}
		msgs := "no direct commits"
		if len(r.Messages) > 0 {
			msgs = strings.Join(r.Messages[:min(len(r.Messages), promptMessagesPerRepo)], "; ")
		}
		fmt.Fprintf(&b, "  - %s%s (%s, %d commits): %s\n", r.Name, org, lang, r.Commits, msgs)
	}

	fmt.Fprintln(&b, "- Pull requests:")
	if len(a.PullRequests) == 0 {
		fmt.Fprintln(&b, "  (none)")
	}
	for _, pr := range a.PullRequests {
		prefix := ""
		if pr.Org != "" {
			prefix = pr.Org + "/"
		}
		fmt.Fprintf(&b, "  - [%s] %s%s#%d: %s\n", pr.State, prefix, pr.Repo, pr.Number, pr.Title)
	}

	fmt.Fprintf(&b, "- Languages: %s\n", joinOr(a.Languages, "none"))
	fmt.Fprintf(&b, "- Issues created: %d\n", a.Issues)
	if notes = strings.TrimSpace(notes); notes != "" {
		fmt.Fprintf(&b, "- Personal notes: %s\n", notes)
	}

	fmt.Fprintln(&b)
	b.WriteString(promptInstructions)
	return b.String()
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
