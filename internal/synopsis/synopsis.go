// Package synopsis produces the narrative summary and highlight list for a
// week of activity, either from a language model or deterministically.
package synopsis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geleus/weekly-summary/internal/model"
)

// ErrMalformedResponse is wrapped when the model's reply is not the expected JSON object.
var ErrMalformedResponse = errors.New("malformed synopsis response")

// Synopsis sources.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

// Synopsis is the narrative part of a summary entry.
type Synopsis struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Source     string   `json:"-"`
}

// Completer sends a single prompt to a text-generation backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator chooses between the completer and the fallback.
type Generator struct {
	completer Completer
	identity  model.Identity
	logger    *slog.Logger
}

// NewGenerator returns a Generator. A nil completer always falls back.
func NewGenerator(completer Completer, id model.Identity, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: completer, identity: id, logger: logger}
}

// Generate returns the synopsis for a. With useLLM false, or without a
// completer, the deterministic fallback is used. A completer failure or a
// malformed reply is returned as an error.
func (g *Generator) Generate(ctx context.Context, a model.Activity, notes string, useLLM bool) (Synopsis, error) {
	if g.completer == nil || !useLLM {
		if useLLM {
			g.logger.Warn("no language model configured, using fallback summary")
		}
		return Fallback(a), nil
	}

	prompt := BuildPrompt(a, notes, g.identity)
	g.logger.Debug("requesting synopsis", "prompt_bytes", len(prompt))

	text, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return Synopsis{}, fmt.Errorf("requesting synopsis: %w", err)
	}
	s, err := ParseResponse(text)
	if err != nil {
		return Synopsis{}, err
	}
	g.logger.Info("synopsis generated", "highlights", len(s.Highlights))
	return s, nil
}

// StripCodeFence removes a leading ``` line (with or without a language tag)
// and a trailing ``` from text.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	_, rest, found := strings.Cut(text, "\n")
	if !found {
		return ""
	}
	rest = strings.TrimSpace(rest)
	if i := strings.LastIndex(rest, "```"); i >= 0 && strings.HasSuffix(rest, "```") {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

// ParseResponse decodes the model's reply. Missing fields become empty
// values and highlights are capped.
func ParseResponse(text string) (Synopsis, error) {
	var reply Synopsis
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &reply); err != nil {
		return Synopsis{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	highlights := make([]string, 0, len(reply.Highlights))
	for _, h := range reply.Highlights {
		if len(highlights) == model.MaxHighlights {
			break
		}
		highlights = append(highlights, h)
	}
	return Synopsis{Summary: reply.Summary, Highlights: highlights, Source: SourceLLM}, nil
}

// Fallback summarizes a without a model.
func Fallback(a model.Activity) Synopsis {
	names := a.RepoNames()
	repos := "various projects"
	if len(names) > 0 {
		if len(names) > 3 {
			names = names[:3]
		}
		repos = strings.Join(names, ", ")
	}

	n := min(len(a.Messages), model.MaxFallbackHighlights)
	highlights := make([]string, n)
	copy(highlights, a.Messages[:n])

	return Synopsis{
		Summary:    fmt.Sprintf("Worked on %s with %d commits.", repos, a.CommitCount),
		Highlights: highlights,
		Source:     SourceFallback,
	}
}
