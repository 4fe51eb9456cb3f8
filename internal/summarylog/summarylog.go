// Package summarylog reads and rewrites the weekly summary log and the
// scratch notes file that feeds it.
package summarylog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/geleus/weekly-summary/internal/model"
)

// Store is the JSON log on disk.
type Store struct {
	path string
}

// NewStore returns a Store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Load reads the whole log. A missing file is an empty log.
func (s *Store) Load() (model.SummaryLog, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.SummaryLog{Summaries: []model.WeeklySummaryEntry{}}, nil
	}
	if err != nil {
		return model.SummaryLog{}, fmt.Errorf("could not read file '%s': %w", s.path, err)
	}

	var log model.SummaryLog
	if err := json.Unmarshal(data, &log); err != nil {
		return model.SummaryLog{}, fmt.Errorf("could not parse JSON from '%s': %w", s.path, err)
	}
	if log.Summaries == nil {
		log.Summaries = []model.WeeklySummaryEntry{}
	}
	return log, nil
}

// Save overwrites the file with log, creating the parent directory if needed.
func (s *Store) Save(log model.SummaryLog) error {
	if log.Summaries == nil {
		log.Summaries = []model.WeeklySummaryEntry{}
	}
	data, err := Encode(log)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create directory '%s': %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("could not write file '%s': %w", s.path, err)
	}
	return nil
}

// Encode renders v as two-space indented JSON with a trailing newline.
// HTML characters are left unescaped.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding summary log: %w", err)
	}
	return buf.Bytes(), nil
}

// Merge returns a new log with entry replacing any entry for the same
// week start, sorted by week start descending. log is not modified.
func Merge(log model.SummaryLog, entry model.WeeklySummaryEntry) model.SummaryLog {
	out := make([]model.WeeklySummaryEntry, 0, len(log.Summaries)+1)
	for _, e := range log.Summaries {
		if e.WeekStart != entry.WeekStart {
			out = append(out, e)
		}
	}
	out = append(out, entry)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeekStart > out[j].WeekStart
	})
	return model.SummaryLog{Summaries: out}
}

// ShouldSkip reports whether a week is empty enough to leave the log alone.
func ShouldSkip(a model.Activity, notes string) bool {
	return a.CommitCount == 0 && len(a.Repos) == 0 && strings.TrimSpace(notes) == ""
}

// Notes is the scratch notes file.
type Notes struct {
	path string
}

// NewNotes returns Notes for path.
func NewNotes(path string) *Notes {
	return &Notes{path: path}
}

// Read returns the trimmed notes, or "" when the file does not exist.
func (n *Notes) Read() (string, error) {
	data, err := os.ReadFile(n.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("could not read file '%s': %w", n.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Clear truncates the notes file if it exists.
func (n *Notes) Clear() error {
	if _, err := os.Stat(n.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.Truncate(n.path, 0); err != nil {
		return fmt.Errorf("could not clear notes '%s': %w", n.path, err)
	}
	return nil
}
