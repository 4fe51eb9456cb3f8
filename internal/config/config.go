// Package config loads the run configuration from a YAML file, a .env file
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/geleus/weekly-summary/internal/model"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "weekly-summary.yml"

// Fetch strategies.
const (
	StrategyPushed = "pushed"
	StrategySearch = "search"
	StrategyEvents = "events"
)

// Environment variables.
const (
	EnvGitHubToken    = "GH_PAT"
	EnvGitHubTokenAlt = "GITHUB_TOKEN"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvTrigger        = "TRIGGER"
	EnvUsername       = "GH_USERNAME"
)

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the immutable run configuration handed to every collaborator.
type Config struct {
	Username string   `yaml:"username"`
	Emails   []string `yaml:"emails"`
	Orgs     []string `yaml:"orgs"`
	Strategy string   `yaml:"strategy"`

	DataDir       string `yaml:"data_dir"`
	SummariesFile string `yaml:"summaries_file"`
	NotesFile     string `yaml:"notes_file"`
	MetricsFile   string `yaml:"metrics_file"`

	APIBaseURL      string        `yaml:"api_base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`

	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	Log LogConfig `yaml:"log"`

	// Secrets and the trigger label come from the environment only.
	GitHubToken     string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	Trigger         string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Strategy:        StrategyPushed,
		DataDir:         "data",
		RequestTimeout:  30 * time.Second,
		MetadataTimeout: 10 * time.Second,
		LLMTimeout:      60 * time.Second,
		Model:           "claude-haiku-4-5-20251001",
		MaxTokens:       1024,
		Log:             LogConfig{Level: "info", Format: "text"},
		Trigger:         "manual",
	}
}

// Load reads the configuration like Read and validates it.
func Load(path string, explicit bool) (Config, error) {
	cfg, err := Read(path, explicit)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read reads the config file at path, then .env, then the environment,
// without validating the result. A missing file is only an error when
// explicit is true.
func Read(path string, explicit bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("could not parse YAML from '%s': %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("could not read file '%s': %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("could not load .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvGitHubToken); v != "" {
		c.GitHubToken = v
	} else if v := os.Getenv(EnvGitHubTokenAlt); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv(EnvAnthropicKey); v != "" {
		c.AnthropicAPIKey = v
	}
	if v := os.Getenv(EnvTrigger); v != "" {
		c.Trigger = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.Username = v
	}
}

// Validate checks the fields a run cannot do without.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyPushed, StrategySearch, StrategyEvents:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	if c.Username == "" && c.GitHubToken == "" {
		return fmt.Errorf("%w: username is required when %s is not set", ErrInvalidConfig, EnvGitHubToken)
	}
	if c.RequestTimeout <= 0 || c.MetadataTimeout <= 0 || c.LLMTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithUsername returns a copy with the subject login set.
func (c Config) WithUsername(login string) Config {
	c.Username = login
	return c
}

// Identity returns the subject user.
func (c Config) Identity() model.Identity {
	emails := make([]string, 0, len(c.Emails))
	for _, e := range c.Emails {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	return model.Identity{Login: c.Username, Emails: emails}
}

// SummariesPath is the JSON log location.
func (c Config) SummariesPath() string {
	if c.SummariesFile != "" {
		return c.SummariesFile
	}
	return filepath.Join(c.DataDir, "weekly-summaries.json")
}

// NotesPath is the scratch notes location.
func (c Config) NotesPath() string {
	if c.NotesFile != "" {
		return c.NotesFile
	}
	return filepath.Join(c.DataDir, "notes.md")
}

// LLMEnabled reports whether an Anthropic key is configured.
func (c Config) LLMEnabled() bool {
	return c.AnthropicAPIKey != ""
}
