package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"codeguard/internal/ai"
)

const maxConfigBytes = 1 << 20

// Config mirrors the CLI flag names. Zero values mean "not set".
type Config struct {
	RulesDir              string `yaml:"rules_dir,omitempty"`
	DefaultLanguage       string `yaml:"default_language,omitempty"`
	AggregateDefaultScore *int   `yaml:"aggregate_default_score,omitempty"`

	AI    AI    `yaml:"ai,omitempty"`
	Store Store `yaml:"store,omitempty"`
	HTTP  HTTP  `yaml:"http,omitempty"`
	NATS  NATS  `yaml:"nats,omitempty"`
	Log   Log   `yaml:"log,omitempty"`
}

type AI struct {
	Enabled     *bool    `yaml:"enabled,omitempty"`
	Profile     string   `yaml:"profile,omitempty"`
	Provider    string   `yaml:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	APIKeyEnv   string   `yaml:"api_key_env,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
	Timeout     string   `yaml:"timeout,omitempty"`
	Fallback    string   `yaml:"fallback,omitempty"`
	// PromptFile replaces the built-in detection prompt.
	PromptFile string `yaml:"prompt_file,omitempty"`
}

type Store struct {
	Driver string `yaml:"driver,omitempty"`
	Path   string `yaml:"path,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

type HTTP struct {
	Addr string `yaml:"addr,omitempty"`
}

type NATS struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

type Log struct {
	Debug *bool `yaml:"debug,omitempty"`
}

// Load reads config from layered sources:
//  1. ~/.codeguard/config.yaml (global)
//  2. ./.codeguard/config.yaml (repo-local, takes precedence)
//
// Missing files are silently ignored. Returns zero Config if neither exists.
func Load() (Config, error) {
	home, _ := os.UserHomeDir()
	var globalPath, localPath string
	if home != "" {
		globalPath = filepath.Join(home, ".codeguard", "config.yaml")
	}

	cwd, _ := os.Getwd()
	if cwd != "" {
		localPath = filepath.Join(cwd, ".codeguard", "config.yaml")
	}

	var merged Config

	if globalPath != "" {
		global, err := loadFile(globalPath)
		if err != nil {
			return Config{}, fmt.Errorf("load global config %s: %w", globalPath, err)
		}
		merged = merge(merged, global)
	}

	if localPath != "" && localPath != globalPath {
		local, err := loadFile(localPath)
		if err != nil {
			return Config{}, fmt.Errorf("load local config %s: %w", localPath, err)
		}
		merged = merge(merged, local)
	}

	if err := merged.Validate(); err != nil {
		return Config{}, err
	}
	return merged, nil
}

func loadFile(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if info.Size() > maxConfigBytes {
		return Config{}, fmt.Errorf("%s exceeds %d bytes", path, maxConfigBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "", "memory", "pebble", "postgres":
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}
	if c.AI.Fallback != "" && !ai.ValidFallback(c.AI.Fallback) {
		return fmt.Errorf("unsupported ai.fallback %q", c.AI.Fallback)
	}
	if _, err := c.AI.TimeoutDuration(); err != nil {
		return err
	}
	if c.AggregateDefaultScore != nil && (*c.AggregateDefaultScore < 0 || *c.AggregateDefaultScore > 100) {
		return fmt.Errorf("aggregate_default_score must be within 0..100, got %d", *c.AggregateDefaultScore)
	}
	return nil
}

// TimeoutDuration parses ai.timeout. Empty means the detector default.
func (a AI) TimeoutDuration() (time.Duration, error) {
	raw := strings.TrimSpace(a.Timeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse ai.timeout %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("ai.timeout must be positive, got %s", d)
	}
	return d, nil
}

func (a AI) IsEnabled() bool {
	return a.Enabled != nil && *a.Enabled
}

// ResolveOptions maps the ai section onto profile resolution inputs.
func (a AI) ResolveOptions() ai.ResolveOptions {
	opts := ai.ResolveOptions{
		Profile:   a.Profile,
		Provider:  a.Provider,
		Model:     a.Model,
		BaseURL:   a.BaseURL,
		APIKeyEnv: a.APIKeyEnv,
	}
	if a.Temperature != nil {
		opts.Temperature = *a.Temperature
	}
	if a.MaxTokens != nil {
		opts.MaxTokens = *a.MaxTokens
	}
	opts.Timeout, _ = a.TimeoutDuration()
	return opts
}

// merge applies overrides from b onto a. Non-zero fields in b win.
func merge(a, b Config) Config {
	if b.RulesDir != "" {
		a.RulesDir = b.RulesDir
	}
	if b.DefaultLanguage != "" {
		a.DefaultLanguage = b.DefaultLanguage
	}
	if b.AggregateDefaultScore != nil {
		a.AggregateDefaultScore = b.AggregateDefaultScore
	}

	if b.AI.Enabled != nil {
		a.AI.Enabled = b.AI.Enabled
	}
	if b.AI.Profile != "" {
		a.AI.Profile = b.AI.Profile
	}
	if b.AI.Provider != "" {
		a.AI.Provider = b.AI.Provider
	}
	if b.AI.Model != "" {
		a.AI.Model = b.AI.Model
	}
	if b.AI.BaseURL != "" {
		a.AI.BaseURL = b.AI.BaseURL
	}
	if b.AI.APIKeyEnv != "" {
		a.AI.APIKeyEnv = b.AI.APIKeyEnv
	}
	if b.AI.Temperature != nil {
		a.AI.Temperature = b.AI.Temperature
	}
	if b.AI.MaxTokens != nil {
		a.AI.MaxTokens = b.AI.MaxTokens
	}
	if b.AI.Timeout != "" {
		a.AI.Timeout = b.AI.Timeout
	}
	if b.AI.Fallback != "" {
		a.AI.Fallback = b.AI.Fallback
	}
	if b.AI.PromptFile != "" {
		a.AI.PromptFile = b.AI.PromptFile
	}

	if b.Store.Driver != "" {
		a.Store.Driver = b.Store.Driver
	}
	if b.Store.Path != "" {
		a.Store.Path = b.Store.Path
	}
	if b.Store.DSN != "" {
		a.Store.DSN = b.Store.DSN
	}
	if b.HTTP.Addr != "" {
		a.HTTP.Addr = b.HTTP.Addr
	}
	if b.NATS.URL != "" {
		a.NATS.URL = b.NATS.URL
	}
	if b.NATS.Subject != "" {
		a.NATS.Subject = b.NATS.Subject
	}
	if b.Log.Debug != nil {
		a.Log.Debug = b.Log.Debug
	}
	return a
}
