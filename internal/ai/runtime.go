package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"codeguard/internal/redact"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	FallbackNone = "none"
	FallbackDemo = "demo"

	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 2048

	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	defaultGeminiModel      = "gemini-2.0-flash"

	profilesAPIVersion = "codeguard/ai/v1"
)

// Config is the user-scoped provider record. APIKey is opaque and must not be logged;
// String renders a redacted form.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string
	Timeout     time.Duration
	Headers     map[string]string
}

func (c Config) String() string {
	return fmt.Sprintf("ai.Config{provider=%s model=%s base_url=%s key=%s timeout=%s}",
		c.Provider, c.Model, c.BaseURL, redact.Fingerprint(c.APIKey), c.Timeout)
}

// ConfigSource resolves the active AI configuration for a user. ok is false when the
// user has no active configuration and AI detection should be skipped.
type ConfigSource interface {
	ActiveConfig(ctx context.Context, userID string) (cfg Config, ok bool, err error)
}

// StaticConfigSource hands the same configuration to every user.
type StaticConfigSource struct {
	Config  Config
	Enabled bool
}

func (s StaticConfigSource) ActiveConfig(_ context.Context, _ string) (Config, bool, error) {
	if !s.Enabled {
		return Config{}, false, nil
	}
	return s.Config, true, nil
}

// Profile is a named provider preset. Profiles can be overridden from
// ~/.codeguard/ai/profiles.yaml or ./.codeguard/ai/profiles.yaml.
type Profile struct {
	Name string `yaml:"name"`

	Provider  string            `yaml:"provider"`
	Model     string            `yaml:"model,omitempty"`
	BaseURL   string            `yaml:"base_url,omitempty"`
	APIKeyEnv string            `yaml:"api_key_env,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

type profileFile struct {
	APIVersion string    `yaml:"api_version"`
	Profiles   []Profile `yaml:"profiles"`
}

type ResolveOptions struct {
	Profile string

	Provider    string
	Model       string
	BaseURL     string
	APIKeyEnv   string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ResolveConfig builds a Config from a profile plus explicit overrides and reads the
// API key from the profile's environment variable.
func ResolveConfig(opts ResolveOptions) (Config, error) {
	paths, err := defaultProfilePaths()
	if err != nil {
		return Config{}, err
	}
	catalog, err := mergedCatalog(paths)
	if err != nil {
		return Config{}, err
	}

	profileName := strings.TrimSpace(opts.Profile)
	if profileName == "" {
		profileName = strings.ToLower(strings.TrimSpace(opts.Provider))
	}
	if profileName == "" {
		profileName = ProviderOpenAI
	}
	base, ok := catalog[profileName]
	if !ok {
		available := make([]string, 0, len(catalog))
		for name := range catalog {
			available = append(available, name)
		}
		sort.Strings(available)
		return Config{}, fmt.Errorf("unknown ai profile %q (available: %s)", profileName, strings.Join(available, ", "))
	}

	if v := strings.TrimSpace(opts.Provider); v != "" {
		base.Provider = v
	}
	if v := strings.TrimSpace(opts.Model); v != "" {
		base.Model = v
	}
	if v := strings.TrimSpace(opts.BaseURL); v != "" {
		base.BaseURL = v
	}
	if v := strings.TrimSpace(opts.APIKeyEnv); v != "" {
		base.APIKeyEnv = v
	}

	cfg := Config{
		Provider:    base.Provider,
		Model:       base.Model,
		BaseURL:     base.BaseURL,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Timeout:     opts.Timeout,
		Headers:     cleanHeaders(base.Headers),
	}
	if base.APIKeyEnv != "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv(base.APIKeyEnv))
	}
	cfg = NormalizeConfig(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NormalizeConfig fills provider defaults for empty fields.
func NormalizeConfig(cfg Config) Config {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = 0
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOpenAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	case ProviderAnthropic:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultAnthropicBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = defaultAnthropicModel
		}
	case ProviderGemini:
		if cfg.Model == "" {
			cfg.Model = defaultGeminiModel
		}
	}
	return cfg
}

func ValidateConfig(cfg Config) error {
	switch cfg.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unsupported ai provider %q (supported: %s, %s, %s)", cfg.Provider, ProviderOpenAI, ProviderAnthropic, ProviderGemini)
	}
	if cfg.Model == "" {
		return fmt.Errorf("ai model is required for provider %q", cfg.Provider)
	}
	if cfg.Provider != ProviderGemini && cfg.BaseURL == "" {
		return fmt.Errorf("ai base URL is required for provider %q", cfg.Provider)
	}
	return nil
}

func ValidFallback(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", FallbackNone, FallbackDemo:
		return true
	default:
		return false
	}
}

func cleanHeaders(in map[string]string) map[string]string {
	h := map[string]string{}
	for k, v := range in {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		h[k] = v
	}
	return h
}

func mergedCatalog(paths []string) (map[string]Profile, error) {
	catalog := map[string]Profile{}
	for _, p := range defaultProfiles() {
		catalog[p.Name] = p
	}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		profiles, err := loadProfiles(path)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			catalog[p.Name] = p
		}
	}
	return catalog, nil
}

func defaultProfilePaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home for ai profiles: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd for ai profiles: %w", err)
	}
	return []string{
		filepath.Join(home, ".codeguard", "ai", "profiles.yaml"),
		filepath.Join(cwd, ".codeguard", "ai", "profiles.yaml"),
	}, nil
}

func loadProfiles(path string) ([]Profile, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat ai profiles %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("ai profiles path is a directory: %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ai profiles %s: %w", path, err)
	}
	var parsed profileFile
	if err := yaml.Unmarshal(b, &parsed); err != nil {
		return nil, fmt.Errorf("parse ai profiles %s: %w", path, err)
	}
	if v := strings.TrimSpace(parsed.APIVersion); v != "" && v != profilesAPIVersion {
		return nil, fmt.Errorf("unsupported ai profile api_version %q in %s", parsed.APIVersion, path)
	}
	out := make([]Profile, 0, len(parsed.Profiles))
	for _, p := range parsed.Profiles {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("invalid ai profile in %s: name is required", path)
		}
		p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
		if p.Provider == "" {
			p.Provider = ProviderOpenAI
		}
		out = append(out, p)
	}
	return out, nil
}

func defaultProfiles() []Profile {
	return []Profile{
		{Name: "openai", Provider: ProviderOpenAI, BaseURL: defaultOpenAIBaseURL, Model: defaultOpenAIModel, APIKeyEnv: "OPENAI_API_KEY"},
		{Name: "anthropic", Provider: ProviderAnthropic, BaseURL: defaultAnthropicBaseURL, Model: defaultAnthropicModel, APIKeyEnv: "ANTHROPIC_API_KEY"},
		{Name: "gemini", Provider: ProviderGemini, Model: defaultGeminiModel, APIKeyEnv: "GEMINI_API_KEY"},
		{Name: "openrouter", Provider: ProviderOpenAI, BaseURL: "https://openrouter.ai/api/v1", Model: "openai/gpt-4o-mini", APIKeyEnv: "OPENROUTER_API_KEY"},
		{Name: "mistral", Provider: ProviderOpenAI, BaseURL: "https://api.mistral.ai/v1", Model: "mistral-large-latest", APIKeyEnv: "MISTRAL_API_KEY"},
		{Name: "deepseek", Provider: ProviderOpenAI, BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat", APIKeyEnv: "DEEPSEEK_API_KEY"},
		{Name: "local-openai", Provider: ProviderOpenAI, BaseURL: "http://127.0.0.1:11434/v1", Model: "llama3.1", APIKeyEnv: "LOCAL_AI_API_KEY"},
	}
}
