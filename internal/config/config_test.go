package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_NoFiles(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with no files: %v", err)
	}
	if cfg.AI.Provider != "" || cfg.Store.Driver != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_GlobalOnly(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	writeConfig(t, home, "ai:\n  provider: anthropic\n  enabled: true\naggregate_default_score: 70\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "anthropic" || !cfg.AI.IsEnabled() {
		t.Fatalf("unexpected ai section %+v", cfg.AI)
	}
	if cfg.AggregateDefaultScore == nil || *cfg.AggregateDefaultScore != 70 {
		t.Fatalf("expected aggregate default 70, got %v", cfg.AggregateDefaultScore)
	}
}

func TestLoad_LocalOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	repoRoot := t.TempDir()
	restoreWD := setWorkingDir(t, repoRoot)
	defer restoreWD()

	writeConfig(t, home, "ai:\n  provider: openai\n  enabled: true\n  fallback: demo\nstore:\n  driver: pebble\n  path: /var/lib/codeguard\n")
	writeConfig(t, repoRoot, "ai:\n  provider: gemini\n  enabled: false\nstore:\n  driver: memory\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "gemini" {
		t.Fatalf("expected local provider gemini, got %q", cfg.AI.Provider)
	}
	if cfg.AI.IsEnabled() {
		t.Fatal("local enabled=false should override global true")
	}
	if cfg.AI.Fallback != "demo" {
		t.Fatalf("expected global fallback demo (not overridden), got %q", cfg.AI.Fallback)
	}
	if cfg.Store.Driver != "memory" || cfg.Store.Path != "/var/lib/codeguard" {
		t.Fatalf("unexpected store section %+v", cfg.Store)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	writeConfig(t, home, "{{invalid yaml")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	writeConfig(t, home, "  \n\t\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with empty file: %v", err)
	}
	if cfg.AI.Provider != "" {
		t.Fatalf("expected empty config from empty file, got %+v", cfg.AI)
	}
}

func TestLoad_OversizedConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	restoreWD := setWorkingDir(t, t.TempDir())
	defer restoreWD()

	writeConfig(t, home, "rules_dir: "+strings.Repeat("a", maxConfigBytes+1)+"\n")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for oversized config")
	}
}

func TestValidate(t *testing.T) {
	score := 120
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "zero", cfg: Config{}, ok: true},
		{name: "postgres", cfg: Config{Store: Store{Driver: "Postgres"}}, ok: true},
		{name: "bad driver", cfg: Config{Store: Store{Driver: "mongo"}}},
		{name: "bad fallback", cfg: Config{AI: AI{Fallback: "random"}}},
		{name: "bad timeout", cfg: Config{AI: AI{Timeout: "soon"}}},
		{name: "negative timeout", cfg: Config{AI: AI{Timeout: "-1s"}}},
		{name: "score out of range", cfg: Config{AggregateDefaultScore: &score}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAIResolveOptions(t *testing.T) {
	temp, tokens := 0.2, 512
	a := AI{Profile: "openrouter", Model: "m", APIKeyEnv: "KEY", Temperature: &temp, MaxTokens: &tokens, Timeout: "45s"}
	opts := a.ResolveOptions()
	if opts.Profile != "openrouter" || opts.Model != "m" || opts.APIKeyEnv != "KEY" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.Temperature != 0.2 || opts.MaxTokens != 512 || opts.Timeout != 45*time.Second {
		t.Fatalf("unexpected tuning %+v", opts)
	}
}

func TestMerge_ZeroValuesDoNotOverride(t *testing.T) {
	debug := true
	a := Config{RulesDir: "rules", Log: Log{Debug: &debug}, NATS: NATS{URL: "nats://x"}}
	result := merge(a, Config{})
	if result.RulesDir != "rules" || result.Log.Debug == nil || !*result.Log.Debug || result.NATS.URL != "nats://x" {
		t.Fatalf("merge should not override with zero values, got %+v", result)
	}
}

func writeConfig(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, ".codeguard")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func setWorkingDir(t *testing.T, path string) func() {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(path); err != nil {
		t.Fatalf("chdir %s: %v", path, err)
	}
	return func() {
		if err := os.Chdir(oldWD); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	}
}
