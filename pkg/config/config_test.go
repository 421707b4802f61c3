package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestConfigIgnoresFileSecrets(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, ".switchboard")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  anthropic: file-ant\nserver:\n  addr: \":9999\"\n  admin_secret: file-secret\nredis:\n  url: redis://file\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("SWITCHBOARD_ADMIN_SECRET", "")
	t.Setenv("SWITCHBOARD_REDIS_URL", "")
	t.Setenv("SWITCHBOARD_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "" || cfg.Server.AdminSecret != "" || cfg.Redis.URL != "" {
		t.Fatalf("expected file secrets to be ignored")
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("expected addr from file, got %q", cfg.Server.Addr)
	}
}

func TestConfigEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	configDir := filepath.Join(home, ".switchboard")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("storage:\n  driver: sqlite\n  dsn: /tmp/file.db\nembedding:\n  provider: openai\n  dimensions: 1536\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("SWITCHBOARD_DB_DSN", "/tmp/env.db")
	t.Setenv("SWITCHBOARD_EMBEDDING_DIMENSIONS", "256")
	t.Setenv("SWITCHBOARD_ADMIN_SECRET", "env-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAIAPIKey != "env-openai" || !cfg.HasAdapter("openai") {
		t.Fatalf("expected env API key to be used")
	}
	if cfg.Storage.DSN != "/tmp/env.db" {
		t.Fatalf("expected env DSN, got %q", cfg.Storage.DSN)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Dimensions != 256 {
		t.Fatalf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Server.AdminSecret != "env-secret" {
		t.Fatalf("expected admin secret from env")
	}
}

func TestConfigDefaults(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("expected sqlite default, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.DSN != filepath.Join(cfg.ConfigDir, "switchboard.db") {
		t.Fatalf("unexpected default DSN %q", cfg.Storage.DSN)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 768 {
		t.Fatalf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.RoutingConfig == nil || len(cfg.RoutingConfig.Roles) == 0 {
		t.Fatalf("expected default routing config")
	}
	if !cfg.HasAdapter("mock") || cfg.HasAdapter("nope") {
		t.Fatalf("unexpected HasAdapter results")
	}
}

func TestConfigRejectsBadDimensions(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	t.Setenv("SWITCHBOARD_EMBEDDING_DIMENSIONS", "lots")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-numeric dimensions")
	}
}

func TestDefaultRoutingConfigIsValid(t *testing.T) {
	cfg := DefaultRoutingConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default routing config invalid: %v", err)
	}
	if cfg.Thresholds.Explicit != 0.99 || cfg.Thresholds.Keyword != 0.75 || cfg.Thresholds.Handoff != 0.7 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Thresholds)
	}
	if cfg.Classifier.AgreementBonus != 0.10 || cfg.Classifier.MaxBoosted != 0.98 {
		t.Fatalf("unexpected classifier policy: %+v", cfg.Classifier)
	}
	if !cfg.ClassifierEnabled() || !cfg.VectorEnabled() {
		t.Fatalf("expected classifier and vector tiers enabled by default")
	}
	if cfg.Classifier.Timeout != 10*time.Second {
		t.Fatalf("expected 10s classifier timeout, got %s", cfg.Classifier.Timeout)
	}
}

func TestLoadRoutingConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	data := `
thresholds:
  keyword: 0.8
classifier:
  enabled: false
  timeout: 3s
roles:
  coder:
    display_names: [hacker]
    keywords: [kernel]
seed_examples:
  - text: "the build is red"
    agent: coder
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write routing: %v", err)
	}

	cfg, err := LoadRoutingConfig(path)
	if err != nil {
		t.Fatalf("load routing: %v", err)
	}
	if cfg.Thresholds.Keyword != 0.8 || cfg.Thresholds.Explicit != 0.99 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Thresholds)
	}
	if cfg.ClassifierEnabled() {
		t.Fatalf("expected classifier disabled")
	}
	if cfg.Classifier.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.Classifier.Timeout)
	}
	if cfg.Classifier.MaxRetries != 1 {
		t.Fatalf("expected one retry when unset, got %d", cfg.Classifier.MaxRetries)
	}
	if got := cfg.Roles["coder"].DisplayNames; len(got) != 1 || got[0] != "hacker" {
		t.Fatalf("unexpected coder profile: %+v", cfg.Roles["coder"])
	}
	if len(cfg.SeedExamples) != 1 {
		t.Fatalf("expected one seed example")
	}
}

func TestRoutingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RoutingConfig)
		wantErr string
	}{
		{"unknown role", func(c *RoutingConfig) { c.Roles["plumber"] = RoleProfile{} }, "plumber"},
		{"unknown seed label", func(c *RoutingConfig) { c.SeedExamples = []SeedExample{{Text: "x", Agent: "nobody"}} }, "seed_examples[0]"},
		{"explicit too low", func(c *RoutingConfig) { c.Thresholds.Explicit = 0.9 }, "thresholds.explicit"},
		{"keyword outranks explicit", func(c *RoutingConfig) { c.Keyword.MaxConfidence = 0.995 }, "keyword.max_confidence"},
		{"boost reaches one", func(c *RoutingConfig) { c.Classifier.MaxBoosted = 1.0 }, "classifier.max_boosted"},
		{"unbounded retries", func(c *RoutingConfig) { c.Classifier.MaxRetries = 3 }, "max_retries"},
		{"phrase not heavier", func(c *RoutingConfig) { c.Keyword.PhraseWeight = 1 }, "phrase_weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRoutingConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("SWITCHBOARD_HOME", "")
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
