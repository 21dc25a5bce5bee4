package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Categories) == 0 {
		t.Error("expected categories to be populated")
	}

	if cfg.RateLimit.RequestsPerMinute != 15 {
		t.Errorf("expected 15 requests/min, got %d", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.RateLimit.RequestsPerHour != 200 {
		t.Errorf("expected 200 requests/hour, got %d", cfg.RateLimit.RequestsPerHour)
	}

	if cfg.AI.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.AI.Provider)
	}

	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected 5 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
enrichment:
  concurrency: 3
cache:
  ttl_hours: 6
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Enrichment.Concurrency != 3 {
		t.Errorf("expected concurrency 3, got %d", cfg.Enrichment.Concurrency)
	}
	if cfg.Cache.TTLHours != 6 {
		t.Errorf("expected ttl 6h, got %d", cfg.Cache.TTLHours)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Site.BaseURL != "https://www.amazon.com" {
		t.Errorf("expected default base_url, got %q", cfg.Site.BaseURL)
	}
	if cfg.Retry.BlockedCooldownMin != 20 || cfg.Retry.BlockedCooldownMax != 40 {
		t.Errorf("expected default cooldown band 20-40, got %d-%d",
			cfg.Retry.BlockedCooldownMin, cfg.Retry.BlockedCooldownMax)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"zero rate cap", "rate_limit:\n  requests_per_minute: 0\n", "rate_limit"},
		{"zero ttl", "cache:\n  ttl_hours: 0\n", "ttl_hours"},
		{"zero attempts", "retry:\n  max_attempts: 0\n", "max_attempts"},
		{"inverted cooldown", "retry:\n  blocked_cooldown_min_sec: 50\n  blocked_cooldown_max_sec: 10\n", "cooldown"},
		{"bad strategy", "enrichment:\n  strategy: most\n", "strategy"},
		{"negative budget", "ai:\n  monthly_budget_usd: -1\n", "budget"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Categories) == 0 {
		t.Error("expected categories to be populated from file")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.GetOutputDir() != filepath.Join("/custom/path", "output") {
		t.Errorf("unexpected output dir %q", cfg.GetOutputDir())
	}
}
