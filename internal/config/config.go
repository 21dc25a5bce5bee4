package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Site       Site       `yaml:"site"`
	Categories []Category `yaml:"categories"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Cache      Cache      `yaml:"cache"`
	Retry      Retry      `yaml:"retry"`
	Enrichment Enrichment `yaml:"enrichment"`
	Reviews    Reviews    `yaml:"reviews"`
	AI         AI         `yaml:"ai"`
	Output     Output     `yaml:"output"`
	Logging    Logging    `yaml:"logging"`
}

// Site describes the target marketplace.
type Site struct {
	BaseURL           string `yaml:"base_url"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	StageTimeoutMin   int    `yaml:"stage_timeout_min"`
}

// Category is one best-sellers listing to track.
type Category struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	TrackTop int    `yaml:"track_top_n"`
}

type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
}

type Cache struct {
	TTLHours int `yaml:"ttl_hours"`
}

type Retry struct {
	MaxAttempts        int `yaml:"max_attempts"`
	BaseDelaySec       int `yaml:"base_delay_sec"`
	MaxDelaySec        int `yaml:"max_delay_sec"`
	BlockedCooldownMin int `yaml:"blocked_cooldown_min_sec"`
	BlockedCooldownMax int `yaml:"blocked_cooldown_max_sec"`
}

type Enrichment struct {
	Enabled            bool   `yaml:"enabled"`
	Strategy           string `yaml:"strategy"` // all, top_n, none
	TopNPerCategory    int    `yaml:"top_n_per_category"`
	Concurrency        int    `yaml:"concurrency"`
	InterBatchDelaySec int    `yaml:"inter_batch_delay_sec"`
}

type Reviews struct {
	Enabled        bool `yaml:"enabled"`
	TopPerCategory int  `yaml:"top_per_category"`
	MaxPerProduct  int  `yaml:"max_per_product"`
}

type AI struct {
	Enabled          bool    `yaml:"enabled"`
	Provider         string  `yaml:"provider"` // anthropic or openai
	Model            string  `yaml:"model"`
	OpenAIModel      string  `yaml:"openai_model"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	OpenAIKeyEnv     string  `yaml:"openai_key_env"`
	MaxTokens        int     `yaml:"max_tokens"`
	MonthlyBudgetUSD float64 `yaml:"monthly_budget_usd"`
	IdeasPerCategory int     `yaml:"ideas_per_category"`
}

type Output struct {
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for marketscout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "marketscout")
}

// DataDir returns the XDG data directory for marketscout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "marketscout")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/marketscout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'marketscout init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults and validating.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Site: Site{
			BaseURL:           "https://www.amazon.com",
			RequestTimeoutSec: 30,
			StageTimeoutMin:   60,
		},
		RateLimit: RateLimit{
			RequestsPerMinute: 15,
			RequestsPerHour:   200,
		},
		Cache: Cache{TTLHours: 24},
		Retry: Retry{
			MaxAttempts:        5,
			BaseDelaySec:       25,
			MaxDelaySec:        300,
			BlockedCooldownMin: 20,
			BlockedCooldownMax: 40,
		},
		Enrichment: Enrichment{
			Enabled:            true,
			Strategy:           "all",
			TopNPerCategory:    100,
			Concurrency:        5,
			InterBatchDelaySec: 2,
		},
		Reviews: Reviews{
			Enabled:        true,
			TopPerCategory: 5,
			MaxPerProduct:  15,
		},
		AI: AI{
			Enabled:          true,
			Provider:         "anthropic",
			Model:            "claude-3-5-haiku-20241022",
			OpenAIModel:      "gpt-4o-mini",
			APIKeyEnv:        "ANTHROPIC_API_KEY",
			OpenAIKeyEnv:     "OPENAI_API_KEY",
			MaxTokens:        4096,
			MonthlyBudgetUSD: 150,
			IdeasPerCategory: 5,
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.RequestsPerHour <= 0 {
		return fmt.Errorf("rate_limit caps must be positive (got %d/min, %d/hour)",
			c.RateLimit.RequestsPerMinute, c.RateLimit.RequestsPerHour)
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache ttl_hours must be positive (got %d)", c.Cache.TTLHours)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1 (got %d)", c.Retry.MaxAttempts)
	}
	if c.Retry.BlockedCooldownMax < c.Retry.BlockedCooldownMin {
		return fmt.Errorf("retry blocked cooldown band is inverted (%d > %d)",
			c.Retry.BlockedCooldownMin, c.Retry.BlockedCooldownMax)
	}
	if c.Enrichment.Concurrency < 1 {
		return fmt.Errorf("enrichment concurrency must be at least 1 (got %d)", c.Enrichment.Concurrency)
	}
	switch c.Enrichment.Strategy {
	case "all", "top_n", "none":
	default:
		return fmt.Errorf("unknown enrichment strategy %q (want all, top_n, or none)", c.Enrichment.Strategy)
	}
	if c.AI.MonthlyBudgetUSD < 0 {
		return fmt.Errorf("ai monthly_budget_usd must not be negative")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetOutputDir returns the directory for generated artifacts.
func (c *Config) GetOutputDir() string {
	if c.Output.OutputDir != "" {
		return c.Output.OutputDir
	}
	return filepath.Join(c.GetDataDir(), "output")
}

// RequestTimeout returns the per-fetch timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Site.RequestTimeoutSec) * time.Second
}

// StageTimeout returns the per-stage wall-clock budget.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Site.StageTimeoutMin) * time.Minute
}

// CacheTTL returns the cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
