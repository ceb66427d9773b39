package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for jobpool.
type Config struct {
	Interval     time.Duration // gap between scheduled collection passes
	DatabasePath string
	FetchTimeout time.Duration // per-request timeout for feeds, pages, and APIs
	Adzuna       AdzunaConfig
	Reed         ReedConfig
	Rotation     RotationConfig
	AI           AIConfig
}

// AdzunaConfig holds Adzuna API credentials and paging knobs.
type AdzunaConfig struct {
	AppID          string
	AppKey         string
	Country        string // two-letter country code, defaults to "us"
	ResultsPerPage int
	MaxPages       int
	PageDelay      time.Duration // pause between consecutive result pages
}

// Configured reports whether Adzuna credentials are present.
func (a AdzunaConfig) Configured() bool {
	return a.AppID != "" && a.AppKey != ""
}

// ReedConfig holds the Reed API key.
type ReedConfig struct {
	APIKey string
}

// RotationConfig controls keyword rotation for scheduled passes.
type RotationConfig struct {
	Enabled  bool
	Keywords []string
}

// AIConfig controls the optional LLM layer used for free-text page
// extraction and recommendations.
type AIConfig struct {
	Enabled bool
	BaseURL string        // defaults to https://api.openai.com/v1
	Model   string        // e.g. "gpt-4o-mini"
	APIKey  string        // expanded from env var by Load
	Timeout time.Duration // per-request timeout
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultInterval      = 1 * time.Hour
	defaultFetchTimeout  = 10 * time.Second
	defaultAITimeout     = 60 * time.Second
	defaultDatabasePath  = "jobpool.db"
	defaultPageDelay     = 500 * time.Millisecond
)

// rawConfig is used for YAML unmarshaling (snake_case fields and
// durations as strings).
type rawConfig struct {
	Interval     string            `yaml:"interval"`
	DatabasePath string            `yaml:"database_path"`
	FetchTimeout string            `yaml:"fetch_timeout"`
	Adzuna       rawAdzunaConfig   `yaml:"adzuna"`
	Reed         rawReedConfig     `yaml:"reed"`
	Rotation     rawRotationConfig `yaml:"rotation"`
	AI           rawAIConfig       `yaml:"ai"`
}

type rawAdzunaConfig struct {
	AppID          string `yaml:"app_id"`
	AppKey         string `yaml:"app_key"`
	Country        string `yaml:"country"`
	ResultsPerPage int    `yaml:"results_per_page"`
	MaxPages       int    `yaml:"max_pages"`
	PageDelay      string `yaml:"page_delay"`
}

type rawReedConfig struct {
	APIKey string `yaml:"api_key"`
}

type rawRotationConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Keywords []string `yaml:"keywords"`
}

type rawAIConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// Load reads and parses the YAML config file at path, expands
// environment variables, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables so secrets stay out of the file.
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval := defaultInterval
	if raw.Interval != "" {
		interval, err = time.ParseDuration(raw.Interval)
		if err != nil {
			return nil, fmt.Errorf("parse interval %q: %w", raw.Interval, err)
		}
	}

	fetchTimeout := defaultFetchTimeout
	if raw.FetchTimeout != "" {
		fetchTimeout, err = time.ParseDuration(raw.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse fetch_timeout %q: %w", raw.FetchTimeout, err)
		}
	}

	pageDelay := defaultPageDelay
	if raw.Adzuna.PageDelay != "" {
		pageDelay, err = time.ParseDuration(raw.Adzuna.PageDelay)
		if err != nil {
			return nil, fmt.Errorf("parse adzuna.page_delay %q: %w", raw.Adzuna.PageDelay, err)
		}
	}

	aiTimeout := defaultAITimeout
	if raw.AI.Timeout != "" {
		aiTimeout, err = time.ParseDuration(raw.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse ai.timeout %q: %w", raw.AI.Timeout, err)
		}
	}

	aiBaseURL := raw.AI.BaseURL
	if aiBaseURL == "" {
		aiBaseURL = defaultOpenAIBaseURL
	}

	dbPath := raw.DatabasePath
	if dbPath == "" {
		dbPath = defaultDatabasePath
	}

	cfg := &Config{
		Interval:     interval,
		DatabasePath: dbPath,
		FetchTimeout: fetchTimeout,
		Adzuna: AdzunaConfig{
			AppID:          raw.Adzuna.AppID,
			AppKey:         raw.Adzuna.AppKey,
			Country:        raw.Adzuna.Country,
			ResultsPerPage: raw.Adzuna.ResultsPerPage,
			MaxPages:       raw.Adzuna.MaxPages,
			PageDelay:      pageDelay,
		},
		Reed: ReedConfig{APIKey: raw.Reed.APIKey},
		Rotation: RotationConfig{
			Enabled:  raw.Rotation.Enabled,
			Keywords: raw.Rotation.Keywords,
		},
		AI: AIConfig{
			Enabled: raw.AI.Enabled,
			BaseURL: aiBaseURL,
			Model:   raw.AI.Model,
			APIKey:  raw.AI.APIKey,
			Timeout: aiTimeout,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no config file exists:
// hourly passes into a local database, no credentials.
func Default() *Config {
	return &Config{
		Interval:     defaultInterval,
		DatabasePath: defaultDatabasePath,
		FetchTimeout: defaultFetchTimeout,
		Adzuna:       AdzunaConfig{PageDelay: defaultPageDelay},
		AI: AIConfig{
			BaseURL: defaultOpenAIBaseURL,
			Timeout: defaultAITimeout,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %v", cfg.FetchTimeout)
	}
	if cfg.Adzuna.ResultsPerPage < 0 || cfg.Adzuna.ResultsPerPage > 50 {
		return fmt.Errorf("adzuna.results_per_page must be between 1 and 50, got %d", cfg.Adzuna.ResultsPerPage)
	}
	if cfg.Adzuna.MaxPages < 0 {
		return fmt.Errorf("adzuna.max_pages must not be negative, got %d", cfg.Adzuna.MaxPages)
	}
	if cfg.Rotation.Enabled && len(cfg.Rotation.Keywords) == 0 {
		return fmt.Errorf("rotation.keywords is required when rotation.enabled is true")
	}
	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when ai.enabled is true")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai.enabled is true")
		}
	}
	return nil
}
