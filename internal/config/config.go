package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where Load looks when no --config flag is given
const DefaultPath = "snsweep.toml"

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	LogLevel string         `toml:"log_level"`
	Search   SearchConfig   `toml:"search"`
	Collect  CollectConfig  `toml:"collect"`
	Cache    CacheConfig    `toml:"cache"`
	Sources  SourcesConfig  `toml:"sources"`
	Output   OutputConfig   `toml:"output"`
	Analysis AnalysisConfig `toml:"analysis"`
	Daemon   DaemonConfig   `toml:"daemon"`
}

type SearchConfig struct {
	Keywords           []string `toml:"keywords"`
	LookbackHours      int      `toml:"lookback_hours"`
	IncludeUnknownTime bool     `toml:"include_unknown_time"`
}

type CollectConfig struct {
	LimitPerSource               int    `toml:"limit_per_source"`
	Workers                      int    `toml:"workers"`
	ScrollLimit                  int    `toml:"scroll_limit"`
	ScrollWaitMs                 int    `toml:"scroll_wait_ms"`
	NoGrowthBreakLimit           int    `toml:"no_growth_break_limit"`
	OldPostBreakLimit            int    `toml:"old_post_break_limit"`
	NavRetries                   int    `toml:"nav_retries"`
	NavRetryBaseMs               int    `toml:"nav_retry_base_ms"`
	NavTimeoutMs                 int    `toml:"nav_timeout_ms"`
	BlockResources               bool   `toml:"block_resources"`
	XKeywordFilter               bool   `toml:"x_keyword_filter"`
	InstagramCandidateMultiplier int    `toml:"instagram_candidate_multiplier"`
	SelectorVersion              string `toml:"selector_version"`
	Headless                     bool   `toml:"headless"`
	CookieFile                   string `toml:"cookie_file"`
}

type CacheConfig struct {
	Enabled     bool   `toml:"enabled"`
	Path        string `toml:"path"`
	WindowHours int    `toml:"window_hours"`
	MaxURLs     int    `toml:"max_urls"`
}

type SourcesConfig struct {
	Path string `toml:"path"`
}

type OutputConfig struct {
	Path  string `toml:"path"`
	Sheet string `toml:"sheet"`
}

type AnalysisConfig struct {
	Enabled bool     `toml:"enabled"`
	APIKey  string   `toml:"api_key"`
	Models  []string `toml:"models"`
}

type DaemonConfig struct {
	Schedule string `toml:"schedule"`
	Timezone string `toml:"timezone"`
	Listen   string `toml:"listen"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		Search: SearchConfig{
			Keywords:           []string{},
			LookbackHours:      24,
			IncludeUnknownTime: false,
		},
		Collect: CollectConfig{
			LimitPerSource:               20,
			Workers:                      3,
			ScrollLimit:                  8,
			ScrollWaitMs:                 1500,
			NoGrowthBreakLimit:           2,
			OldPostBreakLimit:            8,
			NavRetries:                   2,
			NavRetryBaseMs:               800,
			NavTimeoutMs:                 25000,
			BlockResources:               true,
			XKeywordFilter:               false,
			InstagramCandidateMultiplier: 4,
			SelectorVersion:              "v1",
			Headless:                     true,
		},
		Cache: CacheConfig{
			Enabled:     true,
			Path:        "snsweep_cache.sqlite3",
			WindowHours: 168,
			MaxURLs:     200000,
		},
		Sources: SourcesConfig{
			Path: "sources.xlsx",
		},
		Output: OutputConfig{
			Path:  "SNS_News_Collection.xlsx",
			Sheet: "News_Data",
		},
		Analysis: AnalysisConfig{
			Enabled: true,
			Models:  []string{"gemini-2.0-flash", "gemini-1.5-flash"},
		},
		Daemon: DaemonConfig{
			Schedule: "0 7 * * *",
			Timezone: "Asia/Seoul",
			Listen:   ":8799",
		},
	}
}

// Load reads config from path, falling back to defaults when the file is
// missing. Environment variables are applied on top in either case.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes config to path
func (c *Config) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// applyEnv overlays environment variables onto the config. Collection knobs
// use plain deployment names; secrets use the provider's own variable.
func (c *Config) applyEnv() {
	c.Search.Keywords = getSliceEnv("SEARCH_KEYWORDS", c.Search.Keywords)
	c.Search.LookbackHours = getIntEnv("LOOKBACK_HOURS", c.Search.LookbackHours)
	c.Collect.Workers = getIntEnv("COLLECT_WORKERS", c.Collect.Workers)
	c.Collect.NoGrowthBreakLimit = getIntEnv("NO_GROWTH_BREAK_LIMIT", c.Collect.NoGrowthBreakLimit)
	c.Collect.OldPostBreakLimit = getIntEnv("OLD_POST_BREAK_LIMIT", c.Collect.OldPostBreakLimit)
	c.Collect.NavRetries = getIntEnv("COLLECTOR_RETRIES", c.Collect.NavRetries)
	c.Collect.NavRetryBaseMs = getIntEnv("COLLECTOR_RETRY_BASE_MS", c.Collect.NavRetryBaseMs)
	c.Collect.InstagramCandidateMultiplier = getIntEnv("INSTAGRAM_CANDIDATE_MULTIPLIER", c.Collect.InstagramCandidateMultiplier)
	c.Collect.SelectorVersion = getEnv("SELECTOR_VERSION", c.Collect.SelectorVersion)
	c.Cache.Path = getEnv("CACHE_DB_PATH", c.Cache.Path)
	c.Cache.WindowHours = getIntEnv("CACHE_WINDOW_HOURS", c.Cache.WindowHours)
	c.Cache.MaxURLs = getIntEnv("CACHE_MAX_URLS", c.Cache.MaxURLs)
	c.Analysis.APIKey = getEnv("GEMINI_API_KEY", c.Analysis.APIKey)
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.Analysis.Models = append([]string{model}, c.Analysis.Models...)
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.Collect.LimitPerSource < 1 {
		problems = append(problems, "collect.limit_per_source must be >= 1")
	}
	if c.Collect.Workers < 1 {
		problems = append(problems, "collect.workers must be >= 1")
	}
	if c.Collect.ScrollLimit < 1 {
		problems = append(problems, "collect.scroll_limit must be >= 1")
	}
	if c.Collect.ScrollWaitMs < 100 {
		problems = append(problems, "collect.scroll_wait_ms must be >= 100")
	}
	if c.Collect.NavTimeoutMs < 1000 {
		problems = append(problems, "collect.nav_timeout_ms must be >= 1000")
	}
	if c.Collect.NavRetryBaseMs < 100 {
		problems = append(problems, "collect.nav_retry_base_ms must be >= 100")
	}
	if c.Collect.InstagramCandidateMultiplier < 1 {
		problems = append(problems, "collect.instagram_candidate_multiplier must be >= 1")
	}
	if c.Search.LookbackHours < 0 {
		problems = append(problems, "search.lookback_hours must be >= 0")
	}
	if c.Sources.Path == "" {
		problems = append(problems, "sources.path must not be empty")
	}
	if c.Output.Path == "" || c.Output.Sheet == "" {
		problems = append(problems, "output.path and output.sheet must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getSliceEnv(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
