package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all scrollback configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Target site
	Target TargetConfig `yaml:"target"`

	// Browser control
	Browser BrowserConfig `yaml:"browser"`

	// Scroll/pagination driver
	Scrape ScrapeConfig `yaml:"scrape"`

	// Network interception
	Intercept InterceptConfig `yaml:"intercept"`

	// Transcript export
	Export ExportConfig `yaml:"export"`

	// External analyzer
	Analysis AnalysisConfig `yaml:"analysis"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// TargetConfig describes the chat application being scraped.
type TargetConfig struct {
	BaseURL  string `yaml:"base_url"`  // App root, used by sidebar scan
	NameHint string `yaml:"name_hint"` // Character display name to strip from DOM text
}

// BrowserConfig configures the Chromium instance.
type BrowserConfig struct {
	BinPath      string `yaml:"bin_path"` // empty = let the launcher find one
	Headless     bool   `yaml:"headless"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	NavTimeout   string `yaml:"nav_timeout"`
	ControlFile  string `yaml:"control_file"` // relative to workspace
}

// ScrapeConfig configures the scroll/pagination driver.
type ScrapeConfig struct {
	MaxCycles         int    `yaml:"max_cycles"`         // unconditional safety ceiling
	SettleMin         string `yaml:"settle_min"`         // per-cycle settle lower bound
	SettleMax         string `yaml:"settle_max"`         // per-cycle settle upper bound
	AggressiveSettle  string `yaml:"aggressive_settle"`  // settle after aggressive manipulation
	AggressiveAfter   int    `yaml:"aggressive_after"`   // stalls before aggressive tier
	InterventionAfter int    `yaml:"intervention_after"` // stalls before manual-intervention tier
	MaxTextRunes      int    `yaml:"max_text_runes"`     // per-message clip length
}

// InterceptConfig configures the network response aggregator.
type InterceptConfig struct {
	URLPatterns       []string `yaml:"url_patterns"`        // substrings a chat-history URL contains
	LowConfidenceMin  int      `yaml:"low_confidence_min"`  // record count below which capture is low-confidence
	LowConfidenceWait string   `yaml:"low_confidence_wait"` // post-loop manual-scroll grace window
}

// ExportConfig configures transcript writers.
type ExportConfig struct {
	Dir     string   `yaml:"dir"`     // relative to workspace
	Formats []string `yaml:"formats"` // jsonl, json, markdown
}

// AnalysisConfig configures the external transcript analyzer.
type AnalysisConfig struct {
	Command string   `yaml:"command"` // analyzer binary; empty disables analysis
	Args    []string `yaml:"args"`    // argv prefix before the transcript path
	Timeout string   `yaml:"timeout"`
}

// LoggingConfig configures the categorized file logger.
// internal/logging reads this block directly from the config file.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "scrollback",
		Version: "0.3.0",

		Target: TargetConfig{
			BaseURL:  "",
			NameHint: "",
		},

		Browser: BrowserConfig{
			BinPath:      "",
			Headless:     false,
			WindowWidth:  1280,
			WindowHeight: 900,
			NavTimeout:   "25s",
			ControlFile:  filepath.Join(".scrollback", "browser", "control.txt"),
		},

		Scrape: ScrapeConfig{
			MaxCycles:         60,
			SettleMin:         "2s",
			SettleMax:         "3s",
			AggressiveSettle:  "3500ms",
			AggressiveAfter:   2,
			InterventionAfter: 5,
			MaxTextRunes:      10000,
		},

		Intercept: InterceptConfig{
			URLPatterns:       []string{"/chat", "/message", "/history", "/turn"},
			LowConfidenceMin:  5,
			LowConfidenceWait: "30s",
		},

		Export: ExportConfig{
			Dir:     "exports",
			Formats: []string{"jsonl"},
		},

		Analysis: AnalysisConfig{
			Command: "",
			Args:    nil,
			Timeout: "60s",
		},

		Logging: LoggingConfig{
			DebugMode:  false,
			Level:      "info",
			JSONFormat: false,
		},
	}
}

// DefaultPath returns the default config path under the workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".scrollback", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("SCROLLBACK_BASE_URL"); url != "" {
		c.Target.BaseURL = url
	}
	if hint := os.Getenv("SCROLLBACK_NAME_HINT"); hint != "" {
		c.Target.NameHint = hint
	}
	if bin := os.Getenv("SCROLLBACK_BROWSER_BIN"); bin != "" {
		c.Browser.BinPath = bin
	}
	if v := os.Getenv("SCROLLBACK_HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = headless
		}
	}
	if dir := os.Getenv("SCROLLBACK_EXPORT_DIR"); dir != "" {
		c.Export.Dir = dir
	}
	if cmd := os.Getenv("SCROLLBACK_ANALYZER"); cmd != "" {
		c.Analysis.Command = cmd
	}
	if v := os.Getenv("SCROLLBACK_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = debug
			if debug && c.Logging.Level == "info" {
				c.Logging.Level = "debug"
			}
		}
	}
}

// GetNavTimeout returns the navigation timeout as a duration.
func (c *Config) GetNavTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavTimeout)
	if err != nil {
		return 25 * time.Second
	}
	return d
}

// GetSettleMin returns the lower settle bound as a duration.
func (c *Config) GetSettleMin() time.Duration {
	d, err := time.ParseDuration(c.Scrape.SettleMin)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetSettleMax returns the upper settle bound as a duration.
func (c *Config) GetSettleMax() time.Duration {
	d, err := time.ParseDuration(c.Scrape.SettleMax)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// GetAggressiveSettle returns the post-aggressive-scroll settle as a duration.
func (c *Config) GetAggressiveSettle() time.Duration {
	d, err := time.ParseDuration(c.Scrape.AggressiveSettle)
	if err != nil {
		return 3500 * time.Millisecond
	}
	return d
}

// GetLowConfidenceWait returns the manual-scroll grace window as a duration.
func (c *Config) GetLowConfidenceWait() time.Duration {
	d, err := time.ParseDuration(c.Intercept.LowConfidenceWait)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetAnalysisTimeout returns the analyzer timeout as a duration.
func (c *Config) GetAnalysisTimeout() time.Duration {
	d, err := time.ParseDuration(c.Analysis.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// ValidFormats lists the supported export formats.
var ValidFormats = []string{"jsonl", "json", "markdown"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scrape.MaxCycles < 1 {
		return fmt.Errorf("scrape.max_cycles must be at least 1, got %d", c.Scrape.MaxCycles)
	}
	if c.Scrape.AggressiveAfter >= c.Scrape.InterventionAfter {
		return fmt.Errorf("scrape.aggressive_after (%d) must be below scrape.intervention_after (%d)",
			c.Scrape.AggressiveAfter, c.Scrape.InterventionAfter)
	}
	if c.GetSettleMin() > c.GetSettleMax() {
		return fmt.Errorf("scrape.settle_min (%s) exceeds scrape.settle_max (%s)",
			c.Scrape.SettleMin, c.Scrape.SettleMax)
	}
	for _, f := range c.Export.Formats {
		valid := false
		for _, v := range ValidFormats {
			if f == v {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("invalid export format: %s (valid: %v)", f, ValidFormats)
		}
	}
	return nil
}
