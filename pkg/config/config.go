// Package config handles workspace configuration for domkit.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/domkit/pkg/core"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultDriver       = "rod"
	DefaultActionMs     = 5000
	DefaultNavigationMs = 30000
	DefaultMaxSteps     = 24
	DefaultArtifacts    = "onFailure"
	DefaultWidth        = 1280
	DefaultHeight       = 720
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// Flow selection
	Flows       []string `yaml:"flows"`       // Glob patterns for flows
	IncludeTags []string `yaml:"includeTags"` // Tags to include
	ExcludeTags []string `yaml:"excludeTags"` // Tags to exclude

	// Execution settings
	Env map[string]string `yaml:"env"` // Environment variables

	Browser  BrowserConfig  `yaml:"browser"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Calendar CalendarConfig `yaml:"calendar"`
	Report   ReportConfig   `yaml:"report"`
}

// BrowserConfig selects and configures the browser driver.
type BrowserConfig struct {
	Driver           string   `yaml:"driver"`    // rod, mock
	Headless         *bool    `yaml:"headless"`  // Default true
	RemoteURL        string   `yaml:"remoteURL"` // DevTools endpoint of a running browser
	Stealth          bool     `yaml:"stealth"`
	Bin              string   `yaml:"bin"` // Browser binary; downloaded when empty
	SlowMotionMs     int      `yaml:"slowMotion"`
	Viewport         Viewport `yaml:"viewport"`
	IgnoreCertErrors bool     `yaml:"ignoreCertErrors"`
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TimeoutConfig holds wait budgets in milliseconds.
type TimeoutConfig struct {
	ActionMs     int `yaml:"actionMs"`
	NavigationMs int `yaml:"navigationMs"`
}

// Action returns the per-action wait.
func (t TimeoutConfig) Action() time.Duration {
	return time.Duration(t.ActionMs) * time.Millisecond
}

// Navigation returns the bound for page navigations.
func (t TimeoutConfig) Navigation() time.Duration {
	return time.Duration(t.NavigationMs) * time.Millisecond
}

// CalendarConfig holds the default date picker selectors.
type CalendarConfig struct {
	NextButton string `yaml:"nextButton"`
	PrevButton string `yaml:"prevButton"`
	Label      string `yaml:"label"`
	DayCell    string `yaml:"dayCell"`
	MaxSteps   int    `yaml:"maxSteps"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	OutputDir string `yaml:"outputDir"`
	Artifacts string `yaml:"artifacts"` // onFailure, always, never
	HTML      *bool  `yaml:"html"`      // Write report.html; default true
	EmbedHTML bool   `yaml:"embedHtml"` // Inline screenshots into report.html
}

// HTMLEnabled reports whether report.html is written. Unset means true.
func (r ReportConfig) HTMLEnabled() bool {
	return r.HTML == nil || *r.HTML
}

// IsHeadless reports whether the browser runs headless. Unset means true.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return empty config
	return &Config{}, nil
}

// ApplyDefaults fills unset fields. Calendar selectors stay empty; the
// navigator supplies its own.
func (c *Config) ApplyDefaults() {
	if c.Browser.Driver == "" {
		c.Browser.Driver = DefaultDriver
	}
	if c.Browser.Viewport.Width == 0 {
		c.Browser.Viewport.Width = DefaultWidth
	}
	if c.Browser.Viewport.Height == 0 {
		c.Browser.Viewport.Height = DefaultHeight
	}
	if c.Timeouts.ActionMs == 0 {
		c.Timeouts.ActionMs = DefaultActionMs
	}
	if c.Timeouts.NavigationMs == 0 {
		c.Timeouts.NavigationMs = DefaultNavigationMs
	}
	if c.Calendar.MaxSteps == 0 {
		c.Calendar.MaxSteps = DefaultMaxSteps
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = GetReportsDir()
	}
	if c.Report.Artifacts == "" {
		c.Report.Artifacts = DefaultArtifacts
	}
}

// Validate checks field values after defaults are applied.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "rod", "mock":
	default:
		return core.ErrInvalidConfig.WithMessagef("browser.driver %q: want rod or mock", c.Browser.Driver)
	}
	switch c.Report.Artifacts {
	case "onFailure", "always", "never":
	default:
		return core.ErrInvalidConfig.WithMessagef("report.artifacts %q: want onFailure, always or never", c.Report.Artifacts)
	}
	if c.Timeouts.ActionMs < 0 || c.Timeouts.NavigationMs < 0 {
		return core.ErrInvalidConfig.WithMessage("timeouts must not be negative")
	}
	if c.Calendar.MaxSteps < 0 {
		return core.ErrInvalidConfig.WithMessagef("calendar.maxSteps %d must not be negative", c.Calendar.MaxSteps)
	}
	if c.Browser.SlowMotionMs < 0 {
		return core.ErrInvalidConfig.WithMessage("browser.slowMotion must not be negative")
	}
	if c.Browser.Viewport.Width < 0 || c.Browser.Viewport.Height < 0 {
		return core.ErrInvalidConfig.WithMessage("browser.viewport must not be negative")
	}
	return nil
}
