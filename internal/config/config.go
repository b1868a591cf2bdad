package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// NavigationConfig bounds the coverage-driven page exploration.
type NavigationConfig struct {
	// MaxPrev / MaxNext cap the number of backward / forward page steps.
	MaxPrev int `yaml:"max_prev" json:"max_prev"`
	MaxNext int `yaml:"max_next" json:"max_next"`

	// MaxStale stops the search after this many consecutive successful
	// movements that yield no new events.
	MaxStale int `yaml:"max_stale" json:"max_stale"`

	// TimeoutSec bounds the whole harvest in wall-clock seconds.
	TimeoutSec int `yaml:"timeout_sec" json:"timeout_sec"`
}

// Validate validates the navigation budgets.
func (c *NavigationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxPrev, validation.Min(1), validation.Max(100)),
		validation.Field(&c.MaxNext, validation.Min(1), validation.Max(100)),
		validation.Field(&c.MaxStale, validation.Min(1), validation.Max(100)),
		validation.Field(&c.TimeoutSec, validation.Min(10)),
	)
}

// Config is the top-level application configuration.
type Config struct {
	// SourceURL is the paginated calendar view to harvest.
	SourceURL string `yaml:"source_url" json:"source_url"`

	// WindowStart is the first day of the requested window: an explicit
	// "2006-01-02" date or the literal "today".
	WindowStart string `yaml:"window_start" json:"window_start"`

	// WindowDays is the window length in days.
	WindowDays int `yaml:"window_days" json:"window_days"`

	// Timezone is the IANA display timezone (e.g. "Europe/London").
	Timezone string `yaml:"timezone" json:"timezone"`

	// MinEvents is the minimum acceptable windowed event count; a harvest
	// below it fails without publishing.
	MinEvents int `yaml:"min_events" json:"min_events"`

	// ExpectedSplit, when non-empty, divides the window into equal
	// consecutive sub-windows and pins the exact event count of each.
	ExpectedSplit []int `yaml:"expected_split,omitempty" json:"expected_split,omitempty"`

	// Output artifact paths.
	ICSPath  string `yaml:"ics_path" json:"ics_path"`
	JSONPath string `yaml:"json_path" json:"json_path"`

	// LastGoodPath holds the last successfully validated artifact; empty
	// derives "<ics_path>.last-good".
	LastGoodPath string `yaml:"last_good_path" json:"last_good_path"`

	// ProtectLastGood enables restoring LastGoodPath over ICSPath when a
	// run fails validation.
	ProtectLastGood bool `yaml:"protect_last_good" json:"protect_last_good"`

	// CaptureAllowList holds lowercase substrings; a network response is
	// captured when its URL contains any of them.
	CaptureAllowList []string `yaml:"capture_allow_list" json:"capture_allow_list"`

	// DumpDir, when set, receives raw captured payloads and the final page
	// HTML for debugging.
	DumpDir string `yaml:"dump_dir,omitempty" json:"dump_dir,omitempty"`

	// HistoryPath is the sqlite run-history database. Empty disables it.
	HistoryPath string `yaml:"history_path,omitempty" json:"history_path,omitempty"`

	// Listen is the HTTP listen address for serve mode.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron schedules re-harvests in serve mode (e.g. "0 */6 * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is DEBUG, INFO or ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Navigation NavigationConfig `yaml:"navigation" json:"navigation"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		SourceURL:        "",
		WindowStart:      "today",
		WindowDays:       14,
		Timezone:         "Europe/London",
		MinEvents:        1,
		ICSPath:          "./out/calendar.ics",
		JSONPath:         "./out/events.json",
		ProtectLastGood:  true,
		CaptureAllowList: []string{"event", "calendar", "schedule", "feed", "api"},
		Listen:           "127.0.0.1:8080",
		RefreshCron:      "0 */6 * * *",
		LogLevel:         "INFO",
		Navigation: NavigationConfig{
			MaxPrev:    8,
			MaxNext:    12,
			MaxStale:   3,
			TimeoutSec: 180,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.WindowStart == "" {
		c.WindowStart = def.WindowStart
	}
	if c.WindowDays <= 0 {
		c.WindowDays = def.WindowDays
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.MinEvents <= 0 {
		c.MinEvents = def.MinEvents
	}
	if c.ICSPath == "" {
		c.ICSPath = def.ICSPath
	}
	if c.JSONPath == "" {
		c.JSONPath = def.JSONPath
	}
	if c.LastGoodPath == "" {
		c.LastGoodPath = c.ICSPath + ".last-good"
	}
	if len(c.CaptureAllowList) == 0 {
		c.CaptureAllowList = def.CaptureAllowList
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Navigation.MaxPrev <= 0 {
		c.Navigation.MaxPrev = def.Navigation.MaxPrev
	}
	if c.Navigation.MaxNext <= 0 {
		c.Navigation.MaxNext = def.Navigation.MaxNext
	}
	if c.Navigation.MaxStale <= 0 {
		c.Navigation.MaxStale = def.Navigation.MaxStale
	}
	if c.Navigation.TimeoutSec <= 0 {
		c.Navigation.TimeoutSec = def.Navigation.TimeoutSec
	}
}

// Validate validates the configuration. Normalize should run first.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SourceURL, validation.Required),
		validation.Field(&c.WindowDays, validation.Min(1), validation.Max(366)),
		validation.Field(&c.ICSPath, validation.Required),
		validation.Field(&c.JSONPath, validation.Required),
	); err != nil {
		return err
	}

	if c.WindowStart != "today" {
		if _, err := time.Parse("2006-01-02", c.WindowStart); err != nil {
			return fmt.Errorf("config: window_start must be \"today\" or a 2006-01-02 date: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", c.Timezone, err)
	}
	for i, n := range c.ExpectedSplit {
		if n < 0 {
			return fmt.Errorf("config: expected_split[%d] is negative", i)
		}
	}
	return c.Navigation.Validate()
}

// Location resolves the configured display timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create parent directory if needed, write
//     a default config with 0600 perms, and return the default config.
//   - If the file exists: read YAML, normalize defaults, validate.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calharvest-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
