package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("first-run load: %v", err)
	}
	if cfg.WindowDays != 14 {
		t.Errorf("window_days = %d, want default 14", cfg.WindowDays)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}

	info, err := os.Stat(path)
	if err == nil && info.Mode().Perm() != 0o600 {
		t.Errorf("config perms = %o, want 0600", info.Mode().Perm())
	}
}

func TestLoad_ParsesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
source_url: https://example.org/calendar
window_start: "2025-09-01"
window_days: 14
timezone: UTC
min_events: 10
expected_split: [20, 15]
ics_path: /tmp/out/calendar.ics
json_path: /tmp/out/events.json
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SourceURL != "https://example.org/calendar" {
		t.Errorf("source_url = %q", cfg.SourceURL)
	}
	if cfg.LastGoodPath != "/tmp/out/calendar.ics.last-good" {
		t.Errorf("last_good_path not derived: %q", cfg.LastGoodPath)
	}
	if len(cfg.CaptureAllowList) == 0 {
		t.Errorf("allow-list default not applied")
	}
	if cfg.Navigation.MaxPrev != 8 || cfg.Navigation.MaxNext != 12 || cfg.Navigation.MaxStale != 3 {
		t.Errorf("navigation defaults = %+v", cfg.Navigation)
	}
	if len(cfg.ExpectedSplit) != 2 || cfg.ExpectedSplit[0] != 20 || cfg.ExpectedSplit[1] != 15 {
		t.Errorf("expected_split = %v", cfg.ExpectedSplit)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing source url", func(c *Config) { c.SourceURL = "" }},
		{"bad window start", func(c *Config) { c.WindowStart = "next tuesday" }},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"negative split", func(c *Config) { c.ExpectedSplit = []int{20, -1} }},
		{"window too long", func(c *Config) { c.WindowDays = 500 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SourceURL = "https://example.org/calendar"
			cfg.Normalize()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("validation passed")
			}
		})
	}
}

func TestValidate_AcceptsToday(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceURL = "https://example.org/calendar"
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config with source url should validate: %v", err)
	}
}

func TestSave_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.SourceURL = "https://example.org/calendar"
	cfg.WindowDays = 30

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.WindowDays != 30 || loaded.SourceURL != cfg.SourceURL {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}
