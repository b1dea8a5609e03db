package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.PollInterval != 3*time.Second || cfg.HistoryLimit != 50 || cfg.MaxImages != 3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionHeader != "session_id" {
		t.Errorf("session header = %q", cfg.SessionHeader)
	}
	if err := cfg.RequireAPI(); err == nil {
		t.Error("RequireAPI should fail without api_url")
	}
	if cfg.DBPath() != filepath.Join(dir, "rentcheck.db") {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

func TestLoadFromTOMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	toml := `
api_url = "http://localhost:8000/api/v1"
poll_interval = "1s"
history_limit = 10
address_debounce = "250ms"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.mustache"), []byte("{{id}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RENTCHECK_HISTORY_LIMIT", "20")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.APIURL != "http://localhost:8000/api/v1" {
		t.Errorf("api_url = %q", cfg.APIURL)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("poll_interval = %v", cfg.PollInterval)
	}
	if cfg.AddressDebounce != 250*time.Millisecond {
		t.Errorf("address_debounce = %v", cfg.AddressDebounce)
	}
	if cfg.HistoryLimit != 20 {
		t.Errorf("env override ignored, history_limit = %d", cfg.HistoryLimit)
	}
	if cfg.ReportTemplate != "{{id}}" {
		t.Errorf("report template = %q", cfg.ReportTemplate)
	}
}

func TestLoadFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RENTCHECK_MAX_IMAGES=5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv sets the variable for the process; clear it afterwards
	t.Setenv("RENTCHECK_MAX_IMAGES", "")
	os.Unsetenv("RENTCHECK_MAX_IMAGES")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.MaxImages != 5 {
		t.Errorf("max_images = %d, want 5", cfg.MaxImages)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero history limit", func(c *Config) { c.HistoryLimit = 0 }},
		{"negative attempts", func(c *Config) { c.PollMaxAttempts = -1 }},
		{"empty header", func(c *Config) { c.SessionHeader = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromBadTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("poll_interval = \"soon\""), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(dir); err == nil {
		t.Error("expected parse error")
	}
}
