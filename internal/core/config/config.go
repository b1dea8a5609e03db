package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultReportTemplate renders a final report for the terminal and for export.
const DefaultReportTemplate = `# Rental check {{id}}

Status: {{status}}{{#created}} (submitted {{created}}){{/created}}
{{#address}}Address: {{address}}
{{/address}}{{#location}}Location: {{location}}
{{/location}}{{#incomplete}}Submitted without: {{incomplete}}
{{/incomplete}}{{#report}}
Authenticity: {{authenticity_score}}/100 ({{authenticity_label}})
Quality:      {{quality_score}}/100 ({{quality_label}})

{{sidebar_summary}}

{{explanation}}
{{#has_flags}}
Flags:
{{#flags}}  - [{{category}}] {{description}}
{{/flags}}{{/has_flags}}{{#has_actions}}
Suggested actions:
{{#suggested_actions}}  - {{.}}
{{/suggested_actions}}{{/has_actions}}{{/report}}{{#error_detail}}
Analysis failed: {{error_detail}}
{{/error_detail}}`

const envPrefix = "RENTCHECK_"

// Config holds client settings. Values are layered: defaults, then
// config.toml, then .env, then RENTCHECK_* environment variables.
type Config struct {
	Dir              string // configuration directory
	APIURL           string // analysis service base URL, including any /api/v1 prefix
	SessionHeader    string
	RequestTimeout   time.Duration
	PollInterval     time.Duration
	PollMaxAttempts  int // 0 disables the ceiling
	HistoryLimit     int
	MaxImages        int
	MinListingLength int
	AddressDebounce  time.Duration
	LogLevel         string
	LogFormat        string
	MetricsAddr      string
	ReportTemplate   string
}

type tomlConfig struct {
	APIURL           *string   `toml:"api_url"`
	SessionHeader    *string   `toml:"session_header"`
	RequestTimeout   *duration `toml:"request_timeout"`
	PollInterval     *duration `toml:"poll_interval"`
	PollMaxAttempts  *int      `toml:"poll_max_attempts"`
	HistoryLimit     *int      `toml:"history_limit"`
	MaxImages        *int      `toml:"max_images"`
	MinListingLength *int      `toml:"min_listing_length"`
	AddressDebounce  *duration `toml:"address_debounce"`
	LogLevel         *string   `toml:"log_level"`
	LogFormat        *string   `toml:"log_format"`
	MetricsAddr      *string   `toml:"metrics_addr"`
	ReportTemplate   *string   `toml:"report_template"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		SessionHeader:    "session_id",
		RequestTimeout:   30 * time.Second,
		PollInterval:     3 * time.Second,
		PollMaxAttempts:  200,
		HistoryLimit:     50,
		MaxImages:        3,
		MinListingLength: 100,
		AddressDebounce:  500 * time.Millisecond,
		LogLevel:         "warn",
		LogFormat:        "console",
		ReportTemplate:   DefaultReportTemplate,
	}
}

// DefaultDir returns ~/.config/rentcheck.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rentcheck"), nil
}

// Load reads config from ~/.config/rentcheck/
func Load() (*Config, error) {
	dir, err := DefaultDir()
	if err != nil {
		cfg := Defaults()
		applyEnv(cfg)
		return cfg, cfg.Validate()
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.toml and report.mustache from dir, then applies
// .env files and RENTCHECK_* environment variables.
func LoadFrom(dir string) (*Config, error) {
	cfg := Defaults()
	cfg.Dir = dir

	tomlPath := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		var tc tomlConfig
		if _, err := toml.DecodeFile(tomlPath, &tc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", tomlPath, err)
		}
		tc.apply(cfg)
	}

	// A custom template file wins over report_template in config.toml
	if data, err := os.ReadFile(filepath.Join(dir, "report.mustache")); err == nil {
		cfg.ReportTemplate = string(data)
	}

	// godotenv never overrides variables that are already set
	for _, path := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (tc *tomlConfig) apply(cfg *Config) {
	setString(&cfg.APIURL, tc.APIURL)
	setString(&cfg.SessionHeader, tc.SessionHeader)
	setString(&cfg.LogLevel, tc.LogLevel)
	setString(&cfg.LogFormat, tc.LogFormat)
	setString(&cfg.MetricsAddr, tc.MetricsAddr)
	setString(&cfg.ReportTemplate, tc.ReportTemplate)
	setInt(&cfg.PollMaxAttempts, tc.PollMaxAttempts)
	setInt(&cfg.HistoryLimit, tc.HistoryLimit)
	setInt(&cfg.MaxImages, tc.MaxImages)
	setInt(&cfg.MinListingLength, tc.MinListingLength)
	setDuration(&cfg.RequestTimeout, tc.RequestTimeout)
	setDuration(&cfg.PollInterval, tc.PollInterval)
	setDuration(&cfg.AddressDebounce, tc.AddressDebounce)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *duration) {
	if v != nil {
		*dst = v.Duration
	}
}

func applyEnv(cfg *Config) {
	cfg.APIURL = getEnv("API_URL", cfg.APIURL)
	cfg.SessionHeader = getEnv("SESSION_HEADER", cfg.SessionHeader)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.PollMaxAttempts = getEnvInt("POLL_MAX_ATTEMPTS", cfg.PollMaxAttempts)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.MaxImages = getEnvInt("MAX_IMAGES", cfg.MaxImages)
	cfg.MinListingLength = getEnvInt("MIN_LISTING_LENGTH", cfg.MinListingLength)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.AddressDebounce = getEnvDuration("ADDRESS_DEBOUNCE", cfg.AddressDebounce)
}

// Validate rejects settings the client cannot run with. A missing API URL is
// checked separately by RequireAPI since offline commands do not need it.
func (c *Config) Validate() error {
	var errs []error
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.PollMaxAttempts < 0 {
		errs = append(errs, errors.New("poll_max_attempts must not be negative"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history_limit must be positive"))
	}
	if c.MaxImages <= 0 {
		errs = append(errs, errors.New("max_images must be positive"))
	}
	if c.MinListingLength < 0 {
		errs = append(errs, errors.New("min_listing_length must not be negative"))
	}
	if c.AddressDebounce < 0 {
		errs = append(errs, errors.New("address_debounce must not be negative"))
	}
	if strings.TrimSpace(c.SessionHeader) == "" {
		errs = append(errs, errors.New("session_header must not be empty"))
	}
	return errors.Join(errs...)
}

// RequireAPI reports an error naming the missing setting when no base URL is configured.
func (c *Config) RequireAPI() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api_url is not set (set it in %s or %sAPI_URL)",
			filepath.Join(c.Dir, "config.toml"), envPrefix)
	}
	return nil
}

// DBPath is the default local store location.
func (c *Config) DBPath() string {
	return filepath.Join(c.Dir, "rentcheck.db")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(envPrefix + key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(envPrefix + key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(envPrefix + key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
