package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"uqconnect/internal/schedule"
)

// RefreshOff disables the periodic subscription refresh.
const RefreshOff = "off"

// ScheduleConfig tunes the free-slot scan.
type ScheduleConfig struct {
	// HorizonDays is the number of days scanned, today inclusive.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	DayStartHour int `yaml:"day_start_hour" json:"day_start_hour"`
	DayEndHour   int `yaml:"day_end_hour" json:"day_end_hour"`
	// MinGapMinutes is the shortest gap reported as a free slot.
	MinGapMinutes int `yaml:"min_gap_minutes" json:"min_gap_minutes"`
}

// ImportConfig controls fetching of external calendar URLs.
type ImportConfig struct {
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// RateLimitConfig bounds the expensive calendar endpoints per client IP.
type RateLimitConfig struct {
	ImportPerMinute int `yaml:"import_per_minute" json:"import_per_minute"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir is the badger directory holding user calendars.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// CataloguePath is the YAML file with the campus event catalogue. It is
	// created with default events on first run and hot-reloaded on change.
	CataloguePath string `yaml:"catalogue_path" json:"catalogue_path"`

	// CacheDir stores fetched ICS bodies and their HTTP cache metadata.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule (e.g. "0 */6 * * *") for
	// re-importing subscribed calendar URLs. "off" disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// MaxRecommendations caps the recommendation list.
	MaxRecommendations int `yaml:"max_recommendations" json:"max_recommendations"`

	Import    ImportConfig    `yaml:"import" json:"import"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health. The username becomes the user identity.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:3001"
	}
	if c.DataDir == "" {
		c.DataDir = "./data/calendars"
	}
	if c.CataloguePath == "" {
		c.CataloguePath = "./data/events.yaml"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./data/ics-cache"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 */6 * * *"
	}

	def := schedule.DefaultWindow()
	if c.Schedule.HorizonDays <= 0 {
		c.Schedule.HorizonDays = def.Days
	}
	// Hours outside [0, 24] or an empty window fall back to 08:00-21:00.
	if c.Schedule.DayStartHour < 0 || c.Schedule.DayEndHour > 24 ||
		c.Schedule.DayStartHour >= c.Schedule.DayEndHour {
		c.Schedule.DayStartHour = def.DayStartHour
		c.Schedule.DayEndHour = def.DayEndHour
	}
	if c.Schedule.MinGapMinutes <= 0 {
		c.Schedule.MinGapMinutes = int(def.MinGap / time.Minute)
	}

	if c.MaxRecommendations <= 0 {
		c.MaxRecommendations = 5
	}
	if c.Import.UserAgent == "" {
		c.Import.UserAgent = "UQConnect/1.0 (+https://uqconnect.local)"
	}
	if c.Import.TimeoutSeconds <= 0 {
		c.Import.TimeoutSeconds = 15
	}
	if c.Import.MaxBodyBytes <= 0 {
		c.Import.MaxBodyBytes = 5 << 20
	}
	if c.RateLimit.ImportPerMinute <= 0 {
		c.RateLimit.ImportPerMinute = 10
	}
}

// Window converts the schedule section into a free-slot scan window.
func (c *Config) Window() schedule.Window {
	return schedule.Window{
		Days:         c.Schedule.HorizonDays,
		DayStartHour: c.Schedule.DayStartHour,
		DayEndHour:   c.Schedule.DayEndHour,
		MinGap:       time.Duration(c.Schedule.MinGapMinutes) * time.Minute,
	}
}

// RefreshEnabled reports whether periodic subscription refresh is on.
func (c *Config) RefreshEnabled() bool {
	return c.RefreshCron != RefreshOff
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
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
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save normalizes cfg and writes it to path atomically with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
