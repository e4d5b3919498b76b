package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"backupviz/internal/derive"
	"backupviz/internal/grid"
	"backupviz/internal/view"
)

// Enumerated option values, as spelled in the YAML file.
const (
	MatchExact    = string(grid.MatchExact)
	MatchContains = string(grid.MatchContains)

	DetailSticky = string(view.DetailSticky)
	DetailClear  = string(view.DetailClear)

	OrderFirstSeen     = string(derive.OrderFirstSeen)
	OrderChronological = string(derive.OrderChronological)
)

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "UTC"
	defaultRefresh  = "*/15 * * * *"
	defaultCacheDir = "/var/lib/backupviz/payload-cache"
	defaultPreview  = "/var/lib/backupviz/preview.png"
)

// PayloadConfig describes where the schedule payload comes from. When both
// are set, Path wins. When neither is set the demo generator is used.
type PayloadConfig struct {
	// Path is a local JSON (or .ics) payload file.
	Path string `yaml:"path" json:"path"`
	// URL is fetched with ETag / Last-Modified caching.
	URL string `yaml:"url" json:"url"`
	// CacheDir stores the last good remote body.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// WindowConfig presets the two filter inputs on startup.
type WindowConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// DemoSchedule is an RRULE-driven schedule used by the demo payload.
type DemoSchedule struct {
	ID    string `yaml:"id" json:"id"`
	Type  string `yaml:"type" json:"type"`
	RRule string `yaml:"rrule" json:"rrule"`
	// Source, if set, links every occurrence to the latest occurrence of the
	// schedule with this id at or before it.
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// DemoConfig controls the generated payload.
type DemoConfig struct {
	// Start anchors DTSTART for every rule ("2006-01-02T15:04").
	Start string `yaml:"start" json:"start"`
	// Days is how far past Start occurrences are generated.
	Days int `yaml:"days" json:"days"`

	// MaxOccurrences caps each schedule's expansion; zero means 5000.
	MaxOccurrences int            `yaml:"max_occurrences" json:"max_occurrences"`
	Schedules      []DemoSchedule `yaml:"schedules" json:"schedules"`
}

// CaptureConfig controls chromedp page captures.
type CaptureConfig struct {
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
	OutputPath string `yaml:"output_path" json:"output_path"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for timestamps without an offset,
	// including the datetime-local filter inputs.
	Timezone string `yaml:"timezone" json:"timezone"`

	Payload PayloadConfig `yaml:"payload" json:"payload"`

	// RefreshCron is a cron-style schedule for reloading the payload.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MatchMode is "exact" or "contains".
	MatchMode string `yaml:"match_mode" json:"match_mode"`

	// DetailMode is "sticky" (keep the last hovered cell's details after the
	// pointer leaves) or "clear".
	DetailMode string `yaml:"detail_mode" json:"detail_mode"`

	// IntervalOrder is "first_seen" or "chronological".
	IntervalOrder string `yaml:"interval_order" json:"interval_order"`

	DefaultWindow *WindowConfig `yaml:"default_window,omitempty" json:"default_window,omitempty"`

	Demo DemoConfig `yaml:"demo" json:"demo"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultDemo is a small chain: nightly backup, a cloud copy triggered by it,
// and hourly snapshots during the working day.
func DefaultDemo() DemoConfig {
	return DemoConfig{
		Start: "2024-01-01T00:00",
		Days:  3,
		Schedules: []DemoSchedule{
			{ID: "1", Type: "SNAPSHOT", RRule: "FREQ=HOURLY;INTERVAL=4"},
			{ID: "2", Type: "BACKUP", RRule: "FREQ=DAILY;BYHOUR=1;BYMINUTE=0;BYSECOND=0"},
			{ID: "3", Type: "CLOUD_BACKUP", RRule: "FREQ=DAILY;BYHOUR=2;BYMINUTE=0;BYSECOND=0", Source: "2"},
		},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		Payload:       PayloadConfig{CacheDir: defaultCacheDir},
		RefreshCron:   defaultRefresh,
		MatchMode:     MatchExact,
		DetailMode:    DetailSticky,
		IntervalOrder: OrderFirstSeen,
		Demo:          DefaultDemo(),
		Capture: CaptureConfig{
			Width:      1280,
			Height:     800,
			TimeoutSec: 30,
			OutputPath: defaultPreview,
		},
		LogLevel:  "info",
		BasicAuth: nil,
	}
}

// Normalize fills in missing values and coerces unknown enum values back to
// their defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Payload.CacheDir == "" {
		c.Payload.CacheDir = defaultCacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}

	switch c.MatchMode {
	case MatchExact, MatchContains:
	default:
		c.MatchMode = MatchExact
	}
	switch c.DetailMode {
	case DetailSticky, DetailClear:
	default:
		c.DetailMode = DetailSticky
	}
	switch c.IntervalOrder {
	case OrderFirstSeen, OrderChronological:
	default:
		c.IntervalOrder = OrderFirstSeen
	}

	if len(c.Demo.Schedules) == 0 {
		c.Demo = DefaultDemo()
	}
	if c.Demo.Days <= 0 {
		c.Demo.Days = 3
	}

	if c.Capture.Width <= 0 {
		c.Capture.Width = 1280
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 800
	}
	if c.Capture.TimeoutSec <= 0 {
		c.Capture.TimeoutSec = 30
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = defaultPreview
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ViewOptions returns the view settings for an already normalized config.
func (c *Config) ViewOptions(loc *time.Location) view.Options {
	return view.Options{
		Location: loc,
		Order:    derive.IntervalOrder(c.IntervalOrder),
		Match:    grid.MatchMode(c.MatchMode),
		Detail:   view.DetailMode(c.DetailMode),
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	for i, s := range c.Demo.Schedules {
		if s.ID == "" || s.RRule == "" {
			return fmt.Errorf("config: demo schedule %d needs id and rrule", i)
		}
		if _, err := rrule.StrToRRule(s.RRule); err != nil {
			return fmt.Errorf("config: demo schedule %s: %w", s.ID, err)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path. A missing file is
// created with defaults (0600) and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unwritable path is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions,
// creating the parent directory (0700) if needed.
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

	tmp, err := os.CreateTemp(dir, ".backupviz-config-*.tmp")
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

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
