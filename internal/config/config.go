// Package config loads awcal settings from the global and project YAML
// files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/fakeyudi/awcal/internal/activity"
)

// Route sends one category to a calendar.
type Route struct {
	Category string `mapstructure:"category" yaml:"category"`
	Calendar string `mapstructure:"calendar" yaml:"calendar"`
}

// Alias renames an application for display.
type Alias struct {
	App  string `mapstructure:"app" yaml:"app"`
	Name string `mapstructure:"name" yaml:"name"`
}

// Config holds all configurable awcal settings. Zero values mean "unset" and
// fall back to the next layer when merging.
type Config struct {
	APIURL       string `mapstructure:"api_url" yaml:"api_url"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	SyncDays               int  `mapstructure:"sync_days" yaml:"sync_days"`
	SlotMinutes            int  `mapstructure:"slot_minutes" yaml:"slot_minutes"`
	MinSlotCoverageMinutes *int `mapstructure:"min_slot_coverage_minutes" yaml:"min_slot_coverage_minutes"`
	PaddingMinutes         *int `mapstructure:"padding_minutes" yaml:"padding_minutes"`

	NoiseThresholdSeconds    *int  `mapstructure:"noise_threshold_seconds" yaml:"noise_threshold_seconds"`
	MergeGapToleranceSeconds *int  `mapstructure:"merge_gap_tolerance_seconds" yaml:"merge_gap_tolerance_seconds"`
	MinSessionSeconds        *int  `mapstructure:"min_session_seconds" yaml:"min_session_seconds"`
	IgnoreAFK                *bool `mapstructure:"ignore_afk" yaml:"ignore_afk"`
	DefaultLookbackHours     int   `mapstructure:"default_lookback_hours" yaml:"default_lookback_hours"`

	SessionCalendar   string  `mapstructure:"session_calendar" yaml:"session_calendar"`
	FallbackCalendar  string  `mapstructure:"fallback_calendar" yaml:"fallback_calendar"`
	CategoryCalendars []Route `mapstructure:"category_calendars" yaml:"category_calendars"`
	AppAliases        []Alias `mapstructure:"app_aliases" yaml:"app_aliases"`

	CursorBackend string `mapstructure:"cursor_backend" yaml:"cursor_backend"` // "bucket" | "file"
	CursorPath    string `mapstructure:"cursor_path" yaml:"cursor_path"`
	ReportFormat  string `mapstructure:"report_format" yaml:"report_format"` // "text" | "json"
}

const (
	GlobalFile  = "config.yaml"
	ProjectFile = ".awcal.yaml"
	EnvPrefix   = "AWCAL"
)

// Defaults returns the default configuration.
func Defaults() Config {
	ignoreAFK := true
	dir := DataDir()
	return Config{
		APIURL:                   "http://localhost:5600/api/0",
		DatabasePath:             filepath.Join(dir, "calendar.db"),
		SyncDays:                 14,
		SlotMinutes:              15,
		MinSlotCoverageMinutes:   intPtr(3),
		PaddingMinutes:           intPtr(1),
		NoiseThresholdSeconds:    intPtr(10),
		MergeGapToleranceSeconds: intPtr(666),
		MinSessionSeconds:        intPtr(90),
		IgnoreAFK:                &ignoreAFK,
		DefaultLookbackHours:     24,
		SessionCalendar:          "[log] MacBook",
		FallbackCalendar:         "[log] FIXME",
		CategoryCalendars: []Route{
			{"Work", "[log] Work/Productivity"},
			{"Productivity", "[log] Work/Productivity"},
			{"Trading", "[log] Work/Productivity"},
			{"Web browsing", "[log] Work/Productivity"},
			{"Finances & Buying shit", "[log] Work/Productivity"},
			{"Media", "[log] Dopamine"},
			{"Comms", "[log] Communications"},
			{"Learning", "[log] Learning"},
			{"Uncategorized", "[log] FIXME"},
			{"BS", "[log] FIXME"},
		},
		AppAliases: []Alias{
			{"com.apple.mobilemail", "Mail (iPhone)"},
			{"com.apple.mobilesafari", "Safari (iPhone)"},
			{"com.apple.Preferences", "Settings (iPhone)"},
			{"com.apple.MobileSMS", "Messages (iPhone)"},
			{"com.apple.camera", "Camera (iPhone)"},
			{"com.apple.Music", "Music (iPhone)"},
			{"com.burbn.instagram", "Instagram (iPhone)"},
			{"com.facebook.Facebook", "Facebook (iPhone)"},
			{"com.snapchat.snapchat", "Snapchat (iPhone)"},
			{"com.twitter.twitter", "Twitter (iPhone)"},
			{"com.zhiliaoapp.musically", "TikTok (iPhone)"},
			{"com.whatsapp.WhatsApp", "WhatsApp (iPhone)"},
			{"com.linkedin.LinkedIn", "LinkedIn (iPhone)"},
			{"com.reddit.Reddit", "Reddit (iPhone)"},
			{"com.bookfusion.bookfusion", "BookFusion (iPhone)"},
			{"ai.perplexity.app", "Perplexity AI (iPhone)"},
			{"app.journalit.journalIt", "Journal It (iPhone)"},
			{"com.apple.shortcuts", "Shortcuts (iPhone)"},
		},
		CursorBackend: "bucket",
		CursorPath:    filepath.Join(dir, "cursor.json"),
		ReportFormat:  "text",
	}
}

// DataDir returns $XDG_DATA_HOME/awcal, or ~/.local/share/awcal.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "awcal")
}

// GlobalPath returns ~/.config/awcal/config.yaml.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "awcal", GlobalFile), nil
}

// LoadGlobal reads the global config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .awcal.yaml in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(ProjectFile, false)
}

func loadFile(path string, returnDefaults bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Unset fields fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer != nil {
			result.apply(layer)
		}
	}
	return result
}

func (c *Config) apply(o *Config) {
	set(&c.APIURL, o.APIURL)
	set(&c.DatabasePath, o.DatabasePath)
	set(&c.SyncDays, o.SyncDays)
	set(&c.SlotMinutes, o.SlotMinutes)
	set(&c.MinSlotCoverageMinutes, o.MinSlotCoverageMinutes)
	set(&c.PaddingMinutes, o.PaddingMinutes)
	set(&c.NoiseThresholdSeconds, o.NoiseThresholdSeconds)
	set(&c.MergeGapToleranceSeconds, o.MergeGapToleranceSeconds)
	set(&c.MinSessionSeconds, o.MinSessionSeconds)
	set(&c.IgnoreAFK, o.IgnoreAFK)
	set(&c.DefaultLookbackHours, o.DefaultLookbackHours)
	set(&c.SessionCalendar, o.SessionCalendar)
	set(&c.FallbackCalendar, o.FallbackCalendar)
	set(&c.CursorBackend, o.CursorBackend)
	set(&c.CursorPath, o.CursorPath)
	set(&c.ReportFormat, o.ReportFormat)
	if len(o.CategoryCalendars) > 0 {
		c.CategoryCalendars = o.CategoryCalendars
	}
	if len(o.AppAliases) > 0 {
		c.AppAliases = o.AppAliases
	}
}

func set[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// ApplyEnv overrides connection settings from AWCAL_* environment variables.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	set(&cfg.APIURL, v.GetString("api_url"))
	set(&cfg.DatabasePath, v.GetString("database_path"))
	set(&cfg.CursorBackend, v.GetString("cursor_backend"))
}

// Load returns the effective configuration: defaults, global file, project
// file, then environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(global, project)
	ApplyEnv(&cfg)
	return cfg, cfg.Validate()
}

// Validate checks that the grid and session settings are usable.
func (c Config) Validate() error {
	switch {
	case c.SyncDays <= 0:
		return fmt.Errorf("sync_days must be positive, got %d", c.SyncDays)
	case c.SlotMinutes <= 0:
		return fmt.Errorf("slot_minutes must be positive, got %d", c.SlotMinutes)
	case c.MinCoverage() < 0 || c.MinCoverage() > c.SlotWidth():
		return fmt.Errorf("min_slot_coverage_minutes must be within [0, %d], got %d", c.SlotMinutes, deref(c.MinSlotCoverageMinutes))
	case c.Padding() < 0 || 2*c.Padding() >= c.SlotWidth():
		return fmt.Errorf("padding_minutes must leave room in a %dm slot, got %d", c.SlotMinutes, deref(c.PaddingMinutes))
	case c.NoiseThreshold() < 0 || c.MergeGapTolerance() < 0 || c.MinSession() < 0:
		return errors.New("session thresholds must not be negative")
	case c.DefaultLookbackHours <= 0:
		return fmt.Errorf("default_lookback_hours must be positive, got %d", c.DefaultLookbackHours)
	case c.FallbackCalendar == "" || c.SessionCalendar == "":
		return errors.New("fallback_calendar and session_calendar must be set")
	}
	if c.CursorBackend != "bucket" && c.CursorBackend != "file" {
		return fmt.Errorf("cursor_backend must be \"bucket\" or \"file\", got %q", c.CursorBackend)
	}
	if c.ReportFormat != "text" && c.ReportFormat != "json" {
		return fmt.Errorf("report_format must be \"text\" or \"json\", got %q", c.ReportFormat)
	}
	return nil
}

func (c Config) SlotWidth() time.Duration  { return time.Duration(c.SlotMinutes) * time.Minute }
func (c Config) SyncWindow() time.Duration { return time.Duration(c.SyncDays) * 24 * time.Hour }
func (c Config) Lookback() time.Duration   { return time.Duration(c.DefaultLookbackHours) * time.Hour }

// Unset thresholds read as zero, which disables them.
func (c Config) MinCoverage() time.Duration { return time.Duration(deref(c.MinSlotCoverageMinutes)) * time.Minute }
func (c Config) Padding() time.Duration     { return time.Duration(deref(c.PaddingMinutes)) * time.Minute }

func (c Config) NoiseThreshold() time.Duration {
	return time.Duration(deref(c.NoiseThresholdSeconds)) * time.Second
}

func (c Config) MergeGapTolerance() time.Duration {
	return time.Duration(deref(c.MergeGapToleranceSeconds)) * time.Second
}

func (c Config) MinSession() time.Duration {
	return time.Duration(deref(c.MinSessionSeconds)) * time.Second
}

func intPtr(v int) *int { return &v }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// IgnoresAFK reports whether session mode drops records that start while away.
func (c Config) IgnoresAFK() bool {
	return c.IgnoreAFK == nil || *c.IgnoreAFK
}

// Routes builds the category to calendar routing table.
func (c Config) Routes() activity.Routes {
	table := make(map[string]string, len(c.CategoryCalendars))
	for _, r := range c.CategoryCalendars {
		table[r.Category] = r.Calendar
	}
	return activity.NewRoutes(table, c.FallbackCalendar)
}

// Aliases builds the application display-name table.
func (c Config) Aliases() activity.Aliases {
	table := make(map[string]string, len(c.AppAliases))
	for _, a := range c.AppAliases {
		table[a.App] = a.Name
	}
	return activity.NewAliases(table)
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
