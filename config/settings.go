package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chapterd/parser"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath is where settings are read from when no path is given.
const DefaultSettingsPath = "~/.config/chapterd/config.yaml"

// ErrNoSettings is returned when no settings file exists.
var ErrNoSettings = errors.New("no settings file")

// SiteSettings overrides the built-in configuration of one site.
// Zero values mean "keep the built-in value".
type SiteSettings struct {
	Threshold   *int          `yaml:"threshold,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	Settle      time.Duration `yaml:"settle,omitempty"`
	Isolated    *bool         `yaml:"isolated,omitempty"`
	Disabled    bool          `yaml:"disabled,omitempty"`
}

// Settings holds every tunable of the engine.
type Settings struct {
	Catalog     string `yaml:"catalog"`
	PicturesDir string `yaml:"pictures_dir"`
	LogDir      string `yaml:"log_dir"`
	HistoryDB   string `yaml:"history_db"`

	MaxAttempts  int    `yaml:"max_attempts"`
	TitleWorkers int    `yaml:"title_workers"`
	UserAgent    string `yaml:"user_agent"`

	ImageTimeout time.Duration `yaml:"image_timeout"`
	ImageDelay   time.Duration `yaml:"image_delay"`
	FallbackExt  string        `yaml:"fallback_ext"`

	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	ScriptTimeout   time.Duration `yaml:"script_timeout"`
	WindowWidth     int           `yaml:"window_width"`
	WindowHeight    int           `yaml:"window_height"`
	Headless        bool          `yaml:"headless"`

	LogLevel  string `yaml:"log_level"`
	Snapshots bool   `yaml:"snapshots"`

	Sites map[string]SiteSettings `yaml:"sites,omitempty"`
}

// Options are command-line overrides merged on top of the settings file.
type Options struct {
	IgnoreSettings bool
	Debug          bool
	Catalog        string
	PicturesDir    string
	LogDir         string
	TitleWorkers   int
	MaxAttempts    int
	Snapshots      bool
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Catalog:         DefaultCatalogPath,
		PicturesDir:     "~/backend/pictures",
		LogDir:          "~/backend/logs",
		HistoryDB:       "~/.config/chapterd/history.db",
		MaxAttempts:     5,
		TitleWorkers:    1,
		UserAgent:       "chapterd/1.0 (+chapter archiver)",
		ImageTimeout:    20 * time.Second,
		ImageDelay:      300 * time.Millisecond,
		FallbackExt:     "jpg",
		PageLoadTimeout: 60 * time.Second,
		ScriptTimeout:   30 * time.Second,
		WindowWidth:     1920,
		WindowHeight:    1080,
		Headless:        true,
		LogLevel:        "info",
		Snapshots:       false,
		Sites:           map[string]SiteSettings{},
	}
}

// SaveSettings writes settings as YAML.
func SaveSettings(s *Settings, path string) error {
	location, err := parser.ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(location), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(location, data, 0644)
}

func loadYAML(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadMerged loads the settings file (or defaults), merges the options and normalises the result.
// It returns the path that was actually used, or a description when no file was read.
func LoadMerged(path string, opts Options) (*Settings, string, error) {
	if opts.IgnoreSettings {
		s := DefaultSettings()
		mergeSettings(s, opts)
		normalizeSettings(s)
		return s, "(ignored settings)", nil
	}

	if path == "" {
		path = DefaultSettingsPath
	}
	location, err := parser.ExpandPath(path)
	if err != nil {
		return nil, "", err
	}

	s, err := loadYAML(location)
	if errors.Is(err, os.ErrNotExist) {
		s = DefaultSettings()
		mergeSettings(s, opts)
		normalizeSettings(s)
		return s, "(default settings in memory)", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load settings %s: %w", location, err)
	}

	mergeSettings(s, opts)
	normalizeSettings(s)
	if err := s.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid settings %s: %w", location, err)
	}
	return s, location, nil
}

func mergeSettings(s *Settings, o Options) {
	if o.Debug {
		s.LogLevel = "debug"
	}
	if o.Catalog != "" {
		s.Catalog = o.Catalog
	}
	if o.PicturesDir != "" {
		s.PicturesDir = o.PicturesDir
	}
	if o.LogDir != "" {
		s.LogDir = o.LogDir
	}
	if o.TitleWorkers != 0 {
		s.TitleWorkers = o.TitleWorkers
	}
	if o.MaxAttempts != 0 {
		s.MaxAttempts = o.MaxAttempts
	}
	if o.Snapshots {
		s.Snapshots = true
	}
}

func normalizeSettings(s *Settings) {
	d := DefaultSettings()
	if s.Catalog == "" {
		s.Catalog = d.Catalog
	}
	if s.PicturesDir == "" {
		s.PicturesDir = d.PicturesDir
	}
	if s.LogDir == "" {
		s.LogDir = d.LogDir
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = d.MaxAttempts
	}
	if s.TitleWorkers <= 0 {
		s.TitleWorkers = 1
	}
	if s.UserAgent == "" {
		s.UserAgent = d.UserAgent
	}
	if s.ImageTimeout <= 0 {
		s.ImageTimeout = d.ImageTimeout
	}
	if s.ImageDelay < 0 {
		s.ImageDelay = 0
	}
	s.FallbackExt = strings.TrimPrefix(strings.ToLower(s.FallbackExt), ".")
	if s.FallbackExt == "" {
		s.FallbackExt = d.FallbackExt
	}
	if s.PageLoadTimeout <= 0 {
		s.PageLoadTimeout = d.PageLoadTimeout
	}
	if s.ScriptTimeout <= 0 {
		s.ScriptTimeout = d.ScriptTimeout
	}
	if s.WindowWidth <= 0 || s.WindowHeight <= 0 {
		s.WindowWidth, s.WindowHeight = d.WindowWidth, d.WindowHeight
	}
	if s.LogLevel == "" {
		s.LogLevel = d.LogLevel
	}
	if s.Sites == nil {
		s.Sites = map[string]SiteSettings{}
	}
}

// Validate rejects values that normalisation cannot repair.
func (s *Settings) Validate() error {
	for name, site := range s.Sites {
		if site.Threshold != nil && *site.Threshold < 0 {
			return fmt.Errorf("sites.%s.threshold must be >= 0", name)
		}
		if site.MaxAttempts < 0 {
			return fmt.Errorf("sites.%s.max_attempts must be >= 0", name)
		}
	}
	return nil
}

// Print writes a short human-readable dump of the effective settings.
func (s *Settings) Print() {
	fmt.Printf(" -catalog: %s\n", s.Catalog)
	fmt.Printf(" -pictures_dir: %s\n", s.PicturesDir)
	fmt.Printf(" -log_dir: %s\n", s.LogDir)
	fmt.Printf(" -max_attempts: %d\n", s.MaxAttempts)
	fmt.Printf(" -title_workers: %d\n", s.TitleWorkers)
	fmt.Printf(" -image_timeout: %s\n", s.ImageTimeout)
	fmt.Printf(" -image_delay: %s\n", s.ImageDelay)
	if s.Snapshots {
		fmt.Printf(" -snapshots: %t\n", s.Snapshots)
	}
	for name, site := range s.Sites {
		if site.Disabled {
			fmt.Printf(" -sites.%s: disabled\n", name)
		}
	}
}
