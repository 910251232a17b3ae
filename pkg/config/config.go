// Package config loads the lifeops YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/lifeops/pkg/calendar"
	"github.com/harrisonrobin/lifeops/pkg/schedule"
	"github.com/harrisonrobin/lifeops/pkg/state"
)

const (
	xdgAppName = "lifeops"
	configFile = "config.yaml"
)

// Task sources.
const (
	SourceFile             = "file"
	SourceTaskwarrior      = "taskwarrior"
	SourceTaskwarriorStdin = "taskwarrior-stdin" // `task export` on stdin
	SourceOrgmode          = "orgmode"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	Calendar CalendarConfig `yaml:"calendar"`
	Sync     SyncConfig     `yaml:"sync"`
	Feishu   FeishuConfig   `yaml:"feishu"`
}

type CalendarConfig struct {
	Name            string   `yaml:"name"`
	CredentialsFile string   `yaml:"credentials_file"`
	TokenFile       string   `yaml:"token_file"`
	TimeZone        string   `yaml:"timezone"`
	Attendees       []string `yaml:"attendees,omitempty"`
}

type SyncConfig struct {
	Source            string        `yaml:"source"`
	ScheduleFile      string        `yaml:"schedule_file"`
	TaskwarriorFilter []string      `yaml:"taskwarrior_filter,omitempty"`
	OrgFiles          []string      `yaml:"org_files,omitempty"`
	OrgTag            string        `yaml:"org_tag,omitempty"`
	StateBackend      string        `yaml:"state_backend"`
	StatePath         string        `yaml:"state_path"`
	MissingState      string        `yaml:"missing_state"`
	Marker            string        `yaml:"marker"`
	FallbackTimezone  string        `yaml:"fallback_timezone"`
	CarryFailures     bool          `yaml:"carry_failures"`
	DeletionPadding   time.Duration `yaml:"deletion_padding"`
}

type FeishuConfig struct {
	AppID        string `yaml:"app_id,omitempty"`
	AppSecret    string `yaml:"app_secret,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	NotifyOpenID string `yaml:"notify_open_id,omitempty"`
	NotifyOnSync bool   `yaml:"notify_on_sync"`
}

// Dir returns ~/.config/lifeops.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Default returns the configuration used when no file exists. Relative
// paths are resolved against dir.
func Default(dir string) *Config {
	return &Config{
		Calendar: CalendarConfig{
			Name:            "LifeOps",
			CredentialsFile: filepath.Join(dir, "credentials.json"),
			TokenFile:       filepath.Join(dir, "token.json"),
			TimeZone:        "Asia/Shanghai",
		},
		Sync: SyncConfig{
			Source:           SourceFile,
			ScheduleFile:     filepath.Join("data", "schedule.json"),
			StateBackend:     BackendFile,
			StatePath:        filepath.Join("data", "last_schedule.json"),
			MissingState:     string(state.DefaultPolicy),
			Marker:           calendar.DefaultMarker,
			FallbackTimezone: "Asia/Shanghai",
			CarryFailures:    true,
			DeletionPadding:  time.Hour,
		},
		Feishu: FeishuConfig{
			BaseURL: "https://open.feishu.cn",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Calendar.Name == "" {
		return fmt.Errorf("calendar.name is required")
	}
	switch c.Sync.Source {
	case SourceFile, SourceTaskwarrior, SourceTaskwarriorStdin:
	case SourceOrgmode:
		if len(c.Sync.OrgFiles) == 0 {
			return fmt.Errorf("sync.org_files is required for the orgmode source")
		}
	default:
		return fmt.Errorf("sync.source must be one of %q, %q, %q or %q, got %q",
			SourceFile, SourceTaskwarrior, SourceTaskwarriorStdin, SourceOrgmode, c.Sync.Source)
	}
	switch c.Sync.StateBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("sync.state_backend must be %q or %q, got %q", BackendFile, BackendSQLite, c.Sync.StateBackend)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Sync.DeletionPadding < 0 {
		return fmt.Errorf("sync.deletion_padding must not be negative")
	}
	return nil
}

// Policy parses sync.missing_state.
func (c *Config) Policy() (state.Policy, error) {
	return state.ParsePolicy(c.Sync.MissingState)
}

// Zone loads sync.fallback_timezone. Unknown or empty names fall back to
// UTC+08:00.
func (c *Config) Zone() *time.Location {
	if c.Sync.FallbackTimezone == "" {
		return schedule.FallbackZone
	}
	loc, err := time.LoadLocation(c.Sync.FallbackTimezone)
	if err != nil {
		return schedule.FallbackZone
	}
	return loc
}
