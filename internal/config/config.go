package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "dayplan.yml"

// Config models dayplan.yml.
type Config struct {
	Calendar struct {
		WeekStartsOn           string `yaml:"week_starts_on" json:"week_starts_on"`
		Timezone               string `yaml:"timezone" json:"timezone"`
		DefaultDurationMinutes int    `yaml:"default_duration_minutes" json:"default_duration_minutes"`
	} `yaml:"calendar" json:"calendar"`
	Digest struct {
		Enabled bool   `yaml:"enabled" json:"enabled"`
		At      string `yaml:"at" json:"at"`
	} `yaml:"digest" json:"digest"`
	Log struct {
		Level string `yaml:"level" json:"level"`
	} `yaml:"log" json:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

// WebhookConfig is one outbound event subscription. An empty Events list
// subscribes to everything.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"-"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with dp config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Calendar.WeekStartsOn) {
	case "monday", "sunday":
	default:
		return fmt.Errorf("config.calendar.week_starts_on must be monday or sunday, got %q", c.Calendar.WeekStartsOn)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config.calendar.timezone: %w", err)
	}
	if c.Calendar.DefaultDurationMinutes <= 0 || c.Calendar.DefaultDurationMinutes > 24*60 {
		return fmt.Errorf("config.calendar.default_duration_minutes must be between 1 and 1440")
	}
	if _, _, err := c.DigestClock(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info or error, got %q", c.Log.Level)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if !strings.HasPrefix(hook.URL, "http://") && !strings.HasPrefix(hook.URL, "https://") {
			return fmt.Errorf("config.webhooks[%d].url must be http(s)", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// WeekStart is the first day of the display week.
func (c *Config) WeekStart() time.Weekday {
	if strings.EqualFold(c.Calendar.WeekStartsOn, "sunday") {
		return time.Sunday
	}
	return time.Monday
}

// Location resolves the configured timezone; "" and "Local" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Calendar.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// DigestClock splits digest.at into hour and minute.
func (c *Config) DigestClock() (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.Digest.At))
	if err != nil {
		return 0, 0, fmt.Errorf("config.digest.at must be HH:MM, got %q", c.Digest.At)
	}
	return t.Hour(), t.Minute(), nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(DefaultYAML), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Set assigns one scalar key given in dotted form, e.g. "digest.at".
// The result is not validated; call Validate or Write.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "calendar.week_starts_on":
		c.Calendar.WeekStartsOn = strings.ToLower(value)
	case "calendar.timezone":
		c.Calendar.Timezone = value
	case "calendar.default_duration_minutes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		c.Calendar.DefaultDurationMinutes = n
	case "digest.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false: %w", key, err)
		}
		c.Digest.Enabled = b
	case "digest.at":
		c.Digest.At = value
	case "log.level":
		c.Log.Level = strings.ToLower(value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Write stores cfg as the workspace config file.
func Write(workspace string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}

const DefaultYAML = `calendar:
  week_starts_on: monday
  timezone: Local
  default_duration_minutes: 30

digest:
  enabled: false
  at: "07:00"

log:
  level: info

webhooks: []
`
