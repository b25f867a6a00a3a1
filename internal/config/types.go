package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hikaary/gitnotify/internal/schedule"
)

type Config struct {
	Gitlab   GitlabConfig   `toml:"gitlab" yaml:"gitlab"`
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
}

type GitlabConfig struct {
	URL   string `toml:"url" yaml:"url"`
	Token string `toml:"token" yaml:"token"`

	// PollInterval accepts a Go duration string ("30s") or a bare number
	// of seconds (30), for compatibility with older config files.
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`

	// PollSchedule is an optional cron-style trigger; when set it takes
	// precedence over PollInterval.
	PollSchedule string `toml:"poll_schedule" yaml:"poll_schedule"`

	// Projects pins polling to explicit project ids. Empty means every
	// project the token's user is a member of.
	Projects []int64 `toml:"projects" yaml:"projects"`

	EventsPerPage int `toml:"events_per_page" yaml:"events_per_page"`
	MRsPerPage    int `toml:"mrs_per_page" yaml:"mrs_per_page"`
}

type TelegramConfig struct {
	Token           string `toml:"token" yaml:"token"`
	DefaultChat     int64  `toml:"default_chat" yaml:"default_chat"`
	MessageThreadID int    `toml:"message_thread_id" yaml:"message_thread_id"`
	RatePerSec      int    `toml:"rate_per_sec" yaml:"rate_per_sec"`

	PipelineTemplate string `toml:"pipeline_template" yaml:"pipeline_template"`
	PushTemplate     string `toml:"push_template" yaml:"push_template"`
	MRTemplate       string `toml:"mr_template" yaml:"mr_template"`
	MessageTemplate  string `toml:"message_template" yaml:"message_template"`

	// RepoMapping maps a project name to the mention tags pinged when
	// that project produces a notification.
	RepoMapping map[string][]string `toml:"repo_mapping" yaml:"repo_mapping"`
}

type LoggingConfig struct {
	Level   string      `toml:"level" yaml:"level"`
	Console *bool       `toml:"console" yaml:"console"`
	File    LoggingFile `toml:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

const (
	defaultGitlabURL    = "https://gitlab.com"
	defaultPollInterval = 30 * time.Second
)

// applyDefaults fills zero values in place.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Gitlab.URL) == "" {
		c.Gitlab.URL = defaultGitlabURL
	}
	if c.Gitlab.PollInterval.Duration() <= 0 {
		c.Gitlab.PollInterval = Duration(defaultPollInterval)
	}
	if c.Gitlab.EventsPerPage <= 0 {
		c.Gitlab.EventsPerPage = 20
	}
	if c.Gitlab.MRsPerPage <= 0 {
		c.Gitlab.MRsPerPage = 5
	}
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Console == nil {
		on := true
		c.Logging.Console = &on
	}
}

// Validate checks the fields every process needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gitlab.Token) == "" {
		return fmt.Errorf("gitlab.token is required")
	}
	if _, err := c.Trigger(); err != nil {
		return err
	}
	return nil
}

// ValidateNotifier additionally checks the Telegram delivery settings.
func (c *Config) ValidateNotifier() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.DefaultChat == 0 {
		return fmt.Errorf("telegram.default_chat is required")
	}
	return nil
}

// Trigger resolves the poll trigger: the cron spec when configured,
// otherwise the fixed interval.
func (c *Config) Trigger() (schedule.Trigger, error) {
	if s := strings.TrimSpace(c.Gitlab.PollSchedule); s != "" {
		t, err := schedule.Parse(s)
		if err != nil {
			return schedule.Trigger{}, fmt.Errorf("gitlab.poll_schedule: %w", err)
		}
		return t, nil
	}
	return schedule.Interval(c.Gitlab.PollInterval.Duration()), nil
}

// ConsoleLogging reports whether console output is enabled.
func (c *Config) ConsoleLogging() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}
