package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full application configuration.
//
// The file may be JSON or YAML (by extension); YAML is coerced to JSON so
// both formats go through the same strict decoder. All durations are Go
// duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Channel  ChannelConfig  `json:"channel"`
	Monitor  MonitorConfig  `json:"monitor"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
	Digest   DigestConfig   `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminUserIDs is the fixed admin allow-list: these users receive
	// notifications and may run bot commands.
	AdminUserIDs []int64 `json:"admin_user_ids"`

	// PollTimeout is the long-poll timeout (Go duration string).
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// ChannelConfig identifies the single monitored channel.
//
// Identity is either an "@handle" or a numeric chat id. Numeric ids match
// with or without Telegram's -100 supergroup prefix.
type ChannelConfig struct {
	Identity string `json:"identity"`
}

type MonitorConfig struct {
	// TextLimit caps stored mention text (runes). Longer text is truncated
	// once, at write time, with a trailing "..." marker. Default 500.
	TextLimit int `json:"text_limit,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is the sqlite busy_timeout (Go duration string).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifierConfig controls the async admin notification pipeline.
// If the whole section is omitted, sane defaults apply.
type NotifierConfig struct {
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// DigestConfig controls the scheduled daily stats digest.
//
// Schedule is a five-field cron spec or descriptor (e.g. "@daily").
// Timezone is an IANA name; empty means the process-local zone.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

const (
	DefaultTextLimit   = 500
	DefaultPollTimeout = 10 * time.Second
	DefaultSchedule    = "0 0 * * *"
)

// Validate checks the parts that must hold before the app starts or a
// hot-reload is applied.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if len(c.Telegram.AdminUserIDs) == 0 {
		return errors.New("telegram.admin_user_ids must list at least one admin")
	}
	if strings.TrimSpace(c.Channel.Identity) == "" {
		return errors.New("channel.identity is required")
	}
	if c.Monitor.TextLimit < 0 {
		return errors.New("monitor.text_limit must be >= 0")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Digest.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}

// TextLimit returns the configured mention text cap with the default applied.
func (c *Config) TextLimit() int {
	if c.Monitor.TextLimit > 0 {
		return c.Monitor.TextLimit
	}
	return DefaultTextLimit
}

// DigestSchedule returns the cron spec with the default applied.
func (c *Config) DigestSchedule() string {
	if s := strings.TrimSpace(c.Digest.Schedule); s != "" {
		return s
	}
	return DefaultSchedule
}

// ParseDurationOrDefault parses a Go duration string, returning def when
// the raw value is empty. The field name is used in error messages.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}
