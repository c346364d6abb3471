package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validJSON = `{
  "telegram": {"token": "123:abc", "admin_user_ids": [42], "poll_timeout": "15s"},
  "channel": {"identity": "@mychannel"},
  "monitor": {"text_limit": 1000},
  "storage": {"path": "./monitor.db", "busy_timeout": "2s"},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}}
}`

func TestLoadFileJSON(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFile(writeFile(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Channel.Identity != "@mychannel" {
		t.Fatalf("Identity = %q", cfg.Channel.Identity)
	}
	if cfg.TextLimit() != 1000 {
		t.Fatalf("TextLimit = %d, want 1000", cfg.TextLimit())
	}
	if got, _ := ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0); got != 15*time.Second {
		t.Fatalf("poll_timeout = %v", got)
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Parallel()
	body := `
telegram:
  token: "123:abc"
  admin_user_ids: [42, 77]
channel:
  identity: "-1001234567890"
storage:
  path: ./monitor.db
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
digest:
  enabled: true
  schedule: "30 8 * * *"
  timezone: "UTC"
`
	cfg, err := LoadFile(writeFile(t, "config.yaml", body))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Telegram.AdminUserIDs) != 2 {
		t.Fatalf("admins = %v", cfg.Telegram.AdminUserIDs)
	}
	if cfg.DigestSchedule() != "30 8 * * *" {
		t.Fatalf("schedule = %q", cfg.DigestSchedule())
	}
	// Defaults kick in for omitted sections.
	if cfg.TextLimit() != DefaultTextLimit {
		t.Fatalf("TextLimit = %d, want default", cfg.TextLimit())
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	body := strings.Replace(validJSON, `"monitor"`, `"monitorr"`, 1)
	if _, err := LoadFile(writeFile(t, "config.json", body)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t", AdminUserIDs: []int64{1}},
			Channel:  ChannelConfig{Identity: "@c"},
			Storage:  StorageConfig{Path: "db"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(c *Config) {}, ok: true},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }},
		{name: "no admins", mutate: func(c *Config) { c.Telegram.AdminUserIDs = nil }},
		{name: "missing channel", mutate: func(c *Config) { c.Channel.Identity = "" }},
		{name: "missing storage path", mutate: func(c *Config) { c.Storage.Path = "" }},
		{name: "bad duration", mutate: func(c *Config) { c.Telegram.PollTimeout = "soon" }},
		{name: "bad timezone", mutate: func(c *Config) { c.Digest.Timezone = "Mars/Olympus" }},
		{name: "negative text limit", mutate: func(c *Config) { c.Monitor.TextLimit = -1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
