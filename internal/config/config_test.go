package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Market.OpenInterval != 200*time.Millisecond {
		t.Errorf("open interval = %s, want 200ms", cfg.Market.OpenInterval)
	}
	if cfg.Market.ClosedInterval != 5*time.Minute {
		t.Errorf("closed interval = %s, want 5m", cfg.Market.ClosedInterval)
	}
	if cfg.Alerts.Backend != "file" {
		t.Errorf("alerts backend = %q, want file", cfg.Alerts.Backend)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q, want :8080", cfg.Server.Addr)
	}
	if len(cfg.Fetch.Majors) != 8 {
		t.Errorf("majors = %v, want 8 currencies", cfg.Fetch.Majors)
	}
	if cfg.Export.MaxDataPoints != 100000 {
		t.Errorf("max data points = %d, want 100000", cfg.Export.MaxDataPoints)
	}
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
market:
  open_interval: 1s
  closed_interval: 10m
alerts:
  backend: badger
  path: /tmp/alerts
notify:
  failure_streak: 3
redis:
  enabled: true
  addr: redis:6379
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Market.OpenInterval != time.Second {
		t.Errorf("open interval = %s, want 1s", cfg.Market.OpenInterval)
	}
	if cfg.Alerts.Backend != "badger" {
		t.Errorf("backend = %q, want badger", cfg.Alerts.Backend)
	}
	if cfg.Notify.FailureStreak != 3 {
		t.Errorf("failure streak = %d, want 3", cfg.Notify.FailureStreak)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis = %+v, want enabled at redis:6379", cfg.Redis)
	}
	// untouched sections keep defaults
	if cfg.Fetch.RequestTimeout != 10*time.Second {
		t.Errorf("fetch timeout = %s, want default 10s", cfg.Fetch.RequestTimeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FXOBSERVER_MARKET_OPEN_INTERVAL", "750ms")
	t.Setenv("FXOBSERVER_FETCH_BASE_URL", "http://feed:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Market.OpenInterval != 750*time.Millisecond {
		t.Errorf("open interval = %s, want 750ms", cfg.Market.OpenInterval)
	}
	if cfg.Fetch.BaseURL != "http://feed:9000" {
		t.Errorf("base url = %q, want http://feed:9000", cfg.Fetch.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero open interval",
			mutate:  func(c *Config) { c.Market.OpenInterval = 0 },
			wantErr: "open_interval",
		},
		{
			name:    "unknown alert backend",
			mutate:  func(c *Config) { c.Alerts.Backend = "sqlite" },
			wantErr: "alerts.backend",
		},
		{
			name:    "email enabled without key",
			mutate:  func(c *Config) { c.Notify.Email.Enabled = true },
			wantErr: "notify.email.api_key",
		},
		{
			name: "sms enabled without credentials",
			mutate: func(c *Config) {
				c.Notify.SMS.Enabled = true
				c.Notify.SMS.Username = "sandbox"
			},
			wantErr: "notify.sms",
		},
		{
			name:    "telegram enabled without token",
			mutate:  func(c *Config) { c.Notify.Telegram.Enabled = true },
			wantErr: "bot_token",
		},
		{
			name: "telegram enabled without chat id",
			mutate: func(c *Config) {
				c.Notify.Telegram.Enabled = true
				c.Notify.Telegram.BotToken = "123:abc"
			},
			wantErr: "chat_id",
		},
		{
			name:    "archive without dsn",
			mutate:  func(c *Config) { c.Archive.Enabled = true },
			wantErr: "database.dsn",
		},
		{
			name: "archive with dsn",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Database.DSN = "postgres://localhost/fx"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 5000}}
	if got := cfg.ResolveMaxPoints(0); got != 5000 {
		t.Errorf("ResolveMaxPoints(0) = %d, want 5000", got)
	}
	if got := cfg.ResolveMaxPoints(250); got != 250 {
		t.Errorf("ResolveMaxPoints(250) = %d, want 250", got)
	}
}
