package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"forex-observer/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Market   MarketConfig   `mapstructure:"market"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig governs the observation loop cadence.
type MarketConfig struct {
	OpenInterval   time.Duration `mapstructure:"open_interval"`
	ClosedInterval time.Duration `mapstructure:"closed_interval"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
}

// FetchConfig covers the scraper feed client.
type FetchConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Majors         []string      `mapstructure:"majors"`
	SampleSize     int           `mapstructure:"sample_size"`
}

// AlertsConfig selects the alert store and engine behaviour.
type AlertsConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	OneShot bool   `mapstructure:"one_shot"`
}

// NotifyConfig defines notification channels and status reporting.
type NotifyConfig struct {
	FailureStreak int            `mapstructure:"failure_streak"`
	Email         EmailConfig    `mapstructure:"email"`
	SMS           SMSConfig      `mapstructure:"sms"`
	Call          CallConfig     `mapstructure:"call"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig 描述 Resend 邮件通道参数。
type EmailConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	From    string `mapstructure:"from"`
}

// SMSConfig 描述 Africa's Talking 短信通道参数。
type SMSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
	APIBase  string `mapstructure:"api_base"`
}

// CallConfig 描述 Twilio 语音通道参数。
type CallConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	APIBase    string `mapstructure:"api_base"`
}

// TelegramConfig 描述 Telegram 状态推送参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// ServerConfig sets the HTTP API listener.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig covers the optional snapshot mirror.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	LatestKey string `mapstructure:"latest_key"`
	RecentKey string `mapstructure:"recent_key"`
	Channel   string `mapstructure:"channel"`
	MaxRecent int    `mapstructure:"max_recent"`
}

// ArchiveConfig tunes history persistence.
type ArchiveConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FXOBSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fxobserver")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("market.open_interval", "200ms")
	v.SetDefault("market.closed_interval", "5m")
	v.SetDefault("market.startup_delay", "0s")

	v.SetDefault("fetch.base_url", "http://localhost:8070")
	v.SetDefault("fetch.request_timeout", "10s")
	v.SetDefault("fetch.user_agent", "fxobserver/1.0")
	v.SetDefault("fetch.majors", []string{"USD", "EUR", "JPY", "GBP", "AUD", "CAD", "CHF", "NZD"})
	v.SetDefault("fetch.sample_size", 10)

	v.SetDefault("alerts.backend", "file")
	v.SetDefault("alerts.path", "alerts.json")
	v.SetDefault("alerts.one_shot", false)

	v.SetDefault("notify.failure_streak", 5)
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.sms.enabled", false)
	v.SetDefault("notify.sms.api_base", "https://api.africastalking.com")
	v.SetDefault("notify.call.enabled", false)
	v.SetDefault("notify.call.api_base", "https://api.twilio.com")
	v.SetDefault("notify.telegram.enabled", false)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.latest_key", "fxobserver:latest")
	v.SetDefault("redis.recent_key", "fxobserver:recent")
	v.SetDefault("redis.channel", "fxobserver:snapshots")
	v.SetDefault("redis.max_recent", 50)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.flush_interval", "30s")
	v.SetDefault("archive.batch_size", 200)
	v.SetDefault("archive.retention", "720h")
	v.SetDefault("archive.prune_interval", "1h")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Market.OpenInterval <= 0 {
		return fmt.Errorf("market.open_interval must be greater than zero")
	}
	if c.Market.ClosedInterval <= 0 {
		return fmt.Errorf("market.closed_interval must be greater than zero")
	}
	if c.Fetch.BaseURL == "" {
		return fmt.Errorf("fetch.base_url is required")
	}

	switch c.Alerts.Backend {
	case "file", "badger":
	default:
		return fmt.Errorf("alerts.backend must be file or badger, got %q", c.Alerts.Backend)
	}
	if c.Alerts.Path == "" {
		return fmt.Errorf("alerts.path is required")
	}

	if c.Notify.Email.Enabled {
		if c.Notify.Email.APIKey == "" {
			return fmt.Errorf("notify.email.api_key is required when the email channel is enabled")
		}
		if c.Notify.Email.From == "" {
			return fmt.Errorf("notify.email.from is required when the email channel is enabled")
		}
	}
	if c.Notify.SMS.Enabled {
		if c.Notify.SMS.Username == "" || c.Notify.SMS.APIKey == "" {
			return fmt.Errorf("notify.sms.username 与 notify.sms.api_key 必须配置")
		}
	}
	if c.Notify.Call.Enabled {
		if c.Notify.Call.AccountSID == "" || c.Notify.Call.AuthToken == "" || c.Notify.Call.From == "" {
			return fmt.Errorf("notify.call 需要 account_sid, auth_token 与 from")
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when the mirror is enabled")
	}
	if c.Archive.Enabled {
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when archiving is enabled")
		}
		if c.Archive.BatchSize <= 0 {
			return fmt.Errorf("archive.batch_size must be greater than zero")
		}
		if c.Archive.FlushInterval <= 0 {
			return fmt.Errorf("archive.flush_interval must be greater than zero")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
