// Package config loads process configuration from the environment, with
// an optional .env file for local runs. Instrument definitions live in
// their own YAML file (see internal/instruments).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Data sources.
const (
	SourceDelta     = "delta"
	SourceSynthetic = "synthetic"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	InstrumentsFile string
	LogLevel        string

	// Servers
	HTTPAddr    string
	MetricsAddr string

	// Market data
	DataSource   string // delta | synthetic
	DeltaBaseURL string
	FetchTimeout time.Duration
	CloseWindow  time.Duration
	ErrorBackoff time.Duration

	// Journal
	LogDir        string
	SQLitePath    string
	RedisAddr     string // empty disables the Redis mirror
	RedisPassword string
	RedisStream   string

	// Notifications
	TelegramToken   string
	TelegramChatIDs []string
	WebhookURL      string

	// Admin
	AdminTOTPSecret string
}

var defaults = map[string]any{
	"instruments_file":  "instruments.yaml",
	"log_level":         "info",
	"http_addr":         ":9095",
	"metrics_addr":      ":9090",
	"data_source":       SourceDelta,
	"delta_base_url":    "https://api.delta.exchange",
	"fetch_timeout":     "10s",
	"close_window":      "60s",
	"error_backoff":     "5s",
	"log_dir":           "logs",
	"sqlite_path":       "logs/trades.db",
	"redis_addr":        "",
	"redis_password":    "",
	"redis_stream":      "monitor:actions",
	"webhook_url":       "",
	"admin_totp_secret": "",
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory, if present, is loaded
// first without overriding variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] ignoring .env: %v", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("tg_bot_token", "TG_BOT_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("tg_chat_id", "TG_CHAT_ID", "TELEGRAM_CHAT_ID")
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		InstrumentsFile: v.GetString("instruments_file"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		HTTPAddr:        v.GetString("http_addr"),
		MetricsAddr:     v.GetString("metrics_addr"),
		DataSource:      strings.ToLower(strings.TrimSpace(v.GetString("data_source"))),
		DeltaBaseURL:    v.GetString("delta_base_url"),
		LogDir:          v.GetString("log_dir"),
		SQLitePath:      v.GetString("sqlite_path"),
		RedisAddr:       strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:   v.GetString("redis_password"),
		RedisStream:     v.GetString("redis_stream"),
		TelegramToken:   strings.TrimSpace(v.GetString("tg_bot_token")),
		TelegramChatIDs: splitList(v.GetString("tg_chat_id")),
		WebhookURL:      strings.TrimSpace(v.GetString("webhook_url")),
		AdminTOTPSecret: strings.TrimSpace(v.GetString("admin_totp_secret")),
	}

	var err error
	if cfg.FetchTimeout, err = parseDuration(v.GetString("fetch_timeout")); err != nil {
		return nil, fmt.Errorf("FETCH_TIMEOUT: %w", err)
	}
	if cfg.CloseWindow, err = parseDuration(v.GetString("close_window")); err != nil {
		return nil, fmt.Errorf("CLOSE_WINDOW: %w", err)
	}
	if cfg.ErrorBackoff, err = parseDuration(v.GetString("error_backoff")); err != nil {
		return nil, fmt.Errorf("ERROR_BACKOFF: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.DataSource {
	case SourceDelta, SourceSynthetic:
	default:
		return fmt.Errorf("DATA_SOURCE must be %q or %q, got %q", SourceDelta, SourceSynthetic, c.DataSource)
	}
	if c.InstrumentsFile == "" {
		return errors.New("INSTRUMENTS_FILE must not be empty")
	}
	if c.FetchTimeout <= 0 || c.CloseWindow <= 0 || c.ErrorBackoff <= 0 {
		return errors.New("FETCH_TIMEOUT, CLOSE_WINDOW and ERROR_BACKOFF must be positive")
	}
	return nil
}

// TelegramEnabled reports whether Telegram delivery is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && len(c.TelegramChatIDs) > 0
}

// SlogLevel maps LogLevel to a slog.Level (info when unknown).
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseDuration accepts Go durations ("10s", "1m") or bare seconds ("10").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
