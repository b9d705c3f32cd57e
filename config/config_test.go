package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, "instruments.yaml", cfg.InstrumentsFile)
	assert.Equal(t, ":9095", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, SourceDelta, cfg.DataSource)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 60*time.Second, cfg.CloseWindow)
	assert.Equal(t, 5*time.Second, cfg.ErrorBackoff)
	assert.Equal(t, "logs/trades.db", cfg.SQLitePath)
	assert.Equal(t, "monitor:actions", cfg.RedisStream)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.TelegramEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestFromViper_Environment(t *testing.T) {
	t.Setenv("DATA_SOURCE", "Synthetic")
	t.Setenv("FETCH_TIMEOUT", "3")
	t.Setenv("CLOSE_WINDOW", "90s")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)
	assert.Equal(t, SourceSynthetic, cfg.DataSource)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 90*time.Second, cfg.CloseWindow)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestFromViper_TelegramAliases(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "abc")
	t.Setenv("TELEGRAM_CHAT_ID", "111, 222,,")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.TelegramToken)
	assert.Equal(t, []string{"111", "222"}, cfg.TelegramChatIDs)
	assert.True(t, cfg.TelegramEnabled())

	// primary names take precedence
	t.Setenv("TG_BOT_TOKEN", "primary")
	cfg, err = FromViper(newViper())
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.TelegramToken)
}

func TestFromViper_Invalid(t *testing.T) {
	t.Setenv("DATA_SOURCE", "binance")
	_, err := FromViper(newViper())
	assert.Error(t, err)

	t.Setenv("DATA_SOURCE", "delta")
	t.Setenv("ERROR_BACKOFF", "soon")
	_, err = FromViper(newViper())
	assert.Error(t, err)
}
