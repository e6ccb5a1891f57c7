package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "123:abc"
  bot_username: dispatchdesk_bot
jwt:
  secret: s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, TelegramModePolling, cfg.Telegram.Mode)
	assert.Equal(t, time.Second, cfg.Telegram.PollInterval)
	assert.Equal(t, 25*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, 10*time.Second, cfg.Telegram.HTTPTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Verification.LinkTTL)
	assert.Equal(t, 5*time.Minute, cfg.Verification.CodeTTL)
	assert.Equal(t, 5, cfg.Verification.MaxAttempts)
	assert.Equal(t, 3, cfg.Verification.RequestLimit)
}

func TestLoadConfigDurationsAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
telegram:
  bot_token: from-file
  bot_username: dispatchdesk_bot
  poll_interval: 3s
verification:
  code_ttl: 2m
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Telegram.BotToken)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 3*time.Second, cfg.Telegram.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Verification.CodeTTL)
}

func TestLoadConfigMissingFileUsesEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "t")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "t", cfg.Telegram.BotToken)
}

func TestValidate(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_WEBHOOK_SECRET", "")
	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 1\n"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_token")
	assert.Contains(t, err.Error(), "bot_username")

	cfg.Telegram.BotToken = "x"
	cfg.Telegram.BotUsername = "b"
	cfg.JWT.Secret = "s"
	cfg.Telegram.Mode = TelegramModeWebhook
	assert.ErrorContains(t, cfg.Validate(), "webhook_url")

	cfg.Telegram.WebhookURL = "https://example.com/hook"
	assert.ErrorContains(t, cfg.Validate(), "webhook_secret")

	cfg.Telegram.WebhookSecret = "hook-secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateWebhookRequiresSecret(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.BotUsername = "dispatchdesk_bot"
	cfg.JWT.Secret = "s"
	cfg.Telegram.Mode = TelegramModeWebhook
	cfg.Telegram.WebhookURL = "https://api.example.com/integrations/telegram/webhook"

	assert.ErrorContains(t, cfg.Validate(), "webhook_secret")

	cfg.Telegram.WebhookSecret = "   "
	assert.ErrorContains(t, cfg.Validate(), "webhook_secret")

	// polling mode never exposes the webhook route
	cfg.Telegram.Mode = TelegramModePolling
	cfg.Telegram.WebhookSecret = ""
	assert.NoError(t, cfg.Validate())
}
