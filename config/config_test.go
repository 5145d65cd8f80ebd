package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/amarnathcjd/hybridgram/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_POLLING_LIMIT", "50")
	t.Setenv("ALLOWED_TELEGRAM_UPDATES", "message, callback_query")
	t.Setenv("TELEGRAM_RATE_LIMIT_PER_MINUTE", "600")
	t.Setenv("TELEGRAM_LOG_RESPONSE_BODY", "false")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Bots, 1)

	b := cfg.Bots[0]
	assert.Equal(t, "main", b.BotID)
	assert.Equal(t, "123:abc", b.Token)
	assert.Equal(t, config.ModePolling, b.UpdateMode)
	assert.Equal(t, 50, b.PollingLimit)
	assert.Equal(t, 0, b.PollingTimeout)
	assert.Equal(t, []string{"message", "callback_query"}, b.AllowedUpdates)
	assert.Equal(t, 9070, b.WebhookPort)

	assert.Equal(t, "https://api.telegram.org", cfg.BaseURL)
	assert.Equal(t, 600, cfg.Sending.RateLimitPerMinute)
	assert.Equal(t, 300, cfg.Sending.ReserveHighPerMinute)
	assert.Equal(t, 2*time.Second, cfg.Sending.SyncMaxWait())
	assert.True(t, cfg.Sending.LogFailures)
	assert.False(t, cfg.Sending.LogResponseBody)
	assert.False(t, cfg.Sending.QueueEnabled)
	assert.Equal(t, "telegram-high", cfg.Sending.Queues.High)
	assert.Equal(t, "telegram-low", cfg.Sending.Queues.Low)
	assert.Equal(t, "telegram-updates", cfg.Sending.Queues.Updates)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "hybridgram:", cfg.Redis.Prefix)
	assert.Equal(t, "/telegram/bot/webhook/", cfg.Webhook.Path)
}

func TestLoad_FileWithSeveralBots(t *testing.T) {
	path := writeFile(t, "hybridgram.yaml", `
base_url: https://api.telegram.org/bot
bots:
  - token: "111:aaa"
    bot_id: support
    polling_timeout: 25
  - token: "222:bbb"
    bot_id: shop
    update_mode: webhook
    secret_token: s3cret
    webhook_url: https://example.com/telegram/bot/webhook/shop
sending:
  queue_enabled: false
  rate_limit_per_minute: 900
  queues:
    high: out-high
redis:
  url: redis://localhost:6379/0
`)
	t.Setenv("TELEGRAM_QUEUE_ENABLED", "true")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Bots, 2)

	assert.Equal(t, "https://api.telegram.org", cfg.BaseURL)
	assert.True(t, cfg.Sending.QueueEnabled, "environment overrides the file")
	assert.Equal(t, 900, cfg.Sending.RateLimitPerMinute)
	assert.Equal(t, "out-high", cfg.Sending.Queues.High)
	assert.Equal(t, "telegram-low", cfg.Sending.Queues.Low)
	assert.True(t, cfg.Redis.Enabled())

	support, ok := cfg.Bot("support")
	require.True(t, ok)
	assert.Equal(t, config.ModePolling, support.UpdateMode)
	assert.Equal(t, 25, support.PollingTimeout)
	assert.Equal(t, 100, support.PollingLimit)

	shop, ok := cfg.Bot("shop")
	require.True(t, ok)
	assert.Equal(t, config.ModeWebhook, shop.UpdateMode)
	assert.Equal(t, 9070, shop.WebhookPort)

	_, ok = cfg.Bot("missing")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{"support": "111:aaa", "shop": "222:bbb"}, cfg.Tokens())
	assert.Equal(t, map[string]string{"shop": "s3cret"}, cfg.Secrets())
}

func TestLoad_DotenvFile(t *testing.T) {
	for _, k := range []string{"BOT_TOKEN", "BOT_ID"} {
		k := k
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}
	t.Setenv("BOT_ID", "from-env")
	env := writeFile(t, ".env", "BOT_TOKEN=333:ccc\nBOT_ID=from-dotenv\n")

	cfg, err := config.Load("", env)
	require.NoError(t, err)
	require.Len(t, cfg.Bots, 1)
	assert.Equal(t, "333:ccc", cfg.Bots[0].Token)
	assert.Equal(t, "from-env", cfg.Bots[0].BotID, "existing variables are not overridden")
}

func TestLoad_KeyringToken(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, config.StoreSecret("main-bot", "999:xyz"))

	t.Setenv("BOT_TOKEN", "keyring:main-bot")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "999:xyz", cfg.Bots[0].Token)

	t.Setenv("BOT_TOKEN", "keyring:nobody")
	_, err = config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nobody")
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"no token": `
bots:
  - bot_id: a
`,
		"duplicate ids": `
bots:
  - {token: "1:a", bot_id: a}
  - {token: "2:b", bot_id: a}
`,
		"unknown mode": `
bots:
  - {token: "1:a", update_mode: push}
`,
		"limit too large": `
bots:
  - {token: "1:a", polling_limit: 500}
`,
		"reserve exceeds limit": `
bots:
  - {token: "1:a"}
sending:
  rate_limit_per_minute: 100
  reserve_high_per_minute: 100
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, "c.yaml", body))
			assert.Error(t, err)
		})
	}

	t.Run("nothing configured", func(t *testing.T) {
		_, err := config.Load("")
		assert.Error(t, err)
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Setenv("TELEGRAM_RATE_LIMIT_PER_MINUTE", "60")

	cfg, err := config.Default(config.Bot{Token: "1:a"}, config.Bot{Token: "2:b", BotID: "second", UpdateMode: config.ModeWebhook})
	require.NoError(t, err)
	assert.Equal(t, 1800, cfg.Sending.RateLimitPerMinute, "the environment is ignored")
	assert.Equal(t, "main", cfg.Bots[0].BotID)
	assert.Equal(t, config.ModePolling, cfg.Bots[0].UpdateMode)
	assert.Equal(t, config.ModeWebhook, cfg.Bots[1].UpdateMode)

	_, err = config.Default()
	assert.Error(t, err)
}
