// Package config loads the bot, sending, redis and webhook settings from
// an optional YAML/JSON file, the environment and a .env file.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/structtag"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

const (
	KeyringService = "hybridgram"
	keyringPrefix  = "keyring:"

	ModePolling = "polling"
	ModeWebhook = "webhook"
)

type Config struct {
	Bots     []Bot   `mapstructure:"bots" yaml:"bots"`
	BaseURL  string  `mapstructure:"base_url" yaml:"base_url" env:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	LogLevel string  `mapstructure:"log_level" yaml:"log_level" env:"TELEGRAM_LOG_LEVEL" default:"info"`
	Sending  Sending `mapstructure:"sending" yaml:"sending"`
	Redis    Redis   `mapstructure:"redis" yaml:"redis"`
	Webhook  Webhook `mapstructure:"webhook" yaml:"webhook"`
}

// Bot describes one bot. When the file lists no bots a single bot is
// built from the BOT_* and TELEGRAM_* variables.
type Bot struct {
	Token              string   `mapstructure:"token" yaml:"token" env:"BOT_TOKEN"`
	BotID              string   `mapstructure:"bot_id" yaml:"bot_id" env:"BOT_ID" default:"main"`
	UpdateMode         string   `mapstructure:"update_mode" yaml:"update_mode" env:"TELEGRAM_UPDATE_MODE" default:"polling"`
	PollingLimit       int      `mapstructure:"polling_limit" yaml:"polling_limit" env:"TELEGRAM_POLLING_LIMIT" default:"100"`
	PollingTimeout     int      `mapstructure:"polling_timeout" yaml:"polling_timeout" env:"TELEGRAM_POLLING_TIMEOUT"`
	AllowedUpdates     []string `mapstructure:"allowed_updates" yaml:"allowed_updates" env:"ALLOWED_TELEGRAM_UPDATES"`
	SecretToken        string   `mapstructure:"secret_token" yaml:"secret_token" env:"TELEGRAM_SECRET_TOKEN"`
	WebhookURL         string   `mapstructure:"webhook_url" yaml:"webhook_url" env:"TELEGRAM_WEBHOOK_URL"`
	WebhookPort        int      `mapstructure:"webhook_port" yaml:"webhook_port" env:"TELEGRAM_WEBHOOK_PORT" default:"9070"`
	WebhookDropPending bool     `mapstructure:"webhook_drop_pending" yaml:"webhook_drop_pending" env:"TELEGRAM_WEBHOOK_DROP_PENDING"`
	OffsetFile         string   `mapstructure:"offset_file" yaml:"offset_file" env:"TELEGRAM_OFFSET_FILE"`
}

type Sending struct {
	QueueEnabled         bool   `mapstructure:"queue_enabled" yaml:"queue_enabled" env:"TELEGRAM_QUEUE_ENABLED" default:"false"`
	LogFailures          bool   `mapstructure:"log_failures" yaml:"log_failures" env:"TELEGRAM_LOG_FAILURES" default:"true"`
	LogResponseBody      bool   `mapstructure:"log_response_body" yaml:"log_response_body" env:"TELEGRAM_LOG_RESPONSE_BODY" default:"true"`
	RateLimitPerMinute   int    `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute" env:"TELEGRAM_RATE_LIMIT_PER_MINUTE" default:"1800"`
	ReserveHighPerMinute int    `mapstructure:"reserve_high_per_minute" yaml:"reserve_high_per_minute" env:"TELEGRAM_RESERVE_HIGH_PER_MINUTE" default:"300"`
	SyncMaxWaitMS        int    `mapstructure:"sync_max_wait_ms" yaml:"sync_max_wait_ms" env:"TELEGRAM_SYNC_MAX_WAIT_MS" default:"2000"`
	WorkerConcurrency    int    `mapstructure:"worker_concurrency" yaml:"worker_concurrency" env:"TELEGRAM_WORKER_CONCURRENCY" default:"4"`
	MaxAttempts          int    `mapstructure:"max_attempts" yaml:"max_attempts" env:"TELEGRAM_MAX_ATTEMPTS" default:"5"`
	Queues               Queues `mapstructure:"queues" yaml:"queues"`
}

func (s Sending) SyncMaxWait() time.Duration {
	return time.Duration(s.SyncMaxWaitMS) * time.Millisecond
}

type Queues struct {
	High    string `mapstructure:"high" yaml:"high" env:"TELEGRAM_QUEUE_HIGH" default:"telegram-high"`
	Low     string `mapstructure:"low" yaml:"low" env:"TELEGRAM_QUEUE_LOW" default:"telegram-low"`
	Updates string `mapstructure:"updates" yaml:"updates" env:"TELEGRAM_QUEUE_UPDATES" default:"telegram-updates"`
}

// Redis is optional. Without a URL every store and queue is in memory.
type Redis struct {
	URL      string `mapstructure:"url" yaml:"url" env:"REDIS_URL"`
	Password string `mapstructure:"password" yaml:"password" env:"REDIS_PASSWORD"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix" env:"REDIS_PREFIX" default:"hybridgram:"`
}

func (r Redis) Enabled() bool { return r.URL != "" }

type Webhook struct {
	Path       string `mapstructure:"path" yaml:"path" env:"TELEGRAM_WEBHOOK_PATH" default:"/telegram/bot/webhook/"`
	Async      bool   `mapstructure:"async" yaml:"async" env:"TELEGRAM_WEBHOOK_ASYNC" default:"false"`
	DedupeSize int    `mapstructure:"dedupe_size" yaml:"dedupe_size" env:"TELEGRAM_WEBHOOK_DEDUPE_SIZE" default:"1024"`
}

// Load reads path (when not empty), the environment and the given .env
// files, or ./.env when none are given. Variables already present in the
// environment win over .env entries, and the environment wins over the
// file.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadDotenv(envFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := bindSection(v, "", reflect.TypeOf(Config{}), true); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if len(cfg.Bots) == 0 {
		var b Bot
		if err := fillFromEnv(&b); err != nil {
			return nil, err
		}
		if b.Token != "" {
			cfg.Bots = []Bot{b}
		}
	}
	return finish(&cfg)
}

// Default returns the built-in settings for bots without consulting the
// environment or any file.
func Default(bots ...Bot) (*Config, error) {
	v := viper.New()
	if err := bindSection(v, "", reflect.TypeOf(Config{}), false); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding defaults")
	}
	cfg.Bots = append([]Bot(nil), bots...)
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	for i := range cfg.Bots {
		if err := fillDefaults(&cfg.Bots[i]); err != nil {
			return nil, err
		}
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/bot")

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	return errors.Wrap(godotenv.Load(files...), "loading .env")
}

// Bot returns the bot with the given id.
func (c *Config) Bot(id string) (*Bot, bool) {
	for i := range c.Bots {
		if c.Bots[i].BotID == id {
			return &c.Bots[i], true
		}
	}
	return nil, false
}

// Tokens maps every bot id to its token.
func (c *Config) Tokens() map[string]string {
	out := make(map[string]string, len(c.Bots))
	for _, b := range c.Bots {
		out[b.BotID] = b.Token
	}
	return out
}

// Secrets maps bot ids to webhook secret tokens, skipping bots without one.
func (c *Config) Secrets() map[string]string {
	out := make(map[string]string)
	for _, b := range c.Bots {
		if b.SecretToken != "" {
			out[b.BotID] = b.SecretToken
		}
	}
	return out
}

func (c *Config) Validate() error {
	if len(c.Bots) == 0 {
		return errors.New("no bots configured: set BOT_TOKEN or list bots in the config file")
	}
	seen := make(map[string]bool, len(c.Bots))
	for _, b := range c.Bots {
		switch {
		case b.Token == "":
			return errors.Errorf("bot %q has no token", b.BotID)
		case seen[b.BotID]:
			return errors.Errorf("duplicate bot id %q", b.BotID)
		case b.UpdateMode != ModePolling && b.UpdateMode != ModeWebhook:
			return errors.Errorf("bot %q: unknown update mode %q", b.BotID, b.UpdateMode)
		case b.PollingLimit < 1 || b.PollingLimit > 100:
			return errors.Errorf("bot %q: polling limit must be within 1..100, got %d", b.BotID, b.PollingLimit)
		case b.PollingTimeout < 0:
			return errors.Errorf("bot %q: negative polling timeout", b.BotID)
		}
		seen[b.BotID] = true
	}
	if c.Sending.RateLimitPerMinute <= 0 {
		return errors.New("sending.rate_limit_per_minute must be positive")
	}
	if c.Sending.ReserveHighPerMinute < 0 || c.Sending.ReserveHighPerMinute >= c.Sending.RateLimitPerMinute {
		return errors.Errorf("sending.reserve_high_per_minute must be within 0..%d", c.Sending.RateLimitPerMinute-1)
	}
	return nil
}

func (c *Config) resolveSecrets() error {
	for i := range c.Bots {
		tok, err := resolveSecret(c.Bots[i].Token)
		if err != nil {
			return errors.Wrapf(err, "bot %q token", c.Bots[i].BotID)
		}
		c.Bots[i].Token = tok
	}
	pw, err := resolveSecret(c.Redis.Password)
	if err != nil {
		return errors.Wrap(err, "redis password")
	}
	c.Redis.Password = pw
	return nil
}

// resolveSecret looks values of the form keyring:<account> up in the OS
// keychain under KeyringService.
func resolveSecret(value string) (string, error) {
	account, ok := strings.CutPrefix(value, keyringPrefix)
	if !ok {
		return value, nil
	}
	secret, err := keyring.Get(KeyringService, account)
	if err != nil {
		return "", errors.Wrapf(err, "keyring account %q", account)
	}
	return secret, nil
}

// StoreSecret saves a secret in the OS keychain so it can be referenced as
// keyring:<account>.
func StoreSecret(account, secret string) error {
	return errors.Wrapf(keyring.Set(KeyringService, account, secret), "keyring account %q", account)
}

type fieldTags struct {
	key, env, def string
}

func parseTags(f reflect.StructField) (fieldTags, error) {
	var out fieldTags
	tags, err := structtag.Parse(string(f.Tag))
	if err != nil {
		return out, errors.Wrapf(err, "field %s", f.Name)
	}
	if t, err := tags.Get("mapstructure"); err == nil {
		out.key = t.Name
	}
	if t, err := tags.Get("env"); err == nil {
		out.env = t.Name
	}
	if t, err := tags.Get("default"); err == nil {
		out.def = t.Value()
	}
	return out, nil
}

// bindSection registers defaults, and env bindings when withEnv is set, for
// every tagged field of t under prefix, descending into nested sections.
func bindSection(v *viper.Viper, prefix string, t reflect.Type, withEnv bool) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tags, err := parseTags(f)
		if err != nil {
			return err
		}
		if tags.key == "" {
			continue
		}
		key := tags.key
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct {
			if err := bindSection(v, key, f.Type, withEnv); err != nil {
				return err
			}
			continue
		}
		if f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct {
			continue
		}
		if withEnv && tags.env != "" {
			if err := v.BindEnv(key, tags.env); err != nil {
				return errors.Wrapf(err, "binding %s", tags.env)
			}
		}
		if tags.def != "" {
			v.SetDefault(key, tags.def)
		}
	}
	return nil
}

func fillFromEnv(b *Bot) error {
	return eachField(b, func(fv reflect.Value, tags fieldTags) error {
		if tags.env == "" {
			return nil
		}
		raw, ok := os.LookupEnv(tags.env)
		if !ok || raw == "" {
			return nil
		}
		return errors.Wrapf(setValue(fv, raw), "parsing %s", tags.env)
	})
}

func fillDefaults(b *Bot) error {
	return eachField(b, func(fv reflect.Value, tags fieldTags) error {
		if tags.def == "" || !fv.IsZero() {
			return nil
		}
		return errors.Wrapf(setValue(fv, tags.def), "default for %s", tags.key)
	})
}

func eachField(b *Bot, fn func(reflect.Value, fieldTags) error) error {
	rv := reflect.ValueOf(b).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tags, err := parseTags(rt.Field(i))
		if err != nil {
			return err
		}
		if err := fn(rv.Field(i), tags); err != nil {
			return err
		}
	}
	return nil
}

func setValue(fv reflect.Value, raw string) error {
	raw = strings.TrimSpace(raw)
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Bool:
		ok, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(ok)
	case reflect.Slice:
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return errors.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}
