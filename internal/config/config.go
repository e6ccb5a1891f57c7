package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TelegramModePolling = "polling"
	TelegramModeWebhook = "webhook"
)

type TelegramConfig struct {
	BotToken      string        `yaml:"bot_token"`
	BotUsername   string        `yaml:"bot_username"`
	APIEndpoint   string        `yaml:"api_endpoint"`
	Mode          string        `yaml:"mode"`
	WebhookURL    string        `yaml:"webhook_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
}

type VerificationConfig struct {
	LinkTTL       time.Duration `yaml:"link_ttl"`
	CodeTTL       time.Duration `yaml:"code_ttl"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RequestLimit  int           `yaml:"request_limit"`
	RequestWindow time.Duration `yaml:"request_window"`
}

type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Database struct {
		DSN          string `yaml:"url"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
		AutoMigrate  bool   `yaml:"auto_migrate"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	JWT struct {
		Secret string        `yaml:"secret"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"jwt"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Verification VerificationConfig `yaml:"verification"`
}

// LoadConfig reads the YAML file at path, applies env overrides for secrets
// and fills defaults. It does not validate.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployments
	default:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"TELEGRAM_BOT_TOKEN":      &c.Telegram.BotToken,
		"TELEGRAM_BOT_USERNAME":   &c.Telegram.BotUsername,
		"TELEGRAM_WEBHOOK_SECRET": &c.Telegram.WebhookSecret,
		"DATABASE_URL":            &c.Database.DSN,
		"REDIS_URL":               &c.Redis.URL,
		"JWT_SECRET":              &c.JWT.Secret,
	}
	for key, dst := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = TelegramModePolling
	}
	if c.Telegram.PollInterval <= 0 {
		c.Telegram.PollInterval = time.Second
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = 25 * time.Second
	}
	if c.Telegram.HTTPTimeout <= 0 {
		c.Telegram.HTTPTimeout = 10 * time.Second
	}
	v := &c.Verification
	if v.LinkTTL <= 0 {
		v.LinkTTL = 10 * time.Minute
	}
	if v.CodeTTL <= 0 {
		v.CodeTTL = 5 * time.Minute
	}
	if v.MaxAttempts <= 0 {
		v.MaxAttempts = 5
	}
	if v.RequestLimit == 0 {
		v.RequestLimit = 3
	}
	if v.RequestWindow <= 0 {
		v.RequestWindow = 10 * time.Minute
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports configuration the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		errs = append(errs, errors.New("telegram.bot_token (TELEGRAM_BOT_TOKEN) is required"))
	}
	if strings.TrimSpace(c.Telegram.BotUsername) == "" {
		errs = append(errs, errors.New("telegram.bot_username is required"))
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("jwt.secret (JWT_SECRET) is required"))
	}
	switch c.Telegram.Mode {
	case TelegramModePolling:
	case TelegramModeWebhook:
		if c.Telegram.WebhookURL == "" {
			errs = append(errs, errors.New("telegram.webhook_url is required in webhook mode"))
		}
		if strings.TrimSpace(c.Telegram.WebhookSecret) == "" {
			errs = append(errs, errors.New("telegram.webhook_secret (TELEGRAM_WEBHOOK_SECRET) is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("telegram.mode %q is not polling or webhook", c.Telegram.Mode))
	}
	if c.Verification.MaxAttempts < 1 {
		errs = append(errs, errors.New("verification.max_attempts must be positive"))
	}
	return errors.Join(errs...)
}
