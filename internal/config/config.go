// Package config loads the configuration of the tlxbot binary.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/renbou/tlxdispatch/internal/keychain"
	"gopkg.in/yaml.v3"
)

const (
	// RunModeLongpoll receives updates using getUpdates.
	RunModeLongpoll = "longpoll"
	// RunModeWebhook receives updates pushed by Telegram to a webhook.
	RunModeWebhook = "webhook"
)

const (
	// StorageMemory keeps dialogues in memory, they are lost on restart.
	StorageMemory = "memory"
	// StoragePostgres keeps dialogues in PostgreSQL.
	StoragePostgres = "postgres"
)

// TelegramConfig holds settings of the bot itself.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// BotName is used to recognize commands addressed to the bot, defaults to the bot's username.
	BotName string `yaml:"bot_name" envconfig:"TELEGRAM_BOT_NAME"`
	// APIEndpoint is the base URL of the Bot API server; empty means the official one.
	APIEndpoint string `yaml:"api_endpoint" envconfig:"TELEGRAM_API_ENDPOINT"`
	RunMode     string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds and LongPollLimit use the defaults when 0.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	LongPollLimit          int `yaml:"longpoll_limit" envconfig:"TELEGRAM_LONGPOLL_LIMIT"`
}

// WebhookConfig specifies where the webhook is served and registered.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path        string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// StorageConfig selects where dialogues are kept.
type StorageConfig struct {
	Kind string `yaml:"kind" envconfig:"DIALOGUE_STORAGE"`
	// DSN is a postgres:// URL, required for the postgres storage.
	DSN            string `yaml:"dsn" envconfig:"DATABASE_URL"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig controls the bot's logs.
type LoggingConfig struct {
	Quiet bool `yaml:"quiet" envconfig:"LOG_QUIET"`
}

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Load reads configuration from a YAML file, if a path is given, and environment variables,
// which take precedence over the file. The token is taken from the system keychain
// when it isn't configured otherwise.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if cfg.Telegram.Token == "" {
		if token, err := keychain.Token(); err == nil {
			cfg.Telegram.Token = token
		}
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills in defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required")
	}
	cfg.Telegram.BotName = strings.TrimPrefix(strings.TrimSpace(cfg.Telegram.BotName), "@")
	cfg.Telegram.APIEndpoint = strings.TrimRight(strings.TrimSpace(cfg.Telegram.APIEndpoint), "/")

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Path == "" {
			cfg.Webhook.Path = "/"
		} else if !strings.HasPrefix(cfg.Webhook.Path, "/") {
			cfg.Webhook.Path = "/" + cfg.Webhook.Path
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
		if cfg.Telegram.LongPollLimit < 0 || cfg.Telegram.LongPollLimit > 100 {
			return fmt.Errorf("telegram.longpoll_limit must be between 0 and 100")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	switch sk := strings.ToLower(strings.TrimSpace(cfg.Storage.Kind)); sk {
	case "", StorageMemory:
		cfg.Storage.Kind = StorageMemory
	case StoragePostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required when storage.kind is 'postgres'")
		}
		cfg.Storage.Kind = sk
	default:
		return fmt.Errorf("invalid storage.kind %q; allowed: memory, postgres", cfg.Storage.Kind)
	}
	return nil
}

// WebhookAddr returns the address the webhook server listens on.
func (c *Config) WebhookAddr() string {
	return fmt.Sprintf("%s:%d", c.Webhook.Listen, c.Webhook.Port)
}
