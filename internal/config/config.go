// Package config loads the service configuration from defaults, an
// optional YAML file, an optional .env file, the process environment and
// command-line flags, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/telegram"
)

// bcrypt ignores everything past 72 bytes and newer versions refuse it.
const maxPasswordBytes = 72

// Config holds the configuration for the service
type Config struct {
	Telegram TelegramConfig `koanf:"telegram"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Log      LogConfig      `koanf:"log"`
	DryRun   bool           `koanf:"dry_run"` // If true, log messages instead of calling Telegram
}

// TelegramConfig is the relay destination and its credential.
type TelegramConfig struct {
	BotToken  string        `koanf:"bot_token"`
	ChatID    string        `koanf:"chat_id"`
	APIURL    string        `koanf:"api_url"`    // Optional: override Bot API base URL (for testing)
	ParseMode string        `koanf:"parse_mode"` // Markdown, MarkdownV2, HTML or none
	Timeout   time.Duration `koanf:"timeout"`
}

// WebhookConfig is the listen address and the single accepted identity.
type WebhookConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// LogConfig selects log verbosity and output styles.
type LogConfig struct {
	Level        string `koanf:"level"`         // debug, info, warn or error
	Format       string `koanf:"format"`        // slog handler: text or json
	AccessFormat string `koanf:"access_format"` // access log: simple or nginx
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Webhook.Host, strconv.Itoa(c.Webhook.Port))
}

// Validate checks that all required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("missing required configuration: telegram.bot_token (env TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("missing required configuration: telegram.chat_id (env TELEGRAM_CHAT_ID)")
	}
	if c.Webhook.Username == "" {
		return fmt.Errorf("missing required configuration: webhook.username (env WEBHOOK_USERNAME)")
	}
	if c.Webhook.Password == "" {
		return fmt.Errorf("missing required configuration: webhook.password (env WEBHOOK_PASSWORD)")
	}
	if len(c.Webhook.Password) > maxPasswordBytes {
		return fmt.Errorf("webhook.password must be at most %d bytes (got %d)", maxPasswordBytes, len(c.Webhook.Password))
	}
	if c.Webhook.Port < 1 || c.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port must be between 1 and 65535 (got %d)", c.Webhook.Port)
	}
	if _, err := telegram.ParseParseMode(c.Telegram.ParseMode); err != nil {
		return err
	}
	if c.Telegram.Timeout < 0 {
		return fmt.Errorf("telegram.timeout must be >= 0 (got %s)", c.Telegram.Timeout)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\" (got %q)", c.Log.Format)
	}
	switch c.Log.AccessFormat {
	case "simple", "nginx":
	default:
		return fmt.Errorf("log.access_format must be \"simple\" or \"nginx\" (got %q)", c.Log.AccessFormat)
	}
	return nil
}

// envMappings maps environment variable names to configuration keys. The
// same names are accepted in the .env file.
var envMappings = map[string]string{
	// Relay destination
	"TELEGRAM_BOT_TOKEN":  "telegram.bot_token",
	"TELEGRAM_CHAT_ID":    "telegram.chat_id",
	"TELEGRAM_API_URL":    "telegram.api_url",
	"TELEGRAM_PARSE_MODE": "telegram.parse_mode",
	"TELEGRAM_TIMEOUT":    "telegram.timeout",

	// Ingress
	"WEBHOOK_HOST":     "webhook.host",
	"WEBHOOK_PORT":     "webhook.port",
	"WEBHOOK_USERNAME": "webhook.username",
	"WEBHOOK_PASSWORD": "webhook.password",

	// Logging
	"LOG_LEVEL":         "log.level",
	"LOG_FORMAT":        "log.format",
	"ACCESS_LOG_FORMAT": "log.access_format",

	"DRY_RUN": "dry_run",
}

// FlagMappings maps command-line flag names to configuration keys.
var FlagMappings = map[string]string{
	"host":      "webhook.host",
	"port":      "webhook.port",
	"log-level": "log.level",
	"dry-run":   "dry_run",
}

func defaults() map[string]any {
	return map[string]any{
		"telegram.api_url":    telegram.DefaultAPIURL,
		"telegram.parse_mode": string(telegram.ParseModeMarkdown),
		"telegram.timeout":    "30s",

		"webhook.host": "127.0.0.1",
		"webhook.port": 5000,

		"log.level":         "info",
		"log.format":        "text",
		"log.access_format": "simple",

		"dry_run": false,
	}
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an optional YAML file. It must exist when set.
	ConfigFile string
	// EnvFile is an optional dotenv file. A missing file is skipped unless
	// RequireEnvFile is set.
	EnvFile        string
	RequireEnvFile bool
	// Flags holds command-line overrides; only flags set by the user and
	// listed in FlagMappings are applied.
	Flags *pflag.FlagSet
}

// Load builds and validates the configuration.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		if err := k.Load(file.Provider(opts.ConfigFile), koanfyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if opts.EnvFile != "" {
		overrides, err := loadEnvFile(opts.EnvFile)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !opts.RequireEnvFile:
		case err != nil:
			return nil, err
		case len(overrides) > 0:
			if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
				return nil, fmt.Errorf("failed to load env file: %w", err)
			}
		}
	}

	envOverrides := make(map[string]any)
	for envKey, configKey := range envMappings {
		if value := os.Getenv(envKey); value != "" {
			envOverrides[configKey] = value
		}
	}
	if len(envOverrides) > 0 {
		if err := k.Load(confmap.Provider(envOverrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment overrides: %w", err)
		}
	}

	if opts.Flags != nil {
		if err := loadFlags(k, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile reads a dotenv file and maps the known names to keys.
func loadEnvFile(path string) (map[string]any, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	dk := koanf.New(".")
	if err := dk.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	overrides := make(map[string]any)
	for envKey, configKey := range envMappings {
		if value := dk.String(envKey); value != "" {
			overrides[configKey] = value
		}
	}
	return overrides, nil
}

func loadFlags(k *koanf.Koanf, flags *pflag.FlagSet) error {
	var errs []error
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := FlagMappings[f.Name]; ok {
			if err := k.Set(key, f.Value.String()); err != nil {
				errs = append(errs, fmt.Errorf("flag %s: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}
