package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CLAIMWATCH_MONITOR_POLL_INTERVAL.
const EnvPrefix = "CLAIMWATCH"

// Creator filter modes.
const (
	CreatorFilterAll     = "all"
	CreatorFilterRoyalty = "royalty"
)

// Config represents the complete application configuration
type Config struct {
	Sources  SourcesConfig  `mapstructure:"sources"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourcesConfig holds the upstream dataset endpoints
type SourcesConfig struct {
	FeesURL             string        `mapstructure:"fees_url"`
	StatsURL            string        `mapstructure:"stats_url"`
	APIKey              string        `mapstructure:"api_key"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// MonitorConfig holds claim detection and alerting behavior
type MonitorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	IdleThreshold  time.Duration `mapstructure:"idle_threshold"`
	MinClaimSOL    float64       `mapstructure:"min_claim_sol"`
	CreatorFilter  string        `mapstructure:"creator_filter"` // all | royalty
	FirstClaimOnly bool          `mapstructure:"first_claim_only"`
	TokenMint      string        `mapstructure:"token_mint"` // empty = all tokens
	TokenURLFormat string        `mapstructure:"token_url_format"`
}

// DiscordConfig holds Discord webhook configuration
type DiscordConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Username   string        `mapstructure:"username"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds the alert journal configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	MaxRows int    `mapstructure:"max_rows"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key needs a default so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	// Sources defaults
	v.SetDefault("sources.fees_url", "")
	v.SetDefault("sources.stats_url", "")
	v.SetDefault("sources.api_key", "")
	v.SetDefault("sources.timeout", "15s")
	v.SetDefault("sources.max_retries", 0) // retry on the next tick instead
	v.SetDefault("sources.retry_delay_base", "1s")
	v.SetDefault("sources.max_idle_conns", 10)
	v.SetDefault("sources.max_idle_conns_per_host", 2)
	v.SetDefault("sources.idle_conn_timeout", "90s")

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", "5s")
	v.SetDefault("monitor.idle_threshold", "1h")
	v.SetDefault("monitor.min_claim_sol", 0.0)
	v.SetDefault("monitor.creator_filter", CreatorFilterRoyalty)
	v.SetDefault("monitor.first_claim_only", false)
	v.SetDefault("monitor.token_mint", "")
	v.SetDefault("monitor.token_url_format", "https://solscan.io/token/%s")

	// Discord defaults
	v.SetDefault("discord.enabled", false)
	v.SetDefault("discord.webhook_url", "")
	v.SetDefault("discord.username", "claimwatch")
	v.SetDefault("discord.timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.max_rows", 10000)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":2112")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Sources config
	if err := validateHTTPURL("sources.fees_url", c.Sources.FeesURL, true); err != nil {
		return err
	}
	if err := validateHTTPURL("sources.stats_url", c.Sources.StatsURL, false); err != nil {
		return err
	}
	if c.Sources.Timeout <= 0 {
		return fmt.Errorf("sources.timeout must be positive")
	}
	if c.Sources.MaxRetries < 0 {
		return fmt.Errorf("sources.max_retries must not be negative")
	}

	// Validate Monitor config
	if c.Monitor.PollInterval < time.Second {
		return fmt.Errorf("monitor.poll_interval must be at least 1 second")
	}
	if c.Monitor.IdleThreshold < c.Monitor.PollInterval {
		return fmt.Errorf("monitor.idle_threshold must be at least monitor.poll_interval")
	}
	if c.Monitor.MinClaimSOL < 0 {
		return fmt.Errorf("monitor.min_claim_sol must not be negative")
	}
	switch c.Monitor.CreatorFilter {
	case CreatorFilterAll, CreatorFilterRoyalty:
	default:
		return fmt.Errorf("monitor.creator_filter must be one of: all, royalty")
	}
	if c.Monitor.TokenMint != "" {
		if err := ValidateMint(c.Monitor.TokenMint); err != nil {
			return fmt.Errorf("monitor.token_mint: %w", err)
		}
	}
	if c.Monitor.TokenURLFormat != "" && strings.Count(c.Monitor.TokenURLFormat, "%s") != 1 {
		return fmt.Errorf("monitor.token_url_format must contain exactly one %%s")
	}

	// Validate Discord config
	if c.Discord.Enabled {
		if err := validateHTTPURL("discord.webhook_url", c.Discord.WebhookURL, true); err != nil {
			return fmt.Errorf("%w when discord is enabled", err)
		}
		if c.Discord.Timeout <= 0 {
			return fmt.Errorf("discord.timeout must be positive")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.Enabled && c.Storage.MaxRows < 0 {
		return fmt.Errorf("storage.max_rows must not be negative")
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ValidateMint checks that s is a base58-encoded 32-byte Solana address.
func ValidateMint(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address %q decodes to %d bytes, want 32", s, len(raw))
	}
	return nil
}

func validateHTTPURL(key, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
