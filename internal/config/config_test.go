package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wsolMint = "So11111111111111111111111111111111111111112"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
sources:
  fees_url: "https://api.example.com/fees"
  stats_url: "https://api.example.com/stats"
  timeout: 10s

monitor:
  poll_interval: 5s
  idle_threshold: 30m
  min_claim_sol: 0.5
  creator_filter: all
  first_claim_only: true
  token_mint: "`+wsolMint+`"

discord:
  enabled: true
  webhook_url: "https://discord.com/api/webhooks/1/abc"

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "info"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.IdleThreshold)
	assert.Equal(t, 0.5, cfg.Monitor.MinClaimSOL)
	assert.Equal(t, CreatorFilterAll, cfg.Monitor.CreatorFilter)
	assert.True(t, cfg.Monitor.FirstClaimOnly)
	assert.Equal(t, 10*time.Second, cfg.Sources.Timeout)
	assert.Equal(t, "claimwatch", cfg.Discord.Username, "default discord username")
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, 10000, cfg.Storage.MaxRows)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, time.Hour, cfg.Monitor.IdleThreshold)
	assert.Equal(t, CreatorFilterRoyalty, cfg.Monitor.CreatorFilter)
	assert.Zero(t, cfg.Sources.MaxRetries)
	// Defaults alone lack the fees endpoint.
	assert.Error(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CLAIMWATCH_SOURCES_FEES_URL", "https://env.example.com/fees")
	t.Setenv("CLAIMWATCH_MONITOR_IDLE_THRESHOLD", "2h")
	t.Setenv("CLAIMWATCH_DISCORD_ENABLED", "true")
	t.Setenv("CLAIMWATCH_DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/9/xyz")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/fees", cfg.Sources.FeesURL)
	assert.Equal(t, 2*time.Hour, cfg.Monitor.IdleThreshold)
	assert.True(t, cfg.Discord.Enabled, "discord enabled from env")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("CLAIMWATCH_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("CLAIMWATCH_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env"), envPath))
	assert.Equal(t, "from-file", os.Getenv("CLAIMWATCH_TEST_DOTENV"))
}

func validConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			FeesURL: "https://api.example.com/fees",
			Timeout: 15 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval:  5 * time.Second,
			IdleThreshold: time.Hour,
			CreatorFilter: CreatorFilterRoyalty,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing fees url", func(c *Config) { c.Sources.FeesURL = "" }, "sources.fees_url is required"},
		{"bad stats scheme", func(c *Config) { c.Sources.StatsURL = "ftp://x/y" }, "sources.stats_url"},
		{"zero timeout", func(c *Config) { c.Sources.Timeout = 0 }, "sources.timeout"},
		{"negative retries", func(c *Config) { c.Sources.MaxRetries = -1 }, "sources.max_retries"},
		{"poll too fast", func(c *Config) { c.Monitor.PollInterval = 100 * time.Millisecond }, "monitor.poll_interval"},
		{"idle below poll", func(c *Config) { c.Monitor.IdleThreshold = time.Second }, "monitor.idle_threshold"},
		{"negative min claim", func(c *Config) { c.Monitor.MinClaimSOL = -0.1 }, "monitor.min_claim_sol"},
		{"bad filter", func(c *Config) { c.Monitor.CreatorFilter = "first" }, "monitor.creator_filter"},
		{"bad mint", func(c *Config) { c.Monitor.TokenMint = "not-base58-0OIl" }, "monitor.token_mint"},
		{"short mint", func(c *Config) { c.Monitor.TokenMint = "abc" }, "monitor.token_mint"},
		{"valid mint", func(c *Config) { c.Monitor.TokenMint = wsolMint }, ""},
		{"bad url format", func(c *Config) { c.Monitor.TokenURLFormat = "https://x/" }, "token_url_format"},
		{"discord without webhook", func(c *Config) { c.Discord.Enabled = true; c.Discord.Timeout = time.Second }, "discord.webhook_url"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "1" }, "telegram.bot_token"},
		{"telegram without chat", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.BotToken = "t" }, "telegram.chat_id"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true }, "metrics.addr"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
