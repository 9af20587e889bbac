package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig puts yamlContent in a temp dir that's auto-deleted after the
// test and returns its path.
func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s
  shutdown_timeout: 5s

upstream:
  base_url: https://api.coze.example
  bot_id: "7380000000000000001"
  token: ${TEST_COZE_TOKEN}
  default_user: gateway
  timeout: 45s
  stream_timeout: 10m

stream:
  framing: jsonl
  skip_done: true

log:
  level: debug
  format: json

models:
  - coze-bot
  - gpt-4o
`)

	// t.Setenv auto-restores the original value when the test finishes.
	t.Setenv("TEST_COZE_TOKEN", "pat_secret")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "https://api.coze.example", cfg.Upstream.BaseURL)
	assert.Equal(t, "7380000000000000001", cfg.Upstream.BotID)
	assert.Equal(t, "pat_secret", cfg.Upstream.Token)
	assert.Equal(t, "gateway", cfg.Upstream.DefaultUser)
	assert.Equal(t, 45*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Upstream.StreamTimeout)

	assert.Equal(t, "jsonl", cfg.Stream.Framing)
	assert.True(t, cfg.Stream.SkipDone)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"coze-bot", "gpt-4o"}, cfg.Models)
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
upstream:
  bot_id: "42"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "https://api.coze.com", cfg.Upstream.BaseURL)
	assert.Equal(t, "default_user", cfg.Upstream.DefaultUser)
	assert.Equal(t, 120*time.Second, cfg.Upstream.Timeout)
	assert.Zero(t, cfg.Upstream.StreamTimeout)
	assert.Equal(t, "sse", cfg.Stream.Framing)
	assert.False(t, cfg.Stream.SkipDone)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, []string{"coze"}, cfg.Models)
}

func TestLoadEnvOverride(t *testing.T) {
	// Verify that COZEGATE_ env vars override YAML values.
	configPath := writeConfig(t, `
server:
  port: 8080
upstream:
  bot_id: from-file
`)

	t.Setenv("COZEGATE_SERVER_PORT", "3000")
	t.Setenv("COZEGATE_UPSTREAM_BOT_ID", "from-env")
	t.Setenv("COZEGATE_STREAM_SKIP_DONE", "true")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Upstream.BotID)
	assert.True(t, cfg.Stream.SkipDone)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("COZEGATE_UPSTREAM_BOT_ID", "env-bot")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-bot", cfg.Upstream.BotID)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing bot id", func(c *Config) { c.Upstream.BotID = "" }, "upstream.bot_id is required"},
		{"relative base url", func(c *Config) { c.Upstream.BaseURL = "api.coze.com" }, "upstream.base_url"},
		{"unknown framing", func(c *Config) { c.Stream.Framing = "ndjson" }, "stream.framing"},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative timeout", func(c *Config) { c.Upstream.StreamTimeout = -time.Second }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Upstream: UpstreamConfig{BotID: "42"}}
			cfg.applyDefaults()
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

func TestStreamOptions(t *testing.T) {
	opts := StreamConfig{Framing: "jsonl", SkipDone: true}.StreamOptions()
	assert.Equal(t, "jsonl", string(opts.Framing))
	assert.True(t, opts.SkipDone)
}
