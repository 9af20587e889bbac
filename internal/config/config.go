// Package config handles loading and validating gateway configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/howard-nolan/cozegate/internal/provider"
	"github.com/howard-nolan/cozegate/internal/stream"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
)

// EnvPrefix marks environment variables that override config values.
const EnvPrefix = "COZEGATE_"

// Config is the top-level configuration for the cozegate gateway.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Stream   StreamConfig   `koanf:"stream"`
	Log      LogConfig      `koanf:"log"`

	// Models are the names reported by GET /v1/models. Requests may name any
	// model; it is echoed back, never routed on.
	Models []string `koanf:"models"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds how long in-flight requests get to finish
	// after SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// UpstreamConfig holds the settings for the Coze bot chat API.
type UpstreamConfig struct {
	BaseURL string `koanf:"base_url"`
	BotID   string `koanf:"bot_id"`

	// Token is used when the caller sends no bearer credential of its own.
	Token string `koanf:"token"`

	// DefaultUser is the upstream identity for requests without a "user".
	DefaultUser string `koanf:"default_user"`

	// Timeout bounds a blocking call. StreamTimeout bounds a streaming call
	// end to end; zero means no limit.
	Timeout       time.Duration `koanf:"timeout"`
	StreamTimeout time.Duration `koanf:"stream_timeout"`

	// ProxyURL routes upstream traffic through an HTTP proxy when set.
	ProxyURL string `koanf:"proxy_url"`
}

// StreamConfig controls the streamed wire format.
type StreamConfig struct {
	Framing  string `koanf:"framing"`
	SkipDone bool   `koanf:"skip_done"`
}

// LogConfig controls logrus output and optional file rotation.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "text" or "json"

	// File, when set, receives a copy of every log line and is rotated by
	// size.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// StreamOptions converts the stream section into writer options.
func (c StreamConfig) StreamOptions() stream.Options {
	return stream.Options{Framing: stream.Framing(c.Framing), SkipDone: c.SkipDone}
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, fills in defaults and returns a fully populated Config.
// An empty path skips the file and configures from the environment alone.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Layer environment variables on top. Only the first underscore after
	// the prefix separates section from key, so multi-word keys survive:
	//   COZEGATE_SERVER_PORT     -> server.port
	//   COZEGATE_UPSTREAM_BOT_ID -> upstream.bot_id
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// koanf doesn't expand ${VAR_NAME} placeholders, so secrets that live
	// in the environment are resolved here.
	cfg.Upstream.Token = expandEnv(cfg.Upstream.Token)
	cfg.Upstream.BotID = expandEnv(cfg.Upstream.BotID)

	cfg.applyDefaults()
	return &cfg, nil
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// expandEnv resolves a value of the exact form ${NAME}. Anything else is
// returned unchanged.
func expandEnv(v string) string {
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return os.Getenv(v[2 : len(v)-1])
	}
	return v
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	// WriteTimeout stays 0 unless set: a server-wide write deadline would
	// cut long streams short.

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.coze.com"
	}
	if c.Upstream.DefaultUser == "" {
		c.Upstream.DefaultUser = provider.DefaultUser
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 120 * time.Second
	}

	if c.Stream.Framing == "" {
		c.Stream.Framing = string(stream.FramingSSE)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}

	if len(c.Models) == 0 {
		c.Models = []string{"coze"}
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Upstream.BotID == "" {
		errs = append(errs, errors.New("upstream.bot_id is required"))
	}
	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url %q is not an absolute URL", c.Upstream.BaseURL))
	}
	if c.Upstream.ProxyURL != "" {
		if _, err := url.Parse(c.Upstream.ProxyURL); err != nil {
			errs = append(errs, fmt.Errorf("upstream.proxy_url: %w", err))
		}
	}
	if c.Upstream.StreamTimeout < 0 || c.Upstream.Timeout < 0 {
		errs = append(errs, errors.New("upstream timeouts must not be negative"))
	}
	if !stream.Framing(c.Stream.Framing).Valid() {
		errs = append(errs, fmt.Errorf("stream.framing %q must be %q or %q", c.Stream.Framing, stream.FramingSSE, stream.FramingJSONL))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be \"text\" or \"json\"", c.Log.Format))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}
