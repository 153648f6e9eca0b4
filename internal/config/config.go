// Package config provides runtime configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// ErrInvalidConfig is returned when an environment value is out of range.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds runtime settings. Processing behaviour lives in presets; this
// covers only how the process runs.
type Config struct {
	// Processing settings
	Workers      int    `env:"TAKEMASTER_WORKERS" json:"workers" validate:"gte=0,lte=64"` // 0 = one per CPU
	TempDir      string `env:"TAKEMASTER_TEMP_DIR" json:"temp_dir,omitempty"`
	CacheEntries int    `env:"TAKEMASTER_CACHE_ENTRIES, default=64" json:"cache_entries" validate:"gte=0"`

	// Optional S3 publication
	S3Bucket           string `env:"TAKEMASTER_S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"TAKEMASTER_S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"TAKEMASTER_S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3Prefix           string `env:"TAKEMASTER_S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"TAKEMASTER_LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json"`
	LogLevel  string `env:"TAKEMASTER_LOG_LEVEL, default=info" json:"log_level" validate:"oneof=debug info warn warning error"`
}

var validate = validator.New()

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// WorkerCount resolves Workers, defaulting to the CPU count.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// NewLogger creates a structured logger writing to w. When LogFormat is
// "json" it emits JSON lines, otherwise human-readable text.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// String returns a representation of the config with credentials masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Workers: %d, TempDir: %s, CacheEntries: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Workers,
		c.TempDir,
		c.CacheEntries,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
