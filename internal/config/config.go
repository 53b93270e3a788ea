// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Transcription backends.
const (
	// BackendOpenAI transcribes through the OpenAI audio API.
	BackendOpenAI = "openai"
	// BackendSidecar transcribes through a self-hosted faster-whisper sidecar.
	BackendSidecar = "sidecar"
)

// Static errors for configuration validation.
var (
	// ErrOpenAIAPIKeyRequired is returned when the openai backend is selected
	// without OPENAI_API_KEY.
	ErrOpenAIAPIKeyRequired = errors.New("config: OPENAI_API_KEY is required for the openai transcriber")
	// ErrSidecarURLRequired is returned when the sidecar backend is selected
	// without WHISPER_SIDECAR_URL.
	ErrSidecarURLRequired = errors.New("config: WHISPER_SIDECAR_URL is required for the sidecar transcriber")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Working directory holding audios/, jsons/ and timestamps/
	WorkDir string `env:"WORK_DIR, default=." json:"work_dir" validate:"required"`

	// Transcription settings
	Transcriber     string `env:"TRANSCRIBER, default=openai" json:"transcriber" validate:"oneof=openai sidecar"`
	TranscribeModel string `env:"TRANSCRIBE_MODEL" json:"transcribe_model,omitempty"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY" json:"-"` // Masked in JSON
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL" json:"openai_base_url,omitempty" validate:"omitempty,url"`
	SidecarURL      string `env:"WHISPER_SIDECAR_URL" json:"sidecar_url,omitempty" validate:"omitempty,url"`

	// External tools
	YTDLPPath   string `env:"YTDLP_PATH, default=yt-dlp" json:"ytdlp_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Job persistence; empty keeps jobs in memory
	JobDBPath string `env:"JOB_DB_PATH" json:"job_db_path,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json TEXT JSON"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                                       // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and that the selected transcriber has
// what it needs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch c.Transcriber {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return ErrOpenAIAPIKeyRequired
		}
	case BackendSidecar:
		if c.SidecarURL == "" {
			return ErrSidecarURLRequired
		}
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. Logs go to stderr so that
// stdout stays free for command output.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, WorkDir: %s, Transcriber: %s, TranscribeModel: %s, SidecarURL: %s, JobDBPath: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.WorkDir,
		c.Transcriber,
		c.TranscribeModel,
		c.SidecarURL,
		c.JobDBPath,
		c.S3Bucket,
		c.S3Region,
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
