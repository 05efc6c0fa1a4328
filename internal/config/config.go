// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Detector backends selectable through DETECTOR_BACKEND.
const (
	// BackendHTTP calls a detection sidecar over HTTP.
	BackendHTTP = "http"
	// BackendOllama asks a vision model served by Ollama for boxes.
	BackendOllama = "ollama"
	// BackendNone disables detection entirely; every scene letterboxes.
	BackendNone = "none"
)

// Static errors for configuration validation.
var (
	// ErrDetectorURLRequired is returned when DETECTOR_BACKEND=http and
	// DETECTOR_URL is not set.
	ErrDetectorURLRequired = errors.New("config: DETECTOR_URL is required when DETECTOR_BACKEND=http")
	// ErrInvalidDetectorBackend is returned for an unknown DETECTOR_BACKEND.
	ErrInvalidDetectorBackend = errors.New(`config: DETECTOR_BACKEND must be "http", "ollama" or "none"`)
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int `env:"MAX_UPLOAD_MB, default=512" json:"max_upload_mb"`

	// Worker pool settings
	WorkerCount int `env:"WORKER_COUNT, default=2" json:"worker_count"`
	QueueSize   int `env:"QUEUE_SIZE, default=16" json:"queue_size"`

	// Artifact directories
	UploadDir string `env:"UPLOAD_DIR, default=/tmp/autocrop/uploads" json:"upload_dir"`
	OutputDir string `env:"OUTPUT_DIR, default=/tmp/autocrop/outputs" json:"output_dir"`

	// Scene segmentation
	SceneThreshold float64 `env:"SCENE_THRESHOLD, default=0.4" json:"scene_threshold"`

	// Subject detection
	DetectorBackend string        `env:"DETECTOR_BACKEND, default=none" json:"detector_backend"` // "http", "ollama" or "none"
	DetectorURL     string        `env:"DETECTOR_URL" json:"detector_url,omitempty"`
	DetectorAPIKey  string        `env:"DETECTOR_API_KEY" json:"-"` // Masked in JSON
	DetectorTimeout time.Duration `env:"DETECTOR_TIMEOUT, default=30s" json:"detector_timeout"`
	OllamaModel     string        `env:"OLLAMA_MODEL, default=qwen2.5vl:7b" json:"ollama_model"`
	MinConfidence   float64       `env:"MIN_CONFIDENCE, default=0.25" json:"min_confidence"`

	// Job store settings; an empty address keeps job records in memory.
	RedisAddr     string        `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string        `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int           `env:"REDIS_DB, default=0" json:"redis_db"`
	RedisTTL      time.Duration `env:"REDIS_TTL, default=24h" json:"redis_ttl"`

	// Optional S3 publishing
	S3Bucket           string        `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string        `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string        `env:"S3_PREFIX, default=outputs" json:"s3_prefix"`
	S3Endpoint         string        `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3URLExpiry        time.Duration `env:"S3_URL_EXPIRY, default=1h" json:"s3_url_expiry"`
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Webhook settings
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT, default=30s" json:"webhook_timeout"`

	// External tools
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks constraints that cut across fields.
func (c *Config) Validate() error {
	switch c.DetectorBackend {
	case BackendHTTP:
		if c.DetectorURL == "" {
			return ErrDetectorURLRequired
		}
	case BackendOllama, BackendNone:
	default:
		return ErrInvalidDetectorBackend
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Workers: %d, QueueSize: %d, UploadDir: %s, OutputDir: %s, SceneThreshold: %.2f, DetectorBackend: %s, RedisAddr: %s, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.WorkerCount,
		c.QueueSize,
		c.UploadDir,
		c.OutputDir,
		c.SceneThreshold,
		c.DetectorBackend,
		c.RedisAddr,
		c.S3Bucket,
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
