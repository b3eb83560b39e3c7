// Package config provides configuration loading from environment
// variables and an optional YAML defaults file.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/maauso/gemini-transcribe/internal/transcriber"
)

// Static errors for configuration validation.
var (
	// ErrGeminiKeyRequired is returned when the gemini backend is
	// selected and GEMINI_API_KEY is not set.
	ErrGeminiKeyRequired = errors.New("config: GEMINI_API_KEY is required")
	// ErrOpenAIKeyRequired is returned when the openai backend is
	// selected and OPENAI_API_KEY is not set.
	ErrOpenAIKeyRequired = errors.New("config: OPENAI_API_KEY is required")
	// ErrUnknownBackend is returned for backend names other than gemini or openai.
	ErrUnknownBackend = errors.New("config: unknown backend")
)

// Backend names accepted in configuration.
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// InstructionsFileName is the file auto-detected in the working
// directory when no instructions flag is given.
const InstructionsFileName = "transcription_instructions.md"

// Config holds all configuration for the application. Values resolve
// lowest to highest: built-in defaults, then the YAML file, then
// environment variables. CLI flags overlay the result at the call site.
type Config struct {
	// Backend settings
	Backend string `env:"TRANSCRIBE_BACKEND, overwrite" yaml:"backend" json:"backend"`
	Model   string `env:"TRANSCRIBE_MODEL, overwrite" yaml:"model" json:"model"` // empty selects the backend default

	// Credentials
	GeminiAPIKey string `env:"GEMINI_API_KEY, overwrite" yaml:"-" json:"-"` // Masked in JSON
	OpenAIAPIKey string `env:"OPENAI_API_KEY, overwrite" yaml:"-" json:"-"` // Masked in JSON

	// Chunking settings, plain seconds as in the CLI flags
	ChunkDurationSec int `yaml:"chunk_duration_seconds" json:"chunk_duration_seconds"`
	OverlapSec       int `yaml:"overlap_seconds" json:"overlap_seconds"`
	HeaderEverySec   int `yaml:"header_every_seconds" json:"header_every_seconds"` // 0 keeps the merge default
	Workers          int `yaml:"workers" json:"workers"`

	// Storage settings
	ChunksDir string `env:"CHUNKS_DIR, overwrite" yaml:"chunks_dir" json:"chunks_dir"`

	// Optional S3 settings for publishing the merged document
	S3Bucket           string `env:"S3_BUCKET, overwrite" yaml:"s3_bucket" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION, overwrite" yaml:"s3_region" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID, overwrite" yaml:"-" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY, overwrite" yaml:"-" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, overwrite" yaml:"log_format" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, overwrite" yaml:"log_level" json:"log_level"`    // "debug", "info", "warn", "error"
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		Backend:          BackendGemini,
		ChunkDurationSec: int(transcriber.DefaultChunkDuration / time.Second),
		OverlapSec:       int(transcriber.DefaultOverlap / time.Second),
		Workers:          transcriber.DefaultWorkers,
		ChunksDir:        "audio_chunks",
		LogFormat:        "text",
		LogLevel:         "info",
	}
}

// DefaultConfigPath returns the default YAML defaults file location,
// or "" when the home directory cannot be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gemini-transcribe", "config.yaml")
}

// Load resolves the configuration. The YAML file at path overrides the
// defaults and the environment overrides both. An empty path falls back
// to DefaultConfigPath; only an explicitly given file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// ChunkDuration returns the nominal window length.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkDurationSec) * time.Second
}

// Overlap returns the audio shared between consecutive windows.
func (c *Config) Overlap() time.Duration {
	return time.Duration(c.OverlapSec) * time.Second
}

// HeaderEvery returns the section header cadence, zero for the merge default.
func (c *Config) HeaderEvery() time.Duration {
	return time.Duration(c.HeaderEverySec) * time.Second
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Validate checks that the configuration is usable for a run.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return ErrGeminiKeyRequired
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return ErrOpenAIKeyRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	if c.ChunkDurationSec <= 0 {
		return fmt.Errorf("config: chunk_duration_seconds must be > 0, got %d", c.ChunkDurationSec)
	}
	if c.OverlapSec < 0 || c.OverlapSec >= c.ChunkDurationSec {
		return fmt.Errorf("config: overlap_seconds must be in [0, chunk duration), got %d", c.OverlapSec)
	}
	if c.HeaderEverySec != 0 {
		lo := int(transcriber.MinHeaderEvery / time.Second)
		hi := int(transcriber.MaxHeaderEvery / time.Second)
		if c.HeaderEverySec < lo || c.HeaderEverySec > hi {
			return fmt.Errorf("config: header_every_seconds must be in [%d, %d], got %d", lo, hi, c.HeaderEverySec)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: log_format must be json or text, got %q", c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for
// production. Otherwise, it outputs human-readable text logs. Logs go
// to stderr so the document path printed on stdout stays scriptable.
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
		"Config{Backend: %s, Model: %s, ChunkDurationSec: %d, OverlapSec: %d, HeaderEverySec: %d, Workers: %d, ChunksDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Backend,
		c.Model,
		c.ChunkDurationSec,
		c.OverlapSec,
		c.HeaderEverySec,
		c.Workers,
		c.ChunksDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// FindInstructionsFile returns the path of the default instructions
// file inside dir, or "" when none exists. It never walks parent
// directories; the caller decides which directory matters.
func FindInstructionsFile(dir string) string {
	path := filepath.Join(dir, InstructionsFileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
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
