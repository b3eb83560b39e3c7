// Package bootstrap provides dependency initialization for the CLI.
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/maauso/gemini-transcribe/internal/audio"
	"github.com/maauso/gemini-transcribe/internal/config"
	"github.com/maauso/gemini-transcribe/internal/gemini"
	"github.com/maauso/gemini-transcribe/internal/openai"
	"github.com/maauso/gemini-transcribe/internal/storage"
	"github.com/maauso/gemini-transcribe/internal/transcribe"
	"github.com/maauso/gemini-transcribe/internal/transcriber"
)

// Dependencies holds all initialized dependencies for the application.
type Dependencies struct {
	Transcriber *transcriber.Transcriber
}

// NewDependencies creates and initializes all dependencies.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize the chunk store
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize the transcription backend
	backend, err := initBackend(cfg)
	if err != nil {
		return nil, err
	}

	// ffmpeg and ffprobe are resolved from PATH
	slicer := audio.NewFFmpegSlicer("", "")

	tr := transcriber.New(slicer, backend, store, logger,
		transcriber.WithWorkers(cfg.Workers),
	)

	return &Dependencies{
		Transcriber: tr,
	}, nil
}

// initBackend selects the transcription backend from configuration.
func initBackend(cfg *config.Config) (transcribe.Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendOpenAI:
		client, err := openai.NewClient(openai.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create OpenAI client: %w", err)
		}
		return client, nil
	case config.BackendGemini, "":
		client, err := gemini.NewClient(gemini.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create Gemini client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}

// initStorage creates the chunk store, wrapping it with S3 publishing
// when a bucket is configured.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Store(cfg.ChunksDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 store: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	fsStore, err := storage.NewFSStore(cfg.ChunksDir)
	if err != nil {
		return nil, fmt.Errorf("create chunk store: %w", err)
	}
	logger.Info("local chunk store configured",
		slog.String("dir", cfg.ChunksDir),
	)
	return fsStore, nil
}
