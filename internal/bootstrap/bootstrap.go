// Package bootstrap wires the application dependency graph.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/autocrop/vertical-api/internal/config"
	"github.com/autocrop/vertical-api/internal/detect"
	"github.com/autocrop/vertical-api/internal/job"
	"github.com/autocrop/vertical-api/internal/media"
	"github.com/autocrop/vertical-api/internal/reframe"
	"github.com/autocrop/vertical-api/internal/scenes"
	"github.com/autocrop/vertical-api/internal/storage"
	"github.com/autocrop/vertical-api/internal/webhook"
)

// Dependencies holds the initialized collaborators for the HTTP server.
type Dependencies struct {
	JobService *job.Service
	Store      storage.Storage

	repo job.Repository
}

// Close releases backing connections. Call it after the job service has
// drained so workers are not left writing to a closed repository.
func (d *Dependencies) Close() error {
	if closer, ok := d.repo.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Workers write finished videos here directly.
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	repo, err := initRepository(cfg, logger)
	if err != nil {
		return nil, err
	}

	detector, err := initDetector(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	segmenter := scenes.NewFFmpegSegmenter(engine, cfg.FFmpegPath, cfg.SceneThreshold, logger)
	pipeline := reframe.NewPipeline(engine, segmenter, detector, logger)

	notifier := webhook.NewClient(webhook.WithTimeout(cfg.WebhookTimeout))

	svc := job.NewService(job.ServiceConfig{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.QueueSize,
		OutputDir: cfg.OutputDir,
	}, repo, pipeline, store, notifier, logger)

	return &Dependencies{
		JobService: svc,
		Store:      store,
		repo:       repo,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			URLExpiry:       cfg.S3URLExpiry,
		}
		s3Store, err := storage.NewS3Storage(cfg.UploadDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("upload_dir", localStore.Dir()),
	)
	return localStore, nil
}

// initRepository picks the job store. Without Redis, job records live in
// memory and do not survive restarts.
func initRepository(cfg *config.Config, logger *slog.Logger) (job.Repository, error) {
	if cfg.RedisEnabled() {
		repo, err := job.NewRedisRepository(job.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create redis repository: %w", err)
		}
		return repo, nil
	}

	logger.Info("using in-memory job repository")
	return job.NewMemoryRepository(), nil
}

// initDetector builds the configured detection backend. A nil detector
// is valid and downgrades every scene to letterbox.
func initDetector(cfg *config.Config, logger *slog.Logger) (detect.Detector, error) {
	switch cfg.DetectorBackend {
	case config.BackendHTTP:
		opts := []detect.HTTPOption{
			detect.WithMinConfidence(cfg.MinConfidence),
			detect.WithHTTPClient(&http.Client{Timeout: cfg.DetectorTimeout}),
		}
		if cfg.DetectorAPIKey != "" {
			opts = append(opts, detect.WithAPIKey(cfg.DetectorAPIKey))
		}
		boxes, err := detect.NewHTTPDetector(cfg.DetectorURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("create http detector: %w", err)
		}
		logger.Info("http detector configured", slog.String("url", cfg.DetectorURL))
		return detect.NewComposite(boxes, logger), nil

	case config.BackendOllama:
		url := cfg.DetectorURL
		if url == "" {
			url = "http://127.0.0.1:11434"
		}
		boxes, err := detect.NewOllamaDetector(url, cfg.OllamaModel,
			detect.WithOllamaMinConfidence(cfg.MinConfidence),
			detect.WithOllamaTimeout(cfg.DetectorTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama detector: %w", err)
		}
		logger.Info("ollama detector configured",
			slog.String("url", url),
			slog.String("model", cfg.OllamaModel),
		)
		return detect.NewComposite(boxes, logger), nil

	case config.BackendNone:
		logger.Warn("subject detection disabled, every scene will letterbox")
		return nil, nil

	default:
		return nil, config.ErrInvalidDetectorBackend
	}
}
