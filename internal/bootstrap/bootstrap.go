// Package bootstrap provides dependency initialization shared by the CLI
// commands and the HTTP server.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/whisper-timestamps/internal/audio"
	"github.com/maauso/whisper-timestamps/internal/config"
	"github.com/maauso/whisper-timestamps/internal/job"
	"github.com/maauso/whisper-timestamps/internal/media"
	"github.com/maauso/whisper-timestamps/internal/pipeline"
	"github.com/maauso/whisper-timestamps/internal/storage"
	"github.com/maauso/whisper-timestamps/internal/transcriber"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Storage  storage.Storage
	Pipeline *pipeline.Service
	Jobs     *job.Service

	closers []func() error
}

// Close releases resources such as the job database.
func (d *Dependencies) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewDependencies creates and initializes all dependencies for the
// application. Extra pipeline options, such as a terminal conflict
// resolver, are applied after the configured ones.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...pipeline.ServiceOption) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr, err := initTranscriber(cfg, logger)
	if err != nil {
		return nil, err
	}

	downloader := audio.NewYTDLP(cfg.YTDLPPath)
	prober := media.NewFFprobe(cfg.FFprobePath)

	pipelineOpts := append([]pipeline.ServiceOption{pipeline.WithLogger(logger)}, opts...)
	svc := pipeline.NewService(downloader, prober, tr, store, pipelineOpts...)

	deps := &Dependencies{
		Storage:  store,
		Pipeline: svc,
	}

	repo, err := initRepository(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	deps.Jobs = job.NewService(repo, svc, logger)

	return deps, nil
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
		}
		s3Store, err := storage.NewS3Storage(cfg.WorkDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("work_dir", localStore.Root()),
	)
	return localStore, nil
}

// initTranscriber creates the configured transcription backend.
func initTranscriber(cfg *config.Config, logger *slog.Logger) (transcriber.Transcriber, error) {
	switch cfg.Transcriber {
	case config.BackendSidecar:
		tr, err := transcriber.NewSidecar(cfg.SidecarURL,
			transcriber.WithSidecarModel(cfg.TranscribeModel),
			transcriber.WithSidecarLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create sidecar transcriber: %w", err)
		}
		return tr, nil
	default:
		tr, err := transcriber.NewOpenAI(cfg.OpenAIAPIKey,
			transcriber.WithModel(cfg.TranscribeModel),
			transcriber.WithOpenAIBaseURL(cfg.OpenAIBaseURL),
			transcriber.WithOpenAILogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create OpenAI transcriber: %w", err)
		}
		return tr, nil
	}
}

// initRepository keeps jobs in memory unless JOB_DB_PATH is set.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (job.Repository, error) {
	if cfg.JobDBPath == "" {
		return job.NewMemoryRepository(), nil
	}

	repo, err := job.OpenSQLite(ctx, cfg.JobDBPath)
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	deps.closers = append(deps.closers, repo.Close)
	logger.Info("job database opened", slog.String("path", repo.Path()))
	return repo, nil
}
