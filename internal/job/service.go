package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/whisper-timestamps/internal/pipeline"
)

// Runner executes one pipeline run. pipeline.Service satisfies it.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Output, error)
}

// Service creates jobs and drives them through the pipeline.
type Service struct {
	repo   Repository
	runner Runner
	logger *slog.Logger

	// mu serialises the state changes that race with DeleteJob: starting,
	// finishing and removing a job.
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService creates a new job Service.
func NewService(repo Repository, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		runner:  runner,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
	}
}

// CreateJob validates the request and persists a new IN_QUEUE job.
// Invalid requests return an error wrapping pipeline.ErrInvalidOptions.
func (s *Service) CreateJob(ctx context.Context, req Request) (*Job, error) {
	if err := optionsFor(req).Validate(); err != nil {
		return nil, err
	}

	job := New(req)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("input", req.Input),
		slog.Bool("translate", req.Translate),
		slog.Bool("push_to_s3", req.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns every known job, oldest first.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// ProcessExistingJob runs the pipeline for a job created by CreateJob and
// records the outcome. The returned error is the pipeline error, if any;
// the job is saved as FAILED, or TIMED_OUT when a deadline expired. A job
// removed by DeleteJob while running is cancelled and not saved again.
func (s *Service) ProcessExistingJob(ctx context.Context, id string) (*Job, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	job, err := s.start(ctx, id, cancel)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("job_id", job.ID))
	logger.Info("job started", slog.String("input", job.Request.Input))

	out, runErr := s.runner.Run(runCtx, optionsFor(job.Request))

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)

	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		return s.finishCancelled(ctx, logger, job)
	case runErr != nil:
		return s.finishFailed(ctx, logger, job, runErr)
	}

	if err := job.Complete(resultFrom(out)); err != nil {
		return nil, fmt.Errorf("complete job %s: %w", id, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}

	logger.Info("job completed",
		slog.String("base_name", out.BaseName),
		slog.Int("segments", out.Segments),
		slog.Int("artifacts", len(out.Artifacts)),
		slog.Bool("reused", out.Reused),
		slog.Float64("duration_seconds", out.Duration),
	)
	return job, nil
}

// DeleteJob removes a job. A job that has not finished is cancelled first,
// which stops its pipeline run. The returned job is the state at removal.
func (s *Service) DeleteJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !job.IsTerminal() {
		if err := job.Cancel(); err != nil {
			return nil, fmt.Errorf("cancel job %s: %w", id, err)
		}
		if stop, ok := s.running[id]; ok {
			stop()
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}

	s.logger.Info("job deleted",
		slog.String("job_id", id),
		slog.String("status", string(job.GetStatus())),
	)
	return job, nil
}

func (s *Service) start(ctx context.Context, id string, cancel context.CancelFunc) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", id, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}

	s.running[id] = cancel
	return job, nil
}

// finishFailed records a failed run. Callers hold s.mu.
func (s *Service) finishFailed(ctx context.Context, logger *slog.Logger, job *Job, runErr error) (*Job, error) {
	var transition error
	if errors.Is(runErr, context.DeadlineExceeded) {
		transition = job.Timeout(runErr.Error())
	} else {
		transition = job.Fail(runErr.Error())
	}
	if transition != nil {
		return nil, fmt.Errorf("fail job %s: %w", job.ID, transition)
	}

	if err := s.repo.Save(ctx, job); err != nil {
		logger.Error("failed to save failed job", slog.String("error", err.Error()))
	}
	logger.Error("job failed",
		slog.String("status", string(job.GetStatus())),
		slog.String("error", runErr.Error()),
	)
	return job, runErr
}

// finishCancelled handles a run stopped by DeleteJob. The stored record is
// already gone, so it is never saved again. Callers hold s.mu.
func (s *Service) finishCancelled(ctx context.Context, logger *slog.Logger, job *Job) (*Job, error) {
	if err := job.Cancel(); err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", job.ID, err)
	}
	if err := s.repo.Delete(ctx, job.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
		logger.Error("failed to remove cancelled job", slog.String("error", err.Error()))
	}
	logger.Info("job cancelled")
	return job, fmt.Errorf("job %s: %w", job.ID, context.Canceled)
}

func optionsFor(req Request) pipeline.Options {
	decision := pipeline.Reuse
	if req.Overwrite {
		decision = pipeline.Overwrite
	}
	return pipeline.Options{
		Input:     req.Input,
		Prompt:    req.Prompt,
		Language:  req.Language,
		Translate: req.Translate,
		PushToS3:  req.PushToS3,
		Resolver:  pipeline.StaticResolver{Decision: decision},
	}
}

func resultFrom(out *pipeline.Output) Result {
	artifacts := make([]Artifact, len(out.Artifacts))
	for i, a := range out.Artifacts {
		artifacts[i] = Artifact{
			Kind:  a.Kind,
			Group: a.Group,
			Name:  a.Name,
			Path:  a.Path,
			URL:   a.URL,
		}
	}
	return Result{
		BaseName:  out.BaseName,
		SourceURL: out.SourceURL,
		AudioPath: out.AudioPath,
		Segments:  out.Segments,
		Speech:    out.Speech,
		NoSpeech:  out.NoSpeech,
		Duration:  out.Duration,
		Reused:    out.Reused,
		Artifacts: artifacts,
	}
}
