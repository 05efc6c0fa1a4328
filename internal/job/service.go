package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autocrop/vertical-api/internal/metrics"
	"github.com/autocrop/vertical-api/internal/reframe"
	"github.com/autocrop/vertical-api/internal/storage"
)

// Static errors for the job service.
var (
	// ErrQueueFull is returned when the job queue cannot accept more work.
	ErrQueueFull = errors.New("job queue is full")
	// ErrJobRunning is returned for operations that require the job to
	// not be processing, such as delete.
	ErrJobRunning = errors.New("job is still running")
	// ErrJobTerminal is returned when cancelling a job that already finished.
	ErrJobTerminal = errors.New("job already in a terminal state")
)

// Processor runs the reframing pipeline for one job.
// It is implemented by reframe.Pipeline.
type Processor interface {
	Process(ctx context.Context, sourcePath, destPath string, sink reframe.ProgressSink) (*reframe.Result, error)
}

// Notifier delivers job completion notifications.
// It is implemented by webhook.Client.
type Notifier interface {
	Notify(ctx context.Context, url string, payload any) error
}

// ServiceConfig controls the worker pool and artifact placement.
type ServiceConfig struct {
	// Workers is the number of concurrent pipeline workers.
	Workers int
	// QueueSize is the capacity of the job queue buffer.
	QueueSize int
	// OutputDir is where finished videos are written.
	OutputDir string
}

// SubmitInput carries what the API layer collected for a new job.
type SubmitInput struct {
	SourcePath string
	WebhookURL string
}

// Service owns the job queue and the worker pool that drives the
// reframing pipeline. Jobs are queued by ID and re-fetched by the
// worker, so cancellations between submit and pickup are honored.
type Service struct {
	cfg       ServiceConfig
	repo      Repository
	processor Processor
	store     storage.Storage
	notifier  Notifier
	logger    *slog.Logger

	queue     chan string
	workers   errgroup.Group
	closeOnce sync.Once
}

// NewService creates the job service. Call Start to launch the worker
// pool and Close to drain it on shutdown.
func NewService(cfg ServiceConfig, repo Repository, processor Processor, store storage.Storage, notifier Notifier, logger *slog.Logger) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:       cfg,
		repo:      repo,
		processor: processor,
		store:     store,
		notifier:  notifier,
		logger:    logger,
		queue:     make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers run until Close is called or
// the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		worker := i
		s.workers.Go(func() error {
			s.logger.Debug("worker started", slog.Int("worker", worker))
			for {
				select {
				case <-ctx.Done():
					return nil
				case id, ok := <-s.queue:
					if !ok {
						return nil
					}
					s.run(ctx, id)
				}
			}
		})
	}
}

// Close stops accepting new jobs, lets workers drain what is already
// queued, and waits for in-flight jobs to finish.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	return s.workers.Wait()
}

// Submit registers a new job and enqueues it for processing.
// Returns ErrQueueFull when the queue buffer is at capacity.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*Job, error) {
	j := New()
	j.SourcePath = input.SourcePath
	j.WebhookURL = input.WebhookURL

	if err := s.repo.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	select {
	case s.queue <- j.ID:
	default:
		// Do not leave an orphaned queued record behind.
		if err := s.repo.Delete(ctx, j.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			s.logger.Warn("failed to remove rejected job",
				slog.String("job_id", j.ID),
				slog.Any("error", err),
			)
		}
		return nil, ErrQueueFull
	}

	metrics.RecordJobSubmitted()
	s.logger.Info("job queued",
		slog.String("job_id", j.ID),
		slog.String("source", input.SourcePath),
	)
	return j, nil
}

// Get returns the job with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all known jobs.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Cancel marks a queued job as cancelled. Jobs already picked up by a
// worker keep running; jobs in a terminal state cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if j.GetStatus() == StatusRunning {
		return ErrJobRunning
	}

	if err := j.Cancel(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	metrics.RecordJobDequeued()
	s.logger.Info("job cancelled", slog.String("job_id", id))
	return nil
}

// Delete removes a job record and its stored artifacts.
// Returns ErrJobRunning while a worker is processing the job.
func (s *Service) Delete(ctx context.Context, id string) error {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	status := j.GetStatus()
	if status == StatusRunning {
		return ErrJobRunning
	}

	if err := s.store.Remove(ctx, j.SourcePath, j.OutputPath); err != nil {
		s.logger.Warn("failed to remove job artifacts",
			slog.String("job_id", id),
			slog.Any("error", err),
		)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if status == StatusInQueue {
		metrics.RecordJobDequeued()
	}
	s.logger.Info("job deleted", slog.String("job_id", id))
	return nil
}

// run processes a single queued job inside a worker.
func (s *Service) run(ctx context.Context, id string) {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		// Deleted while queued is normal churn, anything else is not.
		if !errors.Is(err, ErrJobNotFound) {
			s.logger.Error("failed to load queued job",
				slog.String("job_id", id),
				slog.Any("error", err),
			)
		}
		return
	}

	if j.GetStatus() != StatusInQueue {
		s.logger.Info("skipping job no longer queued",
			slog.String("job_id", id),
			slog.String("status", string(j.GetStatus())),
		)
		return
	}

	if err := j.Start(); err != nil {
		s.logger.Error("failed to start job",
			slog.String("job_id", id),
			slog.Any("error", err),
		)
		return
	}
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Warn("failed to save running status",
			slog.String("job_id", id),
			slog.Any("error", err),
		)
	}

	metrics.RecordJobStarted()
	s.logger.Info("job started",
		slog.String("job_id", id),
		slog.String("source", j.SourcePath),
	)

	destPath := filepath.Join(s.cfg.OutputDir, j.ID+"_output.mp4")

	sink := func(ev reframe.ProgressEvent) {
		j.UpdateProgress(Progress{Stage: ev.Stage, Percent: ev.Percent, Message: ev.Message})
		if err := s.repo.Save(ctx, j); err != nil {
			s.logger.Warn("failed to save progress",
				slog.String("job_id", j.ID),
				slog.Any("error", err),
			)
		}
	}

	res, err := s.processor.Process(ctx, j.SourcePath, destPath, sink)
	if err != nil {
		s.fail(j, err)
		return
	}

	s.complete(ctx, j, destPath, res)
}

// fail records a terminal failure. The worker context may already be
// cancelled, so persistence gets its own deadline.
func (s *Service) fail(j *Job, procErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := j.Fail(procErr.Error()); err != nil {
		s.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID),
			slog.Any("error", err),
		)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save failed job",
			slog.String("job_id", j.ID),
			slog.Any("error", err),
		)
	}

	metrics.RecordJobCompleted(string(StatusFailed))
	s.logger.Error("job failed",
		slog.String("job_id", j.ID),
		slog.Any("error", procErr),
	)
	s.notify(j)
}

// complete publishes the output, records the result, and marks the job done.
func (s *Service) complete(ctx context.Context, j *Job, destPath string, res *reframe.Result) {
	videoURL := ""
	url, err := s.store.Publish(ctx, destPath, j.ID+"/output.mp4")
	switch {
	case errors.Is(err, storage.ErrS3NotConfigured):
		// Local deployment: the download endpoint serves the file.
	case err != nil:
		s.logger.Warn("failed to publish output",
			slog.String("job_id", j.ID),
			slog.Any("error", err),
		)
	default:
		videoURL = url
	}

	j.SetResult(res.SceneCount, res.FrameCount, res.OutputWidth, res.OutputHeight)
	j.SetOutput(destPath, videoURL)
	if err := j.Complete(); err != nil {
		s.logger.Error("failed to mark job completed",
			slog.String("job_id", j.ID),
			slog.Any("error", err),
		)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save completed job",
			slog.String("job_id", j.ID),
			slog.Any("error", err),
		)
	}

	metrics.RecordJobCompleted(string(StatusCompleted))
	metrics.ObserveJobDuration(res.Elapsed)
	metrics.AddFramesProcessed(res.FrameCount)
	if res.Plan != nil {
		for _, sc := range res.Plan.Scenes {
			metrics.RecordSceneAnalyzed(string(sc.Strategy))
		}
	}

	s.logger.Info("job completed",
		slog.String("job_id", j.ID),
		slog.Int("scenes", res.SceneCount),
		slog.Int("frames", res.FrameCount),
		slog.Duration("elapsed", res.Elapsed),
	)
	s.notify(j)
}

// webhookPayload is the notification body sent to callback URLs.
type webhookPayload struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	OutputURL    string `json:"output_url,omitempty"`
	Error        string `json:"error,omitempty"`
	SceneCount   int    `json:"scene_count,omitempty"`
	FrameCount   int    `json:"frame_count,omitempty"`
	OutputWidth  int    `json:"output_width,omitempty"`
	OutputHeight int    `json:"output_height,omitempty"`
}

// notify delivers the completion webhook when one is configured.
// The notifier bounds its own retries, so no outer deadline is needed.
func (s *Service) notify(j *Job) {
	if s.notifier == nil || j.WebhookURL == "" {
		return
	}

	c := j.Clone()
	payload := webhookPayload{
		JobID:        c.ID,
		Status:       string(c.Status),
		OutputURL:    c.OutputURL,
		Error:        c.Error,
		SceneCount:   c.SceneCount,
		FrameCount:   c.FrameCount,
		OutputWidth:  c.OutputWidth,
		OutputHeight: c.OutputHeight,
	}

	if err := s.notifier.Notify(context.Background(), c.WebhookURL, payload); err != nil {
		s.logger.Warn("webhook delivery failed",
			slog.String("job_id", c.ID),
			slog.String("url", c.WebhookURL),
			slog.Any("error", err),
		)
		return
	}
	s.logger.Info("webhook delivered",
		slog.String("job_id", c.ID),
		slog.String("url", c.WebhookURL),
	)
}
