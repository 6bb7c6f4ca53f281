package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job on its own ticker.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run starts one loop per job and blocks until the context is canceled. Each
// job runs once immediately, then on every tick of its interval.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range s.registry.Entries() {
		entry := entry
		g.Go(func() error {
			return s.loop(gctx, entry)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		s.logg.Info(ctx, "cron service context canceled")
	}
	return err
}

// RunOnce runs every registered job a single time, honoring the locks.
func (s *Service) RunOnce(ctx context.Context) {
	for _, entry := range s.registry.Entries() {
		if err := s.runCycle(ctx, entry.Job); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "job", entry.Job.Name()), "scheduled run failed", err)
		}
	}
}

func (s *Service) loop(ctx context.Context, entry Entry) error {
	interval := entry.Interval
	if interval <= 0 {
		interval = s.interval
	}
	jobCtx := s.logg.WithField(ctx, "job", entry.Job.Name())
	if err := s.runCycle(ctx, entry.Job); err != nil {
		s.logg.Error(jobCtx, "scheduled run failed", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx, entry.Job); err != nil {
				s.logg.Error(jobCtx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context, job Job) error {
	name := job.Name()
	locked, err := s.lock.Acquire(ctx, name)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(s.logg.WithField(ctx, "job", name), "another worker holds the job lock; skipping")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx, name); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	s.runJob(ctx, job)
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	s.logg.Debug(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logg.Debug(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}
