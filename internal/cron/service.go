package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/metrics"
	"github.com/go-co-op/gocron/v2"
)

const defaultInterval = time.Minute

// LockFactory builds the lock guarding one sweep.
type LockFactory func(sweep string) (Lock, error)

// ServiceParams configure the sweep service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.SweepMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval. Each job is its own
// scheduler entry with its own lock, so one slow sweep never delays another.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    map[string]Lock
	metrics  *metrics.SweepMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	locks := make(map[string]Lock)
	for _, job := range registry.Jobs() {
		lock, err := params.Locks(job.Name())
		if err != nil {
			return nil, fmt.Errorf("lock for %s: %w", job.Name(), err)
		}
		locks[job.Name()] = lock
	}

	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    locks,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run schedules every job and blocks until ctx is cancelled. A run that
// overruns the interval delays that job's next run instead of overlapping it.
func (s *Service) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	for _, job := range s.registry.Jobs() {
		_, err = sched.NewJob(
			gocron.DurationJob(s.interval),
			gocron.NewTask(func() {
				if err := s.runLocked(ctx, job); err != nil {
					s.logg.Error(ctx, "scheduled run failed", err)
				}
			}),
			gocron.WithName(job.Name()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return errors.Join(fmt.Errorf("schedule %s: %w", job.Name(), err), sched.Shutdown())
		}
	}

	sched.Start()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"interval": s.interval.String(),
		"jobs":     len(s.registry.Jobs()),
	}), "sweep scheduler started")
	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		s.logg.Error(ctx, "scheduler shutdown failed", err)
	}
	s.logg.Info(ctx, "sweep scheduler stopped")
	return ctx.Err()
}

// RunCycle runs all jobs once, each under its own lock. Job failures are
// logged and never stop the remaining jobs; only lock errors are returned.
func (s *Service) RunCycle(ctx context.Context) error {
	var errs []error
	for _, job := range s.registry.Jobs() {
		errs = append(errs, s.runLocked(ctx, job))
	}
	return errors.Join(errs...)
}

func (s *Service) runLocked(ctx context.Context, job Job) error {
	lock, ok := s.locks[job.Name()]
	if !ok {
		return fmt.Errorf("no lock for %s", job.Name())
	}
	jobCtx := s.logg.WithField(ctx, "job", job.Name())

	locked, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%s lock acquire: %w", job.Name(), err)
	}
	if !locked {
		s.metrics.Contended(job.Name())
		s.logg.Info(jobCtx, "another worker is running this sweep; skipping")
		return nil
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(jobCtx, "failed to release sweep lock", relErr)
		}
	}()

	s.runJob(jobCtx, job)
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)
	s.metrics.ObserveRun(job.Name(), took, err)
	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return
	}
	s.logg.Debug(ctx, "job completed")
}
