package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

const defaultTick = time.Minute

type runObserver interface {
	ObserveRun(job string, took time.Duration, finishedAt time.Time, err error)
	IncSkipped(job string)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   Locker
	Metrics  runObserver
	// Tick is how often the registry is checked for due jobs.
	Tick time.Duration
}

// Service wakes every tick and runs each due job under its own lease. A
// successful run keeps the lease until it expires, which spaces runs by the
// job interval across every worker.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locker   Locker
	metrics  runObserver
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:     params.Logger,
		registry: params.Registry,
		locker:   params.Locker,
		metrics:  params.Metrics,
		tick:     tick,
		now:      time.Now,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.RunDue(ctx); err != nil {
			s.logg.Error(ctx, "loyalty jobs failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunDue runs every job whose interval has elapsed. One failing job does not
// stop the rest; their errors are combined.
func (s *Service) RunDue(ctx context.Context) error {
	var errs error
	for _, e := range s.registry.Due(s.now()) {
		errs = multierr.Append(errs, s.runEntry(ctx, e))
	}
	return errs
}

func (s *Service) runEntry(ctx context.Context, e *entry) error {
	name := e.job.Name()
	ctx = s.logg.WithField(ctx, "job", name)

	release, err := s.locker.Acquire(ctx, name, e.every)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if release == nil {
		s.logg.Info(ctx, "job held by another worker, skipping")
		if s.metrics != nil {
			s.metrics.IncSkipped(name)
		}
		return nil
	}
	started := s.now()
	e.lastRun = started
	err = e.job.Run(ctx)
	finished := s.now()
	if s.metrics != nil {
		s.metrics.ObserveRun(name, finished.Sub(started), finished, err)
	}

	ctx = s.logg.WithField(ctx, "duration_ms", finished.Sub(started).Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		// free the lease so any worker can retry on its next tick
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "release job lease", relErr)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logg.Info(ctx, "job completed")
	return nil
}
