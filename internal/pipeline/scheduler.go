package pipeline

import (
	"context"
	"time"

	"github.com/okian/gameradar/pkg/logger"
)

// Scheduler runs a job on a fixed interval until its context is done.
type Scheduler struct {
	name     string
	interval time.Duration
	job      func(ctx context.Context) error
	logger   logger.Logger
}

// NewScheduler creates a scheduler; a non-positive interval disables it.
func NewScheduler(name string, interval time.Duration, job func(ctx context.Context) error) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.Get().Named(name),
	}
}

// Serve ticks until ctx is done. Job errors are logged and the schedule
// continues.
func (s *Scheduler) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.job(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "scheduled job failed", logger.Error(err))
			}
		}
	}
}

func (s *Scheduler) String() string { return s.name }
