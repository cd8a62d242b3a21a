// Package scheduler runs the ingestion cycles on their configured
// intervals. Each job gets its own goroutine and its runs never overlap; a
// slow cycle delays its own next tick, not the other feeds.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/crisislens/hazard-ingest-service/internal/observability"
)

// Job is one periodically executed ingestion cycle.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives a fixed set of jobs until its context is canceled.
type Scheduler struct {
	jobs    []Job
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	wg      sync.WaitGroup
}

// New creates a Scheduler. Tests inject a fake clock.
func New(clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{clock: clock, logger: logger, metrics: metrics}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches every job: one immediate run, then one run per interval
// tick. It returns without blocking; use Wait to observe shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.metrics.SchedulerRunning.Set(1)
	for _, job := range s.jobs {
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, job)
		}()
	}
}

// Wait blocks until all job goroutines have exited after cancellation.
func (s *Scheduler) Wait() {
	s.wg.Wait()
	s.metrics.SchedulerRunning.Set(0)
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.runJob(ctx, job)

	ticker := s.clock.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runJob(ctx, job)
		}
	}
}

// runJob isolates one execution: a panicking cycle is logged and the
// schedule keeps going.
func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", job.Name, "panic", r)
		}
	}()

	if err := job.Run(ctx); err != nil {
		s.logger.Warn("job finished with error", "job", job.Name, "error", err)
	}
}
