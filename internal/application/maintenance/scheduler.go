// Package maintenance runs periodic housekeeping: pruning the local audit
// trail, closing browser sessions that have gone idle and resending queued
// announcement emails.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of scheduled work.
type Job interface {
	cron.Job
	Name() string
}

// Scheduler wraps a seconds-resolution cron with panic recovery and
// structured logging around every run. Overlapping runs of a job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "maintenance")
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				recoverWrapper(logger),
				loggingWrapper(logger),
				cron.SkipIfStillRunning(cron.DiscardLogger),
			),
		),
		logger: logger,
	}
}

// Add registers job on a six-field cron spec (seconds first).
// PRE: spec parses, e.g. "0 30 3 * * *"
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	s.logger.Info("job_scheduled", "job", job.Name(), "spec", spec)
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func jobName(j cron.Job) string {
	if n, ok := j.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", j)
}

func loggingWrapper(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			l := logger.With("job", jobName(j), "execution_id", uuid.NewString())
			start := time.Now()
			l.Debug("job_started")
			j.Run()
			l.Info("job_finished", "duration_ms", float64(time.Since(start).Microseconds())/1000.0)
		})
	}
}

func recoverWrapper(logger *slog.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("job_panicked", "job", jobName(j), "panic", r, "stack", string(debug.Stack()))
				}
			}()
			j.Run()
		})
	}
}
