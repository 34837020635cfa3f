// Package schedule runs recurring build and publish jobs on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/pagepress/pagepress/internal/logfields"
)

// Task is one scheduled run. Errors are logged; the schedule continues.
type Task func(ctx context.Context) error

// Scheduler wraps a gocron scheduler. Runs of the same job never overlap; a tick that fires
// while the previous run is still busy is skipped.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a scheduler in the local time zone.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// ScheduleCron registers task under name on a five-field cron expression and returns the
// job id.
func (s *Scheduler) ScheduleCron(ctx context.Context, expr, name string, task Task) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.execute, ctx, name, task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

// NextRun returns the next scheduled run of the job, or the zero time.
func (s *Scheduler) NextRun(id string) time.Time {
	uid, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}
	}
	for _, j := range s.scheduler.Jobs() {
		if j.ID() == uid {
			next, err := j.NextRun()
			if err != nil {
				return time.Time{}
			}
			return next
		}
	}
	return time.Time{}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) execute(ctx context.Context, name string, task Task) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	slog.Info("Executing scheduled job", slog.String("job", name))
	if err := task(ctx); err != nil {
		slog.Error("Scheduled job failed", slog.String("job", name), logfields.Error(err))
		return
	}
	slog.Info("Scheduled job completed", slog.String("job", name),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
}
