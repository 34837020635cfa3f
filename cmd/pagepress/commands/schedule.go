package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/schedule"
)

// ScheduleCmd implements the 'schedule' command.
type ScheduleCmd struct {
	Cron    string `help:"Cron expression; defaults to schedule.cron"`
	Publish *bool  `negatable:"" help:"Publish after each build; defaults to schedule.publish"`
}

func (s *ScheduleCmd) Run(_ *Global, root *CLI) error {
	a, err := loadApp(root)
	if err != nil {
		return err
	}
	expr := s.Cron
	if expr == "" {
		expr = a.cfg.Schedule.Cron
	}
	if expr == "" {
		return foundationerrors.ConfigError("no schedule configured (set schedule.cron or pass --cron)").Build()
	}
	withPublish := a.cfg.Schedule.Publish
	if s.Publish != nil {
		withPublish = *s.Publish
	}
	if err := a.openStores(); err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.serveMetrics(ctx)

	sched, err := schedule.NewScheduler()
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryRuntime, "failed to create scheduler").Build()
	}
	task := func(ctx context.Context) error {
		if withPublish {
			return a.buildAndPublish(ctx, false)
		}
		_, err := a.build(ctx)
		return err
	}
	id, err := sched.ScheduleCron(ctx, expr, "build", task)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "invalid cron expression").
			WithContext("cron", expr).Build()
	}
	sched.Start()
	_, _ = fmt.Fprintf(a.out, "Scheduled %q (publish=%t), next run %s\n", expr, withPublish, sched.NextRun(id).Format("2006-01-02 15:04"))

	<-ctx.Done()
	return sched.Stop()
}
