package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Every is the cron expression for a run every hours hours.
func Every(hours int) string {
	return fmt.Sprintf("@every %dh", hours)
}

// Schedule runs job immediately and then on expr until ctx is cancelled or
// Stop is called. Runs never overlap: a tick that arrives while a run is in
// progress is skipped. Schedule returns after the run in flight finishes.
func (r *Runner) Schedule(ctx context.Context, expr string, job func(ctx context.Context)) error {
	logger := cronLogger{logger: r.logger}
	c := cron.New(cron.WithLogger(logger))

	wrapped := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() {
			if r.Stopping() || ctx.Err() != nil {
				return
			}
			job(ctx)
		}))

	id, err := c.AddJob(expr, wrapped)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	c.Start()
	r.logger.InfoContext(ctx, "schedule_started", slog.String("expr", expr))

	wrapped.Run()
	r.logger.InfoContext(ctx, "schedule_next_run", slog.Time("at", c.Entry(id).Next))

	select {
	case <-ctx.Done():
	case <-r.Done():
	}
	stopped := c.Stop()
	<-stopped.Done()
	r.logger.InfoContext(ctx, "schedule_stopped")
	return nil
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
