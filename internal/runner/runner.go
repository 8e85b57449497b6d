package runner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"spotcrawl/internal/config"
	"spotcrawl/internal/crawl"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/infrastructure"
)

// TaskRunner crawls one task over a date range. *crawl.Orchestrator
// satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, task config.Task, dr crawl.DateRange) (crawl.Summary, error)
}

// Factory builds the TaskRunner for one task. stop reports whether an
// interrupt was requested and is meant to be handed to the orchestrator.
type Factory func(task config.Task, stop func() bool) TaskRunner

// Report is the outcome of one pass over the selected tasks.
type Report struct {
	RunID       string          `json:"run_id"`
	Range       string          `json:"range"`
	Summaries   []crawl.Summary `json:"summaries"`
	Failed      []string        `json:"failed,omitempty"`
	Interrupted bool            `json:"interrupted"`
	Duration    time.Duration   `json:"duration"`
}

// Runner sequences tasks, one at a time, and owns the interrupt flag.
type Runner struct {
	logger *slog.Logger
	status *Status

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a runner
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Runner{
		logger: infrastructure.WithComponent(logger, "runner"),
		status: newStatus(),
		stopCh: make(chan struct{}),
	}
}

// Stop asks the current and any future run to finish after the unit in
// flight. It is safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		r.status.setState(StateStopping)
		close(r.stopCh)
	})
}

// Stopping reports whether Stop was called.
func (r *Runner) Stopping() bool { return r.stopped.Load() }

// Done is closed once Stop has been called.
func (r *Runner) Done() <-chan struct{} { return r.stopCh }

// Status returns the live status tracker.
func (r *Runner) Status() *Status { return r.status }

// RunTasks runs tasks in order. A task that fails to start or navigate is
// logged and the next task runs; only cancellation of ctx ends the pass
// early with an error.
func (r *Runner) RunTasks(ctx context.Context, tasks config.Tasks, dr crawl.DateRange, factory Factory) (*Report, error) {
	ctx, runID := infrastructure.NewRunContext(ctx)
	started := time.Now()
	report := &Report{RunID: runID, Range: dr.String()}

	r.status.begin(runID, dr.String(), len(tasks))
	defer func() {
		report.Duration = time.Since(started)
		r.status.finish(report)
	}()

	r.logger.InfoContext(ctx, "run_started",
		slog.String("range", dr.String()),
		slog.Int("tasks", len(tasks)))

	for i, task := range tasks {
		if r.Stopping() {
			report.Interrupted = true
			r.logger.WarnContext(ctx, "run_interrupted", slog.String("next_task", task.Name))
			break
		}

		r.status.startTask(task.Name, i+1)
		r.logger.InfoContext(ctx, "task_dispatch",
			slog.String("task", task.Name),
			slog.Int("index", i+1),
			slog.Int("total", len(tasks)))

		summary, err := factory(task, r.Stopping).Run(ctx, task, dr)
		report.Summaries = append(report.Summaries, summary)
		r.status.endTask(summary)
		if summary.Interrupted {
			report.Interrupted = true
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			report.Failed = append(report.Failed, task.Name)
			r.status.taskFailed(task.Name, err)
			r.logTaskError(ctx, task, err)
		}
	}

	r.logger.InfoContext(ctx, "run_finished",
		slog.Int("tasks", len(report.Summaries)),
		slog.Int("failed", len(report.Failed)),
		slog.Bool("interrupted", report.Interrupted),
		slog.Duration("duration", time.Since(started)))
	return report, nil
}

func (r *Runner) logTaskError(ctx context.Context, task config.Task, err error) {
	attrs := []any{
		slog.String("task", task.Name),
		slog.String("kind", string(crawlerrors.KindOf(err))),
		slog.String("error", err.Error()),
	}
	if crawlerrors.Is(err, crawlerrors.ErrNavigationFailure) {
		r.logger.ErrorContext(ctx, "task_navigation_failed_skipping", attrs...)
		return
	}
	r.logger.ErrorContext(ctx, "task_failed_skipping", attrs...)
}
