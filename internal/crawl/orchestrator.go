package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/frames"
	"spotcrawl/internal/infrastructure"
	"spotcrawl/internal/retry"
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Navigator Navigator
	Resolver  Resolver
	Toolkit   Toolkit
	Storage   Storage
	Waiter    Waiter
}

// Orchestrator runs tasks one at a time against a single browser tab. It
// owns the current PageContext for the duration of a task.
type Orchestrator struct {
	deps           Deps
	logger         *slog.Logger
	unit           retry.Policy
	settle         time.Duration
	sleep          retry.SleepFunc
	pacer          Pacer
	recorder       Recorder
	postProcessors Registry
	ordinalColumn  string
	updateColumn   string
	stop           func() bool

	pc *frames.PageContext
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRetry sets the per-unit attempt count and fixed backoff.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *Orchestrator) { o.unit = retry.Fixed(attempts, interval) }
}

// WithSettle sets the wait between first resolution and re-validation.
func WithSettle(d time.Duration) Option {
	return func(o *Orchestrator) { o.settle = d }
}

// WithSleep replaces the timer used for settle and backoff waits.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithPacer keeps a pause between the end of one date and the next.
func WithPacer(p Pacer) Option {
	return func(o *Orchestrator) { o.pacer = p }
}

// WithRecorder reports metrics.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPostProcessors sets the task post-processing registry.
func WithPostProcessors(r Registry) Option {
	return func(o *Orchestrator) { o.postProcessors = r }
}

// WithColumns names the ordinal column excluded from coercion and the
// column receiving the page update timestamp.
func WithColumns(ordinal, update string) Option {
	return func(o *Orchestrator) {
		o.ordinalColumn = ordinal
		o.updateColumn = update
	}
}

// WithStop installs an interrupt check consulted between units.
func WithStop(stop func() bool) Option {
	return func(o *Orchestrator) { o.stop = stop }
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:          deps,
		logger:        infrastructure.GetLogger(),
		unit:          retry.Fixed(3, 5*time.Second),
		settle:        config.SurfaceMountDelay,
		sleep:         retry.Sleep,
		ordinalColumn: "序号",
		updateColumn:  "最新更新日期",
		stop:          func() bool { return false },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = infrastructure.WithComponent(o.logger, "crawl")
	o.unit.Sleep = o.sleep
	return o
}

// Run executes one task over the date range. Unit failures are logged and
// counted; the returned error is set only when the task could not start,
// storage could not be read, or ctx was cancelled.
func (o *Orchestrator) Run(ctx context.Context, task config.Task, dr DateRange) (summary Summary, err error) {
	started := time.Now()
	summary.Task = task.Name

	ctx, span := infrastructure.StartSpan(ctx, "crawl.task",
		attribute.String("task", task.Name),
		attribute.String("category", task.Category),
		attribute.String("range", dr.String()))
	defer func() {
		summary.Duration = time.Since(started)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if o.recorder != nil {
			o.recorder.TaskFinished(ctx, task.Name, err, summary.Duration)
		}
	}()

	log := o.logger.With(slog.String("task", task.Name), slog.String("category", task.Category))
	log.InfoContext(ctx, "task_started", slog.String("range", dr.String()))

	existing, err := o.deps.Storage.ExistingDates(task.Name, task.Category)
	if err != nil {
		return summary, fmt.Errorf("read existing dates: %w", err)
	}
	log.InfoContext(ctx, "task_existing_dates", slog.Int("count", len(existing)))

	if err := o.deps.Navigator.NavigateTo(ctx, task.Category, task.Name, task.SubcategoryPath()); err != nil {
		log.ErrorContext(ctx, "task_navigation_failed", slog.String("error", err.Error()))
		return summary, err
	}
	o.waitIdle(ctx, "navigation")

	if err := o.prepareSurface(ctx); err != nil {
		return summary, err
	}
	summary.Degraded = o.pc.Degraded

	if task.HasPageSize {
		tools := o.deps.Toolkit.Bind(o.pc.Surface)
		if err := tools.Filter.SetPageSize(ctx, task.PageSize); err != nil {
			log.WarnContext(ctx, "page_size_not_applied",
				slog.Int("page_size", task.PageSize),
				slog.String("error", err.Error()))
		}
	}

	options, err := o.discoverOptions(ctx, task)
	if err != nil {
		return summary, err
	}

	days := dr.Days()
	paced := false
	for i, date := range days {
		if existing.Has(date) {
			summary.SkippedDates++
			log.InfoContext(ctx, "date_skipped_existing",
				slog.String("date", date),
				slog.Int("index", i+1),
				slog.Int("total", len(days)))
			continue
		}

		if o.stop() {
			summary.Interrupted = true
			log.WarnContext(ctx, "task_interrupted", slog.String("next_date", date))
			return summary, nil
		}

		if paced && o.pacer != nil {
			if err := o.pacer.Wait(ctx); err != nil {
				return summary, err
			}
		}
		paced = true

		summary.Dates++
		log.InfoContext(ctx, "date_processing",
			slog.String("date", date),
			slog.Int("index", i+1),
			slog.Int("total", len(days)))

		for j, option := range options {
			if j > 0 && o.stop() {
				summary.Interrupted = true
				log.WarnContext(ctx, "task_interrupted",
					slog.String("date", date),
					slog.String("next_option", option))
				return summary, nil
			}

			unit := CrawlUnit{Task: task, Date: date, Option: option}
			res := o.executeWithRetry(ctx, unit)
			summary.add(res)
			if res.Degraded {
				summary.Degraded = true
			}

			if err := ctx.Err(); err != nil {
				return summary, err
			}
		}
		if o.pacer != nil {
			o.pacer.DateFinished()
		}
	}

	log.InfoContext(ctx, "task_completed",
		slog.Int("units", summary.Units),
		slog.Int("exported", summary.Exported),
		slog.Int("saved", summary.Saved),
		slog.Int("empty", summary.Empty),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped_dates", summary.SkippedDates),
		slog.Duration("duration", time.Since(started)))
	return summary, nil
}

// prepareSurface resolves a fresh context for a newly loaded page and
// re-confirms it after the settle delay, since the nested surface may
// still be mounting.
func (o *Orchestrator) prepareSurface(ctx context.Context) error {
	o.deps.Resolver.Reset()
	o.pc = nil

	pc, err := o.deps.Resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	if err := o.sleep(ctx, o.settle); err != nil {
		return err
	}
	pc, err = o.deps.Resolver.EnsureValid(ctx, pc)
	if err != nil {
		return err
	}
	o.pc = pc
	return nil
}

// discoverOptions reads the dropdown domain once. Discovery failure or an
// empty list yields the single empty option so every date still runs once.
func (o *Orchestrator) discoverOptions(ctx context.Context, task config.Task) ([]string, error) {
	if !task.HasDropdown {
		return []string{""}, nil
	}

	pc, err := o.deps.Resolver.EnsureValid(ctx, o.pc)
	if err != nil {
		return nil, err
	}
	o.pc = pc

	options, err := o.deps.Toolkit.Bind(pc.Surface).Filter.DropdownOptions(ctx, task.DropdownLabel)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.logger.WarnContext(ctx, "dropdown_discovery_failed",
			slog.String("task", task.Name),
			slog.String("label", task.DropdownLabel),
			slog.String("error", err.Error()))
	}
	if len(options) == 0 {
		o.logger.WarnContext(ctx, "dropdown_no_options",
			slog.String("task", task.Name),
			slog.String("label", task.DropdownLabel))
		return []string{""}, nil
	}

	o.logger.InfoContext(ctx, "dropdown_options_discovered",
		slog.String("task", task.Name),
		slog.Int("count", len(options)))
	return options, nil
}

// executeWithRetry runs the unit with exactly the configured number of
// attempts on persistent failure, re-validating the surface before each.
// It never returns an error: exhaustion is logged and reported in the
// result.
func (o *Orchestrator) executeWithRetry(ctx context.Context, unit CrawlUnit) UnitResult {
	started := time.Now()
	ctx, span := infrastructure.StartSpan(ctx, "crawl.unit",
		attribute.String("task", unit.Task.Name),
		attribute.String("date", unit.Date),
		attribute.String("option", unit.Option))
	defer span.End()

	result := UnitResult{Unit: unit, Outcome: crawlerrors.OutcomeFailed, Source: SourceNone}

	err := o.unit.Do(ctx, func(ctx context.Context, s retry.State) error {
		result.Attempts = s.Attempt

		pc, err := o.deps.Resolver.EnsureValid(ctx, o.pc)
		if err != nil {
			o.logAttemptFailure(ctx, unit, s, err)
			return err
		}
		o.pc = pc

		res, err := o.executeOnce(ctx, pc, unit)
		if err != nil {
			o.logAttemptFailure(ctx, unit, s, err)
			return err
		}
		res.Attempts = s.Attempt
		result = res
		return nil
	})

	if err != nil {
		result.Outcome = crawlerrors.OutcomeOf(err)
		if result.Outcome == crawlerrors.OutcomeOk {
			result.Outcome = crawlerrors.OutcomeFailed
		}
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if ctx.Err() == nil {
			o.logger.ErrorContext(ctx, "unit_retry_exhausted",
				slog.Any("unit", unit),
				slog.Int("attempts", result.Attempts),
				slog.String("outcome", result.Outcome.String()),
				slog.String("error", err.Error()))
		}
	}

	if o.recorder != nil {
		o.recorder.UnitFinished(ctx, unit.Task.Name, result.label(), result.Attempts, time.Since(started))
	}
	return result
}

func (o *Orchestrator) logAttemptFailure(ctx context.Context, unit CrawlUnit, s retry.State, err error) {
	if ctx.Err() != nil {
		return
	}
	o.logger.WarnContext(ctx, "unit_attempt_failed",
		slog.Any("unit", unit),
		slog.Int("attempt", s.Attempt),
		slog.Int("max_attempts", s.MaxAttempts),
		slog.String("outcome", crawlerrors.OutcomeOf(err).String()),
		slog.String("error", err.Error()))
}

// executeOnce is one attempt: filter, query, then export or extract.
func (o *Orchestrator) executeOnce(ctx context.Context, pc *frames.PageContext, unit CrawlUnit) (UnitResult, error) {
	task := unit.Task
	tools := o.deps.Toolkit.Bind(pc.Surface)
	result := UnitResult{Unit: unit, Outcome: crawlerrors.OutcomeOk, Source: SourceNone, Degraded: pc.Degraded}

	if err := tools.Filter.SetDate(ctx, unit.Date); err != nil {
		return result, err
	}
	if unit.Option != "" {
		if err := tools.Filter.SelectDropdownOption(ctx, task.DropdownLabel, unit.Option); err != nil {
			return result, err
		}
	}
	if err := tools.Filter.SubmitQuery(ctx); err != nil {
		return result, err
	}
	o.waitIdle(ctx, "query")

	if task.HasExport {
		path, err := tools.Exporter.TryExport(ctx, task.ExportType, task.Name, unit.Date, unit.Option)
		switch {
		case err != nil && ctx.Err() != nil:
			return result, ctx.Err()
		case err != nil:
			o.logger.WarnContext(ctx, "export_failed_falling_back",
				slog.Any("unit", unit),
				slog.String("error", err.Error()))
		case path != "":
			o.logger.InfoContext(ctx, "unit_exported", slog.Any("unit", unit), slog.String("path", path))
			result.Source = SourceExport
			result.Path = path
			return result, nil
		default:
			o.logger.InfoContext(ctx, "export_unavailable_falling_back", slog.Any("unit", unit))
		}
	}

	var ds Dataset
	if task.HasPagination {
		paged, err := o.extractPages(ctx, tools)
		if err != nil {
			return result, err
		}
		ds = paged
	} else {
		if err := tools.Paginator.ScrollToLoadAll(ctx); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			o.logger.DebugContext(ctx, "scroll_to_load_failed", slog.String("error", err.Error()))
		}
		t, err := tools.Extractor.ExtractTable(ctx)
		if err != nil {
			return result, err
		}
		ds.Append(t)
	}

	if ds.Len() == 0 {
		o.logger.WarnContext(ctx, "unit_extraction_empty",
			slog.Any("unit", unit),
			slog.String("kind", string(crawlerrors.KindExtractionEmpty)))
		return result, nil
	}

	process, err := o.postProcessors.For(task)
	if err != nil {
		return result, crawlerrors.Wrap(crawlerrors.KindConfig, "post_process", err, "unknown post-processor")
	}
	if process != nil {
		if ds, err = process(ds); err != nil {
			return result, fmt.Errorf("post-process %s: %w", task.Name, err)
		}
	}

	ds = Clean(ds, o.ordinalColumn)

	if o.updateColumn != "" {
		stamp, err := tools.Extractor.UpdateTimestamp(ctx)
		if err != nil {
			o.logger.DebugContext(ctx, "update_timestamp_unavailable", slog.String("error", err.Error()))
		}
		if stamp != "" {
			ds.AddColumn(o.updateColumn)
			for _, row := range ds.Rows {
				row[o.updateColumn] = stamp
			}
		}
	}

	path, err := o.deps.Storage.Save(ds, SaveKey{
		Task:     task.Name,
		Category: task.Category,
		Date:     unit.Date,
		Extra:    unit.Option,
	})
	if err != nil {
		return result, err
	}

	if o.recorder != nil {
		o.recorder.RowsSaved(ctx, task.Name, ds.Len())
	}
	o.logger.InfoContext(ctx, "unit_saved",
		slog.Any("unit", unit),
		slog.Int("rows", ds.Len()),
		slog.String("path", path))

	result.Source = SourceTable
	result.Path = path
	result.Rows = ds.Len()
	return result, nil
}

// extractPages reads every page, bounded by the reported total.
func (o *Orchestrator) extractPages(ctx context.Context, tools Tools) (Dataset, error) {
	var ds Dataset

	total, err := tools.Paginator.TotalPages(ctx)
	if err != nil || total < 1 {
		total = 1
	}

	for page := 1; ; page++ {
		o.logger.DebugContext(ctx, "page_extracting", slog.Int("page", page), slog.Int("total", total))

		t, err := tools.Extractor.ExtractTable(ctx)
		if err != nil {
			return ds, err
		}
		ds.Append(t)

		if page >= total {
			break
		}
		hasNext, err := tools.Paginator.HasNextPage(ctx)
		if err != nil {
			return ds, err
		}
		if !hasNext {
			break
		}
		moved, err := tools.Paginator.NextPage(ctx)
		if err != nil {
			return ds, err
		}
		if !moved {
			break
		}
	}

	o.logger.InfoContext(ctx, "pages_extracted", slog.Int("pages", total), slog.Int("rows", ds.Len()))
	return ds, nil
}

func (o *Orchestrator) waitIdle(ctx context.Context, after string) {
	if o.deps.Waiter == nil {
		return
	}
	if err := o.deps.Waiter.WaitIdle(ctx); err != nil && ctx.Err() == nil {
		o.logger.WarnContext(ctx, "network_idle_wait_expired",
			slog.String("after", after),
			slog.String("error", err.Error()))
	}
}
