package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"spotcrawl/internal/browser"
	"spotcrawl/internal/config"
	"spotcrawl/internal/controls"
	"spotcrawl/internal/crawl"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/frames"
	"spotcrawl/internal/infrastructure"
	"spotcrawl/internal/menu"
	"spotcrawl/internal/parser"
	"spotcrawl/internal/runner"
	"spotcrawl/internal/storage"
	"spotcrawl/internal/validation"
)

// Application wires configuration, observability, the browser session and
// the crawl runner together.
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.CrawlMetrics
	Runtime       *infrastructure.RuntimeMetrics
	Runner        *runner.Runner

	stdout io.Writer
	now    func() time.Time
}

// Options adjusts an Application at construction.
type Options struct {
	// MetricsAddr overrides metrics.address when non-empty.
	MetricsAddr string
	// Stdout receives tables; defaults to os.Stdout.
	Stdout io.Writer
}

// NewApplication initializes logging, directories and OpenTelemetry for cfg.
func NewApplication(cfg *config.Config, opts Options) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	paths, err := cfg.Paths()
	if err != nil {
		return nil, crawlerrors.ConfigError("failed to resolve paths", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, crawlerrors.StorageError("failed to create directories", err)
	}
	paths.LogPathResolution(logger)

	if opts.MetricsAddr != "" {
		cfg.Metrics.Address = opts.MetricsAddr
	}
	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Metrics), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.NewCrawlMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create crawl metrics: %w", err)
	}
	runtimeMetrics, err := infrastructure.NewRuntimeMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime metrics: %w", err)
	}

	a := newApplication(cfg, paths, logger, opts.Stdout)
	a.OTelProviders = otelProviders
	a.Metrics = metrics
	a.Runtime = runtimeMetrics
	return a, nil
}

func newApplication(cfg *config.Config, paths *config.Paths, logger *slog.Logger, stdout io.Writer) *Application {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Application{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
		Runner: runner.New(logger),
		stdout: stdout,
		now:    time.Now,
	}
}

// SelectTasks resolves a comma separated --task value. Empty selects every
// enabled task; named tasks run even when disabled. Unknown names are
// logged and ignored, and an empty selection is a Config error.
func (a *Application) SelectTasks(names string) (config.Tasks, error) {
	list := config.SplitNames(names)
	if len(list) == 0 {
		enabled := a.Config.Tasks.Enabled()
		if len(enabled) == 0 {
			return nil, crawlerrors.ConfigError("no enabled tasks", nil)
		}
		return enabled, nil
	}

	selected, unknown := a.Config.Tasks.Select(list)
	for _, name := range unknown {
		a.Logger.Warn("unknown task ignored", slog.String("task", name))
	}
	if len(selected) == 0 {
		return nil, crawlerrors.ConfigError(fmt.Sprintf("no configured task matches %q", names), nil)
	}
	return selected, nil
}

// DateRange resolves the crawl window from overrides and configuration.
func (a *Application) DateRange(start, end string) (crawl.DateRange, error) {
	from, to, err := a.Config.Window(start, end, a.now())
	if err != nil {
		return crawl.DateRange{}, err
	}
	return crawl.NewDateRange(from, to)
}

// Crawl opens the browser, loads the portal and runs tasks over dr. The
// outcome is kept for /healthz.
func (a *Application) Crawl(ctx context.Context, tasks config.Tasks, dr crawl.DateRange) (report *runner.Report, err error) {
	defer func() { a.recordRun(ctx, err) }()

	session, err := browser.Open(ctx, a.Config.Browser, a.Logger)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	if err := session.Navigate(ctx, a.Config.TargetURL); err != nil {
		return nil, err
	}

	w := a.wire(session)
	if err := w.navigator.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.Logger.WarnContext(ctx, "continuing without a rendered menu", slog.String("error", err.Error()))
	}

	report, err = a.Runner.RunTasks(ctx, tasks, dr, w.factory)
	if report != nil {
		RenderReport(a.stdout, report)
	}
	return report, err
}

// recordRun stores the error that ended a crawl. Cancellation is a shutdown,
// not a failure, and leaves the previous outcome in place.
func (a *Application) recordRun(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	a.Runner.Status().SetRunError(err)
}

// Schedule crawls now and then every schedule.interval_hours. Each run
// crawls from start up to the day it begins.
func (a *Application) Schedule(ctx context.Context, tasks config.Tasks, start string) error {
	expr := runner.Every(a.Config.Schedule.IntervalHours)
	return a.Runner.Schedule(ctx, expr, func(ctx context.Context) {
		dr, err := a.DateRange(start, a.now().Format(config.DateLayout))
		if err != nil {
			a.Logger.ErrorContext(ctx, "scheduled run skipped", slog.String("error", err.Error()))
			return
		}
		if _, err := a.Crawl(ctx, tasks, dr); err != nil {
			a.Logger.ErrorContext(ctx, "scheduled run failed",
				slog.String("kind", string(crawlerrors.KindOf(err))),
				slog.String("error", err.Error()))
		}
	})
}

// Validate checks stored outputs and prints the report. It fails when any
// file has issues.
func (a *Application) Validate(ctx context.Context) error {
	v := validation.NewValidator(a.Paths.OutputDir, a.Paths.ExportsDir, a.Logger)
	report, err := v.Run(ctx)
	if err != nil {
		return err
	}
	report.Render(a.stdout)
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d files failed validation", n, len(report.Files))
	}
	return nil
}

// Serve runs fn while the status server, when configured, serves /healthz,
// /status and /metrics and process gauges are sampled. Both stop once fn
// returns.
func (a *Application) Serve(ctx context.Context, fn func(ctx context.Context) error) error {
	addr := a.Config.Metrics.Address
	if addr == "" {
		return fn(ctx)
	}

	var metricsHandler http.Handler
	if a.OTelProviders != nil {
		metricsHandler = a.OTelProviders.PrometheusHTTP
	}
	srv := infrastructure.NewStatusServer(addr, metricsHandler, a.Runner.Status().Value, a.Runner.Status().Health, a.Logger)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	g, gctx := errgroup.WithContext(serverCtx)
	g.Go(func() error { return srv.Run(gctx) })
	if a.Runtime != nil {
		g.Go(func() error {
			a.Runtime.Run(gctx, infrastructure.DefaultRuntimeInterval)
			return nil
		})
	}
	g.Go(func() error {
		defer stopServer()
		return fn(ctx)
	})
	return g.Wait()
}

// Shutdown flushes telemetry and closes the log file.
func (a *Application) Shutdown(ctx context.Context) {
	if err := a.OTelProviders.Shutdown(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing log file", slog.String("error", err.Error()))
	}
}

// wiring holds the per-session collaborators shared by every task.
type wiring struct {
	navigator *menu.Navigator
	factory   runner.Factory
}

func (a *Application) wire(session *browser.Session) wiring {
	cfg := a.Config
	resolver := frames.NewResolver(session.Host(),
		frames.WithLogger(a.Logger),
		frames.WithStrict(cfg.Browser.StrictSurface),
		frames.WithRecorder(a.Metrics))
	navigator := menu.NewNavigator(session.Tree(cfg.Menu.TreeSelector),
		menu.WithLogger(a.Logger),
		menu.WithRootLabel(cfg.Menu.RootLabel),
		menu.WithArtifacts(session.Artifacts(a.Paths.DebugDir)))
	store := storage.NewStore(a.Paths.OutputDir, a.Paths.ExportsDir, a.Logger)
	toolkit := controls.NewToolkit(session, store, controls.TimingFrom(cfg.Request), a.Logger)

	return wiring{
		navigator: navigator,
		factory: a.factory(crawl.Deps{
			Navigator: navigator,
			Resolver:  resolver,
			Storage:   store,
			Waiter:    session,
		}, toolkit),
	}
}

// factory builds one orchestrator per task; exports are filed under the
// task's category.
func (a *Application) factory(deps crawl.Deps, toolkit *controls.Toolkit) runner.Factory {
	cfg := a.Config
	return func(task config.Task, stop func() bool) runner.TaskRunner {
		d := deps
		d.Toolkit = toolkit.ForCategory(task.Category)
		return crawl.NewOrchestrator(d,
			crawl.WithLogger(a.Logger),
			crawl.WithRetry(cfg.Request.RetryTimes, cfg.Request.RetryInterval),
			crawl.WithPacer(newDatePacer(cfg.Request.DateInterval)),
			crawl.WithRecorder(a.Metrics),
			crawl.WithPostProcessors(postProcessors()),
			crawl.WithColumns(cfg.Data.OrdinalColumn, cfg.Data.UpdateTimeColumn),
			crawl.WithStop(stop))
	}
}

func postProcessors() crawl.Registry {
	return crawl.Registry{
		config.PostProcessClearingSummary: parser.ClearingSummary,
	}
}

// datePacer holds date_interval between the end of one date and the start
// of the next. Each finished date gets a fresh limiter whose only token is
// already spent, so the next Wait lasts a full interval however long the
// date itself took.
type datePacer struct {
	interval time.Duration
	limiter  *rate.Limiter
}

func newDatePacer(interval time.Duration) *datePacer {
	return &datePacer{interval: interval, limiter: rate.NewLimiter(rate.Inf, 1)}
}

// DateFinished starts the pause.
func (p *datePacer) DateFinished() {
	if p.interval <= 0 {
		return
	}
	l := rate.NewLimiter(rate.Every(p.interval), 1)
	l.Allow()
	p.limiter = l
}

// Wait blocks until the pause since the last finished date is over.
func (p *datePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
