package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"spotcrawl/internal/config"
)

const (
	ServiceName = "spotcrawl"
	MeterName   = "spotcrawl"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	TraceExporter  string // "stdout", "none"
	EnableMetrics  bool
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// OTelConfigFrom derives the OpenTelemetry setup from the metrics section
func OTelConfigFrom(cfg config.MetricsConfig) *OTelConfig {
	exporter := cfg.TraceExporter
	if exporter == "" {
		exporter = "none"
	}
	return &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: config.AppVersion,
		TraceExporter:  exporter,
		EnableMetrics:  true,
	}
}

// InitializeOTel sets the global tracer and meter providers
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = GetLogger()
	}
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	providers := &OTelProviders{Logger: logger}

	switch cfg.TraceExporter {
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		providers.TracerProvider = tp
		otel.SetTracerProvider(tp)
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	if cfg.EnableMetrics {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		providers.PrometheusHTTP = promhttp.Handler()
		otel.SetMeterProvider(mp)
	}

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}
	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// CrawlMetrics records crawl progress. A nil *CrawlMetrics is a no-op.
type CrawlMetrics struct {
	unitsTotal       metric.Int64Counter
	unitDuration     metric.Float64Histogram
	unitAttempts     metric.Int64Histogram
	resolutionsTotal metric.Int64Counter
	tasksTotal       metric.Int64Counter
	taskDuration     metric.Float64Histogram
	rowsSaved        metric.Int64Counter
}

// NewCrawlMetrics creates the crawl instruments on meter
func NewCrawlMetrics(meter metric.Meter) (*CrawlMetrics, error) {
	var (
		m   CrawlMetrics
		err error
	)
	if m.unitsTotal, err = meter.Int64Counter("crawl_units_total",
		metric.WithDescription("Crawl units processed, by result")); err != nil {
		return nil, err
	}
	if m.unitDuration, err = meter.Float64Histogram("crawl_unit_duration_seconds",
		metric.WithDescription("Wall time per crawl unit including retries"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.unitAttempts, err = meter.Int64Histogram("crawl_unit_attempts",
		metric.WithDescription("Attempts used per crawl unit")); err != nil {
		return nil, err
	}
	if m.resolutionsTotal, err = meter.Int64Counter("surface_resolutions_total",
		metric.WithDescription("Surface resolutions, by mode (nested or degraded)")); err != nil {
		return nil, err
	}
	if m.tasksTotal, err = meter.Int64Counter("crawl_tasks_total",
		metric.WithDescription("Tasks run, by status")); err != nil {
		return nil, err
	}
	if m.taskDuration, err = meter.Float64Histogram("crawl_task_duration_seconds",
		metric.WithDescription("Wall time per task"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.rowsSaved, err = meter.Int64Counter("crawl_rows_saved_total",
		metric.WithDescription("Rows written to CSV")); err != nil {
		return nil, err
	}
	return &m, nil
}

// UnitFinished records one crawl unit
func (m *CrawlMetrics) UnitFinished(ctx context.Context, task, result string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("task", task), attribute.String("result", result))
	m.unitsTotal.Add(ctx, 1, attrs)
	m.unitDuration.Record(ctx, d.Seconds(), attrs)
	m.unitAttempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.String("task", task)))
}

// SurfaceResolved records whether resolution found a nested surface
func (m *CrawlMetrics) SurfaceResolved(ctx context.Context, degraded bool) {
	if m == nil {
		return
	}
	mode := "nested"
	if degraded {
		mode = "degraded"
	}
	m.resolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// TaskFinished records a task run
func (m *CrawlMetrics) TaskFinished(ctx context.Context, task string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "failed"
	}
	attrs := metric.WithAttributes(attribute.String("task", task), attribute.String("status", status))
	m.tasksTotal.Add(ctx, 1, attrs)
	m.taskDuration.Record(ctx, d.Seconds(), attrs)
}

// RowsSaved records persisted rows
func (m *CrawlMetrics) RowsSaved(ctx context.Context, task string, rows int) {
	if m == nil {
		return
	}
	m.rowsSaved.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("task", task)))
}

// StartSpan starts a span on the global tracer. With no tracer provider
// configured the span is a no-op.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(MeterName).Start(ctx, name, trace.WithAttributes(attrs...))
}
