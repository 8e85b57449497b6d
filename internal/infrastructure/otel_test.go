package infrastructure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"spotcrawl/internal/config"
)

func TestInitializeOTel_MetricsExposedOverPrometheus(t *testing.T) {
	logger := NewLogger(io.Discard, "error")
	providers, err := InitializeOTel(OTelConfigFrom(config.MetricsConfig{}), logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	assert.Nil(t, providers.TracerProvider, "tracing is off unless an exporter is chosen")
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.PrometheusHTTP)

	metrics, err := NewCrawlMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.UnitFinished(ctx, "日前备用总量", "saved", 2, 1500*time.Millisecond)
	metrics.SurfaceResolved(ctx, true)
	metrics.TaskFinished(ctx, "日前备用总量", nil, time.Minute)
	metrics.RowsSaved(ctx, "日前备用总量", 96)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "crawl_units")
	assert.Contains(t, body, "surface_resolutions")
	assert.Contains(t, body, `mode="degraded"`)
	assert.Contains(t, body, "crawl_rows_saved")
}

func TestInitializeOTel_StdoutTracing(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: "test",
		TraceExporter:  "stdout",
	}, NewLogger(io.Discard, "error"))
	require.NoError(t, err)
	require.NotNil(t, providers.TracerProvider)

	ctx, span := StartSpan(context.Background(), "crawl.unit", attribute.String("task", "x"))
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	_ = ctx

	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTel_UnsupportedExporter(t *testing.T) {
	_, err := InitializeOTel(&OTelConfig{TraceExporter: "jaeger"}, NewLogger(io.Discard, "error"))
	assert.Error(t, err)
}

func TestCrawlMetrics_NilIsNoop(t *testing.T) {
	var m *CrawlMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.UnitFinished(ctx, "t", "failed", 3, time.Second)
		m.SurfaceResolved(ctx, false)
		m.TaskFinished(ctx, "t", errors.New("nav"), time.Second)
		m.RowsSaved(ctx, "t", 1)
	})
}

func TestOTelProviders_ShutdownNil(t *testing.T) {
	var p *OTelProviders
	assert.NoError(t, p.Shutdown(context.Background()))
}
