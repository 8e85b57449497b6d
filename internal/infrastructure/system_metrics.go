package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// DefaultRuntimeInterval is how often process gauges are refreshed
const DefaultRuntimeInterval = 15 * time.Second

// RuntimeMetrics records process gauges next to the crawl metrics
type RuntimeMetrics struct {
	goroutines metric.Int64Gauge
	heapInUse  metric.Int64Gauge
	memorySys  metric.Int64Gauge
	gcCount    metric.Int64Gauge
	uptime     metric.Float64Gauge
	startedAt  time.Time
}

// RuntimeStats is one sample of the process gauges
type RuntimeStats struct {
	Goroutines int64
	HeapInUse  int64
	MemorySys  int64
	GCCount    int64
	Uptime     time.Duration
}

// NewRuntimeMetrics registers the process gauges on meter
func NewRuntimeMetrics(meter metric.Meter) (*RuntimeMetrics, error) {
	goroutines, err := meter.Int64Gauge(
		"process_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, err
	}

	heapInUse, err := meter.Int64Gauge(
		"process_heap_inuse_bytes",
		metric.WithDescription("Heap bytes in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	memorySys, err := meter.Int64Gauge(
		"process_memory_system_bytes",
		metric.WithDescription("Memory obtained from the OS in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	gcCount, err := meter.Int64Gauge(
		"process_gc_count",
		metric.WithDescription("Completed garbage collection cycles"),
	)
	if err != nil {
		return nil, err
	}

	uptime, err := meter.Float64Gauge(
		"process_uptime_seconds",
		metric.WithDescription("Seconds since the crawler started"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		goroutines: goroutines,
		heapInUse:  heapInUse,
		memorySys:  memorySys,
		gcCount:    gcCount,
		uptime:     uptime,
		startedAt:  time.Now(),
	}, nil
}

// Collect samples the runtime and records the gauges
func (m *RuntimeMetrics) Collect(ctx context.Context) RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := RuntimeStats{
		Goroutines: int64(runtime.NumGoroutine()),
		HeapInUse:  int64(memStats.HeapInuse),
		MemorySys:  int64(memStats.Sys),
		GCCount:    int64(memStats.NumGC),
		Uptime:     time.Since(m.startedAt),
	}

	m.goroutines.Record(ctx, stats.Goroutines)
	m.heapInUse.Record(ctx, stats.HeapInUse)
	m.memorySys.Record(ctx, stats.MemorySys)
	m.gcCount.Record(ctx, stats.GCCount)
	m.uptime.Record(ctx, stats.Uptime.Seconds())
	return stats
}

// Run collects immediately and then every interval until ctx is done
func (m *RuntimeMetrics) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRuntimeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			m.Collect(ctx)
		case <-ctx.Done():
			return
		}
	}
}
