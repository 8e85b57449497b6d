package controls

import (
	"context"
	"log/slog"
	"time"

	"spotcrawl/internal/config"
	"spotcrawl/internal/crawl"
	"spotcrawl/internal/frames"
	"spotcrawl/internal/infrastructure"
	"spotcrawl/internal/retry"
)

const tablePoll = 500 * time.Millisecond

// Timing holds the pauses the portal needs between interactions.
type Timing struct {
	QueryInterval time.Duration
	PageInterval  time.Duration
	ScrollPause   time.Duration
	TableWait     time.Duration
	ExportTimeout time.Duration
	Sleep         retry.SleepFunc
}

// TimingFrom reads the request section of the configuration.
func TimingFrom(cfg config.RequestConfig) Timing {
	return Timing{
		QueryInterval: cfg.QueryInterval,
		PageInterval:  cfg.PageInterval,
		ScrollPause:   time.Second,
		TableWait:     10 * time.Second,
		ExportTimeout: cfg.ExportTimeout,
		Sleep:         retry.Sleep,
	}
}

func (t Timing) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if t.Sleep == nil {
		return retry.Sleep(ctx, d)
	}
	return t.Sleep(ctx, d)
}

// Toolkit binds the control strategies to whichever surface is current.
type Toolkit struct {
	downloader Downloader
	namer      ExportNamer
	category   string
	timing     Timing
	logger     *slog.Logger
}

var _ crawl.Toolkit = (*Toolkit)(nil)

// NewToolkit creates a toolkit. Exports are fetched through downloader and
// stored under the names namer hands out.
func NewToolkit(downloader Downloader, namer ExportNamer, timing Timing, logger *slog.Logger) *Toolkit {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Toolkit{
		downloader: downloader,
		namer:      namer,
		timing:     timing,
		logger:     infrastructure.WithComponent(logger, "controls"),
	}
}

// ForCategory returns a copy that files exports under category.
func (k *Toolkit) ForCategory(category string) *Toolkit {
	c := *k
	c.category = category
	return &c
}

// Bind returns strategies for s. Nothing is cached between calls.
func (k *Toolkit) Bind(s frames.Surface) crawl.Tools {
	logger := k.logger.With(slog.String("surface", s.ID()))
	return crawl.Tools{
		Filter:    &Filter{surface: s, logger: logger, timing: k.timing},
		Exporter:  &Exporter{surface: s, downloader: k.downloader, namer: k.namer, category: k.category, timeout: k.timing.ExportTimeout, logger: logger},
		Extractor: &Extractor{surface: s, logger: logger, timing: k.timing},
		Paginator: &Paginator{surface: s, logger: logger, timing: k.timing},
	}
}
