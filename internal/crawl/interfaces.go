package crawl

import (
	"context"
	"time"

	"spotcrawl/internal/frames"
)

// Filter sets the query form. Missing controls are reported as
// ControlNotFound errors.
type Filter interface {
	SetDate(ctx context.Context, date string) error
	DropdownOptions(ctx context.Context, label string) ([]string, error)
	SelectDropdownOption(ctx context.Context, label, value string) error
	SetPageSize(ctx context.Context, n int) error
	SubmitQuery(ctx context.Context) error
}

// Exporter downloads the report as a file. An empty path with nil error
// means export is unavailable for this page.
type Exporter interface {
	TryExport(ctx context.Context, kind, taskName, date, extra string) (string, error)
}

// Extractor reads the rendered result table.
type Extractor interface {
	ExtractTable(ctx context.Context) (Table, error)
	// UpdateTimestamp returns the page's "last updated" text, "" when absent.
	UpdateTimestamp(ctx context.Context) (string, error)
}

// Paginator walks result pages.
type Paginator interface {
	TotalPages(ctx context.Context) (int, error)
	HasNextPage(ctx context.Context) (bool, error)
	NextPage(ctx context.Context) (bool, error)
	ScrollToLoadAll(ctx context.Context) error
}

// Tools are the strategies bound to one surface.
type Tools struct {
	Filter    Filter
	Exporter  Exporter
	Extractor Extractor
	Paginator Paginator
}

// Toolkit binds strategies to the current surface. It is called again after
// every re-resolution so no strategy holds a stale surface.
type Toolkit interface {
	Bind(s frames.Surface) Tools
}

// Storage persists datasets and reports what is already stored.
type Storage interface {
	ExistingDates(task, category string) (DateSet, error)
	Save(ds Dataset, key SaveKey) (string, error)
}

// Navigator opens a report page through the menu tree.
type Navigator interface {
	NavigateTo(ctx context.Context, category, leaf string, sub []string) error
}

// Resolver produces and re-validates the working surface.
type Resolver interface {
	Reset()
	Resolve(ctx context.Context) (*frames.PageContext, error)
	EnsureValid(ctx context.Context, pc *frames.PageContext) (*frames.PageContext, error)
}

// Waiter blocks until page network activity settles.
type Waiter interface {
	WaitIdle(ctx context.Context) error
}

// Pacer keeps a minimum gap between dates. DateFinished marks the end of a
// processed date; Wait blocks until the gap since then has elapsed.
type Pacer interface {
	DateFinished()
	Wait(ctx context.Context) error
}

// Recorder receives crawl metrics.
type Recorder interface {
	UnitFinished(ctx context.Context, task, result string, attempts int, d time.Duration)
	TaskFinished(ctx context.Context, task string, err error, d time.Duration)
	RowsSaved(ctx context.Context, task string, rows int)
}
