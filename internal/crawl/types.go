package crawl

import (
	"log/slog"
	"sort"
	"time"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
)

// Row maps a column to nil, string, int64 or float64.
type Row map[string]any

// Table is one extraction from the page: headers plus rows keyed by header.
type Table struct {
	Headers []string
	Rows    []Row
}

// Dataset accumulates rows for one unit. Columns keep first-seen order.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Append adds a table's rows, extending Columns with unseen headers.
func (d *Dataset) Append(t Table) {
	for _, h := range t.Headers {
		d.AddColumn(h)
	}
	d.Rows = append(d.Rows, t.Rows...)
}

// AddColumn appends col to Columns unless present.
func (d *Dataset) AddColumn(col string) {
	for _, c := range d.Columns {
		if c == col {
			return
		}
	}
	d.Columns = append(d.Columns, col)
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// CrawlUnit is one (date, option) pair of a task, the unit of retry.
// Option is empty when the task has no dropdown.
type CrawlUnit struct {
	Task   config.Task
	Date   string
	Option string
}

// LogValue groups the identifying fields for structured logs.
func (u CrawlUnit) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("task", u.Task.Name),
		slog.String("date", u.Date),
		slog.String("option", u.Option),
	)
}

// DateSet is the set of days already persisted for a task.
type DateSet map[string]struct{}

// NewDateSet builds a set from days.
func NewDateSet(days ...string) DateSet {
	s := make(DateSet, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s DateSet) Has(day string) bool {
	_, ok := s[day]
	return ok
}

// Add inserts a day.
func (s DateSet) Add(day string) { s[day] = struct{}{} }

// Sorted returns the days in ascending order.
func (s DateSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// SaveKey identifies where a dataset is persisted.
type SaveKey struct {
	Task     string
	Category string
	Date     string
	Extra    string
}

// Source says where a unit's data came from.
type Source string

const (
	SourceNone   Source = "none"
	SourceExport Source = "export"
	SourceTable  Source = "table"
)

// UnitResult is the explicit result of one unit after retry.
type UnitResult struct {
	Unit     CrawlUnit
	Outcome  crawlerrors.Outcome
	Source   Source
	Path     string
	Rows     int
	Attempts int
	Err      error
	// Degraded is set when the unit ran against the top-level document.
	Degraded bool
}

// Empty reports a successful unit that produced no data.
func (r UnitResult) Empty() bool {
	return r.Outcome == crawlerrors.OutcomeOk && r.Source == SourceNone
}

// label is the metric result name.
func (r UnitResult) label() string {
	switch {
	case r.Outcome != crawlerrors.OutcomeOk:
		return r.Outcome.String()
	case r.Empty():
		return "empty"
	default:
		return string(r.Source)
	}
}

// Summary tallies one task run.
type Summary struct {
	Task         string        `json:"task"`
	Dates        int           `json:"dates"`
	SkippedDates int           `json:"skipped_dates"`
	Units        int           `json:"units"`
	Exported     int           `json:"exported"`
	Saved        int           `json:"saved"`
	Empty        int           `json:"empty"`
	Failed       int           `json:"failed"`
	Rows         int           `json:"rows"`
	Degraded     bool          `json:"degraded"`
	Interrupted  bool          `json:"interrupted"`
	Duration     time.Duration `json:"duration"`
}

func (s *Summary) add(r UnitResult) {
	s.Units++
	switch {
	case r.Outcome != crawlerrors.OutcomeOk:
		s.Failed++
	case r.Source == SourceExport:
		s.Exported++
	case r.Source == SourceTable:
		s.Saved++
		s.Rows += r.Rows
	default:
		s.Empty++
	}
}
