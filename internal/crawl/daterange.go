package crawl

import (
	"fmt"
	"time"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
)

// DateRange is an inclusive sequence of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to the day. start after end is a Config
// error.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s := day(start)
	e := day(end)
	if s.After(e) {
		return DateRange{}, crawlerrors.ConfigError(
			fmt.Sprintf("start date %s is after end date %s", s.Format(config.DateLayout), e.Format(config.DateLayout)), nil)
	}
	return DateRange{Start: s, End: e}, nil
}

// ParseDateRange parses YYYY-MM-DD bounds.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := config.ParseDate(start)
	if err != nil {
		return DateRange{}, crawlerrors.ConfigError(fmt.Sprintf("invalid start date %q", start), err)
	}
	e, err := config.ParseDate(end)
	if err != nil {
		return DateRange{}, crawlerrors.ConfigError(fmt.Sprintf("invalid end date %q", end), err)
	}
	return NewDateRange(s, e)
}

// Days lists every day from Start to End inclusive, ascending.
func (r DateRange) Days() []string {
	var out []string
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(config.DateLayout))
	}
	return out
}

// Len is the number of days in the range.
func (r DateRange) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(config.DateLayout) + ".." + r.End.Format(config.DateLayout)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
