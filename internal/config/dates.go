package config

import (
	"fmt"
	"time"

	crawlerrors "spotcrawl/internal/errors"
)

// DateLayout is the calendar-day format used in flags, files and filters.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD day in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Window returns the crawl window. Overrides win over the configured range;
// a missing end means the day of now. start after end is a Config error.
func (c *Config) Window(startOverride, endOverride string, now time.Time) (time.Time, time.Time, error) {
	startStr := firstNonEmpty(startOverride, c.DateRange.Start, Default().DateRange.Start)
	endStr := firstNonEmpty(endOverride, c.DateRange.End, now.Format(DateLayout))

	start, err := ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, crawlerrors.ConfigError(fmt.Sprintf("invalid start date %q", startStr), err)
	}
	end, err := ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, crawlerrors.ConfigError(fmt.Sprintf("invalid end date %q", endStr), err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, crawlerrors.ConfigError(
			fmt.Sprintf("start date %s is after end date %s", startStr, endStr), nil)
	}
	return start, end, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
