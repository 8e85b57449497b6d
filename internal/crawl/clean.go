package crawl

import (
	"strconv"
	"strings"
)

// Clean trims strings, converts numeric-looking values and maps blanks to
// nil. The ordinal column is trimmed only. Non-string values pass through.
func Clean(ds Dataset, ordinal string) Dataset {
	out := Dataset{Columns: ds.Columns, Rows: make([]Row, 0, len(ds.Rows))}
	for _, row := range ds.Rows {
		clean := make(Row, len(row))
		for k, v := range row {
			s, ok := v.(string)
			if !ok {
				clean[k] = v
				continue
			}
			s = strings.TrimSpace(s)
			if k == ordinal {
				clean[k] = s
				continue
			}
			clean[k] = coerce(s)
		}
		out.Rows = append(out.Rows, clean)
	}
	return out
}

// coerce converts s to int64 or float64 when it looks numeric: digits with
// at most one '.' and one '-'. Values that look numeric but do not parse
// stay strings.
func coerce(s string) any {
	if s == "" {
		return nil
	}
	if !numeric(s) {
		return s
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func numeric(s string) bool {
	s = strings.Replace(s, ".", "", 1)
	s = strings.Replace(s, "-", "", 1)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
