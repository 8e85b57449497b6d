package crawl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerrors "spotcrawl/internal/errors"
)

func TestDateRange_Days(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  []string
	}{
		{"single day", "2025-06-01", "2025-06-01", []string{"2025-06-01"}},
		{"three days", "2025-06-01", "2025-06-03", []string{"2025-06-01", "2025-06-02", "2025-06-03"}},
		{"month boundary", "2025-01-30", "2025-02-02", []string{"2025-01-30", "2025-01-31", "2025-02-01", "2025-02-02"}},
		{"leap day", "2024-02-28", "2024-03-01", []string{"2024-02-28", "2024-02-29", "2024-03-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr, err := ParseDateRange(tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dr.Days())
			assert.Equal(t, len(tt.want), dr.Len())
		})
	}
}

func TestDateRange_LengthAndOrder(t *testing.T) {
	start := time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)
	for n := 0; n < 120; n += 7 {
		end := start.AddDate(0, 0, n)
		dr, err := NewDateRange(start, end)
		require.NoError(t, err)

		days := dr.Days()
		require.Len(t, days, n+1)
		assert.Equal(t, "2024-12-15", days[0])
		assert.Equal(t, end.Format("2006-01-02"), days[len(days)-1])
		for i := 1; i < len(days); i++ {
			assert.Less(t, days[i-1], days[i])
		}
	}
}

func TestDateRange_TruncatesTimeOfDay(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	dr, err := NewDateRange(
		time.Date(2025, 6, 1, 23, 30, 0, 0, loc),
		time.Date(2025, 6, 2, 0, 10, 0, 0, loc))

	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-01", "2025-06-02"}, dr.Days())
	assert.Equal(t, "2025-06-01..2025-06-02", dr.String())
}

func TestDateRange_StartAfterEnd(t *testing.T) {
	_, err := ParseDateRange("2025-06-03", "2025-06-01")
	assert.True(t, errors.Is(err, crawlerrors.ErrConfig))

	_, err = ParseDateRange("2025/06/01", "2025-06-03")
	assert.True(t, errors.Is(err, crawlerrors.ErrConfig))
}
