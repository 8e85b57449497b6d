package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawlError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CrawlError
		expected string
	}{
		{
			name:     "with op",
			err:      New(KindControlNotFound, "set_date", "no date input"),
			expected: "[CONTROL_NOT_FOUND] set_date: no date input",
		},
		{
			name:     "without op",
			err:      &CrawlError{Kind: KindConfig, Message: "missing tasks"},
			expected: "[CONFIG]: missing tasks",
		},
		{
			name:     "with cause",
			err:      Wrap(KindTimeout, "export", errors.New("download stalled"), "export did not finish"),
			expected: "[TIMEOUT] export: export did not finish: download stalled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCrawlError_IsMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("attempt 2: %w", ControlNotFound("submit_query", "query button"))

	assert.True(t, errors.Is(err, ErrControlNotFound))
	assert.False(t, errors.Is(err, ErrContextStale))

	var ce *CrawlError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "query button", ce.Context["control"])
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(KindStorage, "save", nil, "ignored"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"stale", ContextStale("probe", nil), true},
		{"control not found", ControlNotFound("op", "x"), true},
		{"timeout", Timeout("op", "download"), true},
		{"navigation", NavigationFailure("expand", "Menu", "still collapsed"), false},
		{"config", ConfigError("bad", nil), false},
		{"foreign error", errors.New("websocket closed"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeOk},
		{ControlNotFound("op", "x"), OutcomeNotFound},
		{NavigationFailure("op", "leaf", "missing"), OutcomeNotFound},
		{ContextStale("op", nil), OutcomeStale},
		{Timeout("op", "idle"), OutcomeTimeout},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), OutcomeTimeout},
		{errors.New("boom"), OutcomeFailed},
		{Wrap(KindRetryExhausted, "retry", ContextStale("probe", nil), "gave up"), OutcomeStale},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", i, tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeOf(tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindConfig, KindOf(fmt.Errorf("load: %w", ConfigError("bad", nil))))
}
