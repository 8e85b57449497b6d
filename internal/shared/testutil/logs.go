// Package testutil provides test helpers shared by the crawler packages.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogRecord is one captured log call with its attributes flattened,
// including those bound with Logger.With.
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

type logStore struct {
	mu      sync.Mutex
	records []LogRecord
}

// LogCapture is a slog.Handler that keeps every record in memory
type LogCapture struct {
	store  *logStore
	bound  []slog.Attr
	prefix string
	t      *testing.T
}

// NewTestLogger returns a logger that captures into the returned handler.
// Records are echoed to t.Log when t is not nil.
func NewTestLogger(t *testing.T) (*slog.Logger, *LogCapture) {
	c := &LogCapture{store: &logStore{}, t: t}
	return slog.New(c), c
}

// Enabled implements slog.Handler
func (c *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler
func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(c.bound)+r.NumAttrs())
	for _, a := range c.bound {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[c.prefix+a.Key] = a.Value.Any()
		return true
	})

	c.store.mu.Lock()
	c.store.records = append(c.store.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	c.store.mu.Unlock()

	if c.t != nil {
		c.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

// WithAttrs implements slog.Handler
func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *c
	next.bound = append(append([]slog.Attr{}, c.bound...), prefixed(c.prefix, attrs)...)
	return &next
}

// WithGroup implements slog.Handler; group keys are joined with dots.
func (c *LogCapture) WithGroup(name string) slog.Handler {
	next := *c
	next.prefix = c.prefix + name + "."
	return &next
}

func prefixed(prefix string, attrs []slog.Attr) []slog.Attr {
	if prefix == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}

// Records returns a copy of everything captured so far
func (c *LogCapture) Records() []LogRecord {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return append([]LogRecord(nil), c.store.records...)
}

// Find returns records at level whose message contains msg
func (c *LogCapture) Find(level slog.Level, msg string) []LogRecord {
	var out []LogRecord
	for _, r := range c.Records() {
		if r.Level == level && strings.Contains(r.Message, msg) {
			out = append(out, r)
		}
	}
	return out
}

// AssertLogged fails t unless a record at level contains msg. It returns
// the first match so callers can check attributes.
func AssertLogged(t *testing.T, c *LogCapture, level slog.Level, msg string) LogRecord {
	t.Helper()
	found := c.Find(level, msg)
	if len(found) == 0 {
		t.Errorf("no %s log containing %q", level, msg)
		for _, r := range c.Records() {
			t.Logf("  [%s] %s %v", r.Level, r.Message, r.Attrs)
		}
		return LogRecord{}
	}
	return found[0]
}

// AssertNoErrors fails t if anything was logged at error level
func AssertNoErrors(t *testing.T, c *LogCapture) {
	t.Helper()
	for _, r := range c.Records() {
		if r.Level >= slog.LevelError {
			t.Errorf("unexpected error log: %s %v", r.Message, r.Attrs)
		}
	}
}
