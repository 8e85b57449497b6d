package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"spotcrawl/internal/config"
)

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "logs", "test.log")

	cfg := config.LoggingConfig{
		Level:    "info",
		Output:   "file",
		FilePath: logFile,
	}

	logger, err := InitializeLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}
	if logger == nil {
		t.Fatal("Logger is nil")
	}

	ctx := WithRunID(WithTraceID(context.Background(), "trace-1"), "run-1")
	logger.InfoContext(ctx, "unit_completed", slog.String("task", "日前备用总量"))
	logger.Debug("suppressed at info level")

	CloseLogFile()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(content), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %s", len(lines), content)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "unit_completed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["trace_id"] != "trace-1" {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v", entry["run_id"])
	}
	if entry["task"] != "日前备用总量" {
		t.Errorf("task = %v", entry["task"])
	}
	if _, ok := entry["source"]; !ok {
		t.Error("expected source attribute")
	}
}

func TestInitializeLogger_OnlyOnce(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	first, err := InitializeLogger(config.LoggingConfig{Level: "info", Output: "console"})
	if err != nil {
		t.Fatal(err)
	}
	second, _ := InitializeLogger(config.LoggingConfig{Level: "debug", Output: "console"})
	if first != second {
		t.Error("InitializeLogger should return the same instance")
	}
	if GetLogger() != first {
		t.Error("GetLogger should return the initialized logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewLogger(&buf, "debug"), "frames")
	logger.DebugContext(WithTraceID(context.Background(), "abc"), "surface_resolved")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["component"] != "frames" || entry["trace_id"] != "abc" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNewRunContext(t *testing.T) {
	ctx, runID := NewRunContext(context.Background())
	if runID == "" || GetRunID(ctx) != runID {
		t.Errorf("run id not stored: %q vs %q", runID, GetRunID(ctx))
	}
	if GetTraceID(ctx) == "" {
		t.Error("expected a trace id")
	}

	ctx2 := EnsureTraceID(WithTraceID(context.Background(), "keep"))
	if GetTraceID(ctx2) != "keep" {
		t.Error("EnsureTraceID must not replace an existing id")
	}
}
