package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vmanga/internal/config"
	"vmanga/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "debug"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Debug("debug message", logging.Sheet("/tmp/jobs.xlsx"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "debug message") {
		t.Fatalf("expected message in log file, got %q", content)
	}
	if !strings.Contains(string(content), "[jobs.xlsx]") {
		t.Fatalf("expected sheet base name in console output, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerShape(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"), logging.JobID("job_1"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode json record: %v (%q)", err, content)
	}
	if record["msg"] != "json message" || record["level"] != "info" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record[logging.FieldJobID] != "job_1" {
		t.Fatalf("expected job id field, got %v", record)
	}
	if _, err := time.Parse(time.RFC3339, record["ts"].(string)); err != nil {
		t.Fatalf("expected RFC3339 ts, got %v", record["ts"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := logging.WithRequestID(context.Background(), "req-xyz")
	logging.WithContext(ctx, base).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("expected correlation id, got %v", record)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "cycle failed", "watch_cycle_failed", logging.String(logging.FieldImpact, "snapshot stale"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "watch_cycle_failed" {
		t.Fatalf("expected event type, got %v", record)
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error hint, got %v", record)
	}
	if record[logging.FieldImpact] != "snapshot stale" {
		t.Fatalf("expected caller impact preserved, got %v", record)
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "vmanga.log")
	oldPath := filepath.Join(dir, "vmanga-20260101T000000Z.log")
	freshPath := filepath.Join(dir, "vmanga-20260110T000000Z.log")
	for _, p := range []string{oldPath, current, freshPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	now := time.Now()
	past := now.AddDate(0, 0, -10)
	for _, p := range []string{oldPath, current} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, now,
		logging.RetentionTarget{Dir: dir, Pattern: logging.ArchivePattern(current), Exclude: []string{current}})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{current, freshPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vmanga-20200101T000000Z.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().AddDate(-1, 0, 0)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if n := logging.CleanupOldLogs(nil, 0, time.Now(), logging.RetentionTarget{Dir: dir, Pattern: "*.log"}); n != 0 {
		t.Fatalf("expected pruning disabled, removed %d", n)
	}
}

func TestRotateLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vmanga.log")

	if archive, err := logging.RotateLog(path, time.Now()); err != nil || archive != "" {
		t.Fatalf("expected no rotation for a missing log, got %q %v", archive, err)
	}

	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	archive, err := logging.RotateLog(path, at)
	if err != nil {
		t.Fatalf("RotateLog: %v", err)
	}
	if filepath.Base(archive) != "vmanga-20261018T093000Z.log" {
		t.Fatalf("unexpected archive name %q", archive)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected current log moved, stat err=%v", err)
	}
	if ok, _ := filepath.Match(logging.ArchivePattern(path), filepath.Base(archive)); !ok {
		t.Fatal("archive does not match ArchivePattern")
	}
}
