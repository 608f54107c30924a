package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// archiveLayout names rotated logs: vmanga-20260102T150405Z.log.
const archiveLayout = "20060102T150405Z"

// RotateLog moves an existing non-empty log at path aside as
// <name>-<timestamp><ext> so the new run starts a fresh file. It returns the
// archive path, or "" when there was nothing to rotate.
func RotateLog(path string, now time.Time) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat log: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return "", nil
	}
	ext := filepath.Ext(path)
	archive := strings.TrimSuffix(path, ext) + "-" + now.UTC().Format(archiveLayout) + ext
	if err := os.Rename(path, archive); err != nil {
		return "", fmt.Errorf("rotate log: %w", err)
	}
	return archive, nil
}

// ArchivePattern is the glob matching archives produced by RotateLog for path.
func ArchivePattern(path string) string {
	ext := filepath.Ext(path)
	return filepath.Base(strings.TrimSuffix(path, ext)) + "-*" + ext
}

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching targets whose modification time is
// more than retentionDays before now. retentionDays <= 0 disables pruning. It
// returns the number of files removed.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, now time.Time, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0

	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		pattern := strings.TrimSpace(target.Pattern)
		if dir == "" || pattern == "" {
			continue
		}
		skip := make(map[string]bool, len(target.Exclude))
		for _, p := range target.Exclude {
			skip[filepath.Clean(p)] = true
		}
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if skip[filepath.Clean(path)] {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		logger.Info("old logs pruned", Int("count", removed), String(FieldEventType, "log_pruned"))
	}
	return removed
}
