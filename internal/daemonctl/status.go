package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"vmanga/internal/api"
	"vmanga/internal/config"
	"vmanga/internal/ipc"
	"vmanga/internal/preflight"
	"vmanga/internal/statestore"
)

// StatusLine is one labelled row of `vmanga status` output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// StatusSnapshot combines daemon status with local checks.
type StatusSnapshot struct {
	Daemon    api.DaemonStatus
	Completed int
	Checks    []StatusLine
}

// BuildStatusSnapshot collects daemon status and falls back to the state store
// for completion totals when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (StatusSnapshot, error) {
	if cfg == nil {
		return StatusSnapshot{}, errors.New("configuration not available")
	}
	var snap StatusSnapshot

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snap.Daemon = *resp
		}
		if stats, statsErr := client.Stats(1); statsErr == nil {
			snap.Completed = stats.Total
		}
	}

	if !snap.Daemon.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		snap.Daemon.StorePath = cfg.StorePath()
		snap.Daemon.LockFilePath = cfg.DaemonLockPath()
		if _, statErr := os.Stat(cfg.StorePath()); statErr == nil {
			if store, openErr := statestore.Open(cfg); openErr == nil {
				if stats, statsErr := store.Stats(queryCtx, time.Now(), 1); statsErr == nil {
					snap.Completed = stats.Total
				}
				_ = store.Close()
			}
		}
	}

	snap.Checks = BuildSystemChecks(ctx, cfg, snap.Daemon)
	return snap, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, status api.DaemonStatus) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	if status.Running {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
	} else {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: "Not running (run `vmanga start`)"})
	}

	for _, result := range preflight.RunAll(ctx, cfg) {
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{Label: result.Name, Severity: severity, Detail: result.Detail})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	}

	switch {
	case !cfg.License.Required:
		lines = append(lines, StatusLine{Label: "License", Severity: "info", Detail: "Not required"})
	case status.Running && status.License.Activated:
		lines = append(lines, StatusLine{Label: "License", Severity: "ok", Detail: "Activated"})
	case status.Running:
		lines = append(lines, StatusLine{Label: "License", Severity: "warn", Detail: "Not activated (run `vmanga license status`)"})
	default:
		lines = append(lines, StatusLine{Label: "License", Severity: "info", Detail: "Unknown (daemon not running)"})
	}

	if cfg.Watchdog.Enabled {
		lines = append(lines, StatusLine{Label: "Watchdog", Severity: "ok", Detail: fmt.Sprintf("Every %ds, threshold %ds", cfg.Watchdog.IntervalSeconds, cfg.Watchdog.StaleThresholdSeconds)})
	} else {
		lines = append(lines, StatusLine{Label: "Watchdog", Severity: "info", Detail: "Disabled"})
	}
	return lines
}
