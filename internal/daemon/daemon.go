package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vmanga/internal/api"
	"vmanga/internal/config"
	"vmanga/internal/engine"
	"vmanga/internal/license"
	"vmanga/internal/logging"
	"vmanga/internal/notifications"
	"vmanga/internal/preflight"
	"vmanga/internal/registry"
	"vmanga/internal/statestore"
)

// Daemon coordinates the engine and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *statestore.Store
	engine   *engine.Engine
	license  *license.Manager
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	api       *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	StartedAt       time.Time
	Files           int
	ActivePath      string
	StorePath       string
	LockFilePath    string
	APIBind         string
	WatchdogEnabled bool
	License         license.Status
}

// API converts the status to its transport form.
func (s Status) API() api.DaemonStatus {
	out := api.DaemonStatus{
		Running:         s.Running,
		PID:             s.PID,
		Files:           s.Files,
		ActivePath:      s.ActivePath,
		StorePath:       s.StorePath,
		LockFilePath:    s.LockFilePath,
		APIBind:         s.APIBind,
		WatchdogEnabled: s.WatchdogEnabled,
		License:         api.FromLicenseStatus(s.License),
	}
	if !s.StartedAt.IsZero() {
		out.StartedAt = s.StartedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// New constructs a daemon with initialized dependencies. A nil notifier
// disables notifications.
func New(cfg *config.Config, store *statestore.Store, eng *engine.Engine, lic *license.Manager, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || eng == nil || lic == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, engine, license, and logger")
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		engine:   eng,
		license:  lic,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, logging.LogFileName),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, restores tracked spreadsheets, and starts
// the watchdog and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("ensure state directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vmanga daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	for _, failed := range preflight.Failed(preflight.RunAll(runCtx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or setting named in the detail"),
			logging.String(logging.FieldImpact, "related features may not work"),
		)
	}

	restored, err := d.engine.Restore(runCtx)
	if err != nil {
		d.logger.Warn("restore tracked spreadsheets failed", logging.Error(err))
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := srv.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	if d.cfg.Watchdog.Enabled {
		go d.engine.RunWatchdog(runCtx)
	}

	d.mu.Lock()
	d.ctx, d.cancel = runCtx, cancel
	d.startedAt = time.Now()
	d.api = srv
	d.mu.Unlock()
	d.running.Store(true)

	if err := d.notifier.Publish(runCtx, notifications.EventDaemonStarted, notifications.Payload{"files": restored}); err != nil {
		d.logger.Debug("startup notification not sent", logging.Error(err))
	}
	d.logger.Info("vmanga daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("restored", restored),
		logging.Bool("watchdog", d.cfg.Watchdog.Enabled),
	)
	return nil
}

// Stop stops background loops and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}

	d.mu.Lock()
	cancel, srv := d.cancel, d.api
	d.cancel, d.ctx, d.api = nil, nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	srv.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("vmanga daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.engine.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr returns the bound HTTP address, or "" when the API is disabled.
func (d *Daemon) APIAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(context.Context) Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()
	return Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		StartedAt:       startedAt,
		Files:           len(d.engine.Files()),
		ActivePath:      d.engine.ActivePath(),
		StorePath:       d.store.Path(),
		LockFilePath:    d.lockPath,
		APIBind:         strings.TrimSpace(d.cfg.Paths.APIBind),
		WatchdogEnabled: d.cfg.Watchdog.Enabled,
		License:         d.license.Status(),
	}
}

// Files lists open spreadsheets.
func (d *Daemon) Files() api.FileListResponse {
	return api.FromTrackedFiles(d.engine.Files(), d.engine.ActivePath())
}

// Snapshot returns one spreadsheet with its jobs; empty path means active.
func (d *Daemon) Snapshot(path string) (api.FileSnapshot, error) {
	tf, err := d.engine.File(path)
	if err != nil {
		return api.FileSnapshot{}, err
	}
	return api.FromTrackedFile(tf, d.engine.ActivePath(), true), nil
}

// OpenFile starts tracking a spreadsheet.
func (d *Daemon) OpenFile(ctx context.Context, path string) (api.FileSnapshot, error) {
	if err := d.license.Check(); err != nil {
		return api.FileSnapshot{}, err
	}
	tf, err := d.engine.OpenFile(ctx, path)
	if err != nil {
		return api.FileSnapshot{}, err
	}
	return api.FromTrackedFile(tf, d.engine.ActivePath(), true), nil
}

// CloseFile stops tracking a spreadsheet.
func (d *Daemon) CloseFile(ctx context.Context, path string) error {
	return d.engine.CloseFile(ctx, path)
}

// Activate selects an open spreadsheet.
func (d *Daemon) Activate(ctx context.Context, path string) error {
	return d.engine.Activate(ctx, path)
}

// Rescan forces a refresh cycle.
func (d *Daemon) Rescan(ctx context.Context, path string) error {
	return d.engine.Rescan(ctx, path)
}

// Retry clears one job's status.
func (d *Daemon) Retry(ctx context.Context, path, jobID string) error {
	if err := d.license.Check(); err != nil {
		return err
	}
	return d.engine.Retry(ctx, path, jobID)
}

// ResetIncomplete clears every job that is not Completed.
func (d *Daemon) ResetIncomplete(ctx context.Context, path string) (int, error) {
	if err := d.license.Check(); err != nil {
		return 0, err
	}
	return d.engine.ResetIncomplete(ctx, path)
}

// DeleteResult removes a job's result file and clears its status.
func (d *Daemon) DeleteResult(ctx context.Context, path, jobID, resultPath string) error {
	if err := d.license.Check(); err != nil {
		return err
	}
	return d.engine.DeleteResult(ctx, path, jobID, resultPath)
}

// Link records a result file for a job.
func (d *Daemon) Link(ctx context.Context, path, jobID, file string) error {
	if err := d.license.Check(); err != nil {
		return err
	}
	return d.engine.Link(ctx, path, jobID, file)
}

// Sweep runs one watchdog pass.
func (d *Daemon) Sweep(ctx context.Context) (api.SweepResponse, error) {
	if err := d.license.Check(); err != nil {
		return api.SweepResponse{}, err
	}
	return api.FromSweep(d.engine.Sweep(ctx)), nil
}

// Stats returns completion statistics for the last days.
func (d *Daemon) Stats(ctx context.Context, days int) (api.StatsResponse, error) {
	st, err := d.engine.Stats(ctx, days)
	if err != nil {
		return api.StatsResponse{}, err
	}
	return api.FromStats(st), nil
}

// ClearStats drops recorded completions for one day, or all of them when
// day is empty.
func (d *Daemon) ClearStats(ctx context.Context, day string) (int, error) {
	removed, err := d.engine.ClearStats(ctx, day)
	if err != nil {
		return 0, err
	}
	d.logger.Info("completion stats cleared",
		logging.String("day", day),
		logging.Int("removed", removed),
		logging.String(logging.FieldEventType, "stats_cleared"),
	)
	return removed, nil
}

// LicenseStatus reports the activation gate.
func (d *Daemon) LicenseStatus() api.LicenseStatus {
	return api.FromLicenseStatus(d.license.Status())
}

// ActivateLicense stores a license key for this machine.
func (d *Daemon) ActivateLicense(key string) (api.LicenseStatus, error) {
	if err := d.license.Activate(key); err != nil {
		return api.LicenseStatus{}, err
	}
	d.logger.Info("license activated", logging.String("machine_id", d.license.MachineID()))
	return d.LicenseStatus(), nil
}

// Subscribe streams registry events. The returned func must be called.
func (d *Daemon) Subscribe() (<-chan registry.Event, func()) {
	return d.engine.Registry().Subscribe()
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTestNotification, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
