// Package engine wires the spreadsheet pipeline together: it owns the
// registry of open spreadsheets, their filesystem watchers, the mutation
// gateway, the stuck-job watchdog and the state store.
//
// Each refresh cycle reads the workbook, parses it, matches result files,
// reconciles timestamps against the previous snapshot and publishes the
// merged job list. User actions write to disk and rely on the watcher to
// republish.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vmanga/internal/config"
	"vmanga/internal/gateway"
	"vmanga/internal/jobs"
	"vmanga/internal/logging"
	"vmanga/internal/notifications"
	"vmanga/internal/preflight"
	"vmanga/internal/reconcile"
	"vmanga/internal/registry"
	"vmanga/internal/scanner"
	"vmanga/internal/sheet"
	"vmanga/internal/statestore"
	"vmanga/internal/watch"
	"vmanga/internal/watchdog"
)

// Engine is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	store    *statestore.Store
	notifier notifications.Service
	logger   *slog.Logger

	registry *registry.Registry
	watcher  *watch.Controller
	scanner  *scanner.Scanner
	gateway  *gateway.Gateway
	watchdog *watchdog.Watchdog
	now      func() time.Time
}

// New constructs an Engine. A nil notifier disables notifications.
func New(cfg *config.Config, store *statestore.Store, notifier notifications.Service, logger *slog.Logger) (*Engine, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("engine requires config and store")
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "engine"),
		registry: registry.New(),
		scanner:  scanner.New(logger),
		now:      time.Now,
	}
	e.gateway = gateway.New(sheet.NewWriter(cfg.SheetLockDir()), notifier, logger)
	e.watcher = watch.New(e.cycle, watch.Options{
		Debounce:   time.Duration(cfg.Watch.DebounceMillis) * time.Millisecond,
		SubdirPoll: time.Duration(cfg.Watch.SubdirPollSeconds) * time.Second,
		Logger:     logger,
	})
	e.watchdog = watchdog.New(e.registry, e.gateway, notifier, watchdog.Options{
		Interval:  time.Duration(cfg.Watchdog.IntervalSeconds) * time.Second,
		Threshold: time.Duration(cfg.Watchdog.StaleThresholdSeconds) * time.Second,
		Logger:    logger,
	})
	return e, nil
}

// Registry exposes the registry for subscribers.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Files lists open spreadsheets in open order.
func (e *Engine) Files() []jobs.TrackedFile { return e.registry.List() }

// Active returns the selected spreadsheet.
func (e *Engine) Active() (jobs.TrackedFile, bool) { return e.registry.Active() }

// ActivePath returns the selected spreadsheet path or "".
func (e *Engine) ActivePath() string { return e.registry.ActivePath() }

// File returns the snapshot of path, or of the active file when path is empty.
func (e *Engine) File(path string) (jobs.TrackedFile, error) {
	resolved, err := e.resolveOpen(path)
	if err != nil {
		return jobs.TrackedFile{}, err
	}
	tf, ok := e.registry.Get(resolved)
	if !ok {
		return jobs.TrackedFile{}, notOpen("show", resolved)
	}
	return tf, nil
}

// OpenFile starts tracking path and makes it the active spreadsheet. Opening
// an already tracked path only activates it.
func (e *Engine) OpenFile(ctx context.Context, path string) (jobs.TrackedFile, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return jobs.TrackedFile{}, err
	}
	if _, ok := e.registry.Get(resolved); ok {
		if err := e.Activate(ctx, resolved); err != nil {
			return jobs.TrackedFile{}, err
		}
		tf, _ := e.registry.Get(resolved)
		return tf, nil
	}

	if check := preflight.CheckSpreadsheetDir(resolved); !check.Passed {
		kind := jobs.ErrIO
		if _, statErr := os.Stat(resolved); errors.Is(statErr, fs.ErrNotExist) {
			kind = jobs.ErrNotFound
		}
		return jobs.TrackedFile{}, jobs.Wrap(kind, "open", resolved, check.Detail, nil)
	}

	tf, _ := e.registry.Open(resolved, "")
	if err := e.store.SaveTrackedFile(ctx, resolved, tf.DisplayName, e.now()); err != nil {
		e.registry.Close(resolved)
		return jobs.TrackedFile{}, err
	}
	if _, err := e.watcher.Start(ctx, resolved); err != nil {
		e.registry.Close(resolved)
		_ = e.store.RemoveTrackedFile(ctx, resolved)
		return jobs.TrackedFile{}, err
	}
	if err := e.Activate(ctx, resolved); err != nil {
		return jobs.TrackedFile{}, err
	}

	tf, _ = e.registry.Get(resolved)
	e.logger.Info("spreadsheet opened",
		logging.Sheet(resolved),
		logging.Int("jobs", len(tf.Jobs)),
		logging.String(logging.FieldEventType, "sheet_opened"),
	)
	return tf, nil
}

// CloseFile stops tracking path and forgets its persisted state.
func (e *Engine) CloseFile(ctx context.Context, path string) error {
	resolved, err := e.resolveOpen(path)
	if err != nil {
		return err
	}
	e.watcher.Stop(resolved)
	if !e.registry.Close(resolved) {
		return notOpen("close", resolved)
	}
	if err := e.store.RemoveTrackedFile(ctx, resolved); err != nil {
		e.logger.Warn("forget tracked file failed", logging.Sheet(resolved), logging.Error(err))
	}
	if err := e.store.SetActive(ctx, e.registry.ActivePath()); err != nil {
		e.logger.Warn("persist active file failed", logging.Error(err))
	}
	e.logger.Info("spreadsheet closed", logging.Sheet(resolved), logging.String(logging.FieldEventType, "sheet_closed"))
	return nil
}

// Activate selects an open spreadsheet.
func (e *Engine) Activate(ctx context.Context, path string) error {
	resolved, err := e.resolveOpen(path)
	if err != nil {
		return err
	}
	if err := e.registry.Activate(resolved); err != nil {
		return err
	}
	if err := e.store.SetActive(ctx, resolved); err != nil {
		e.logger.Warn("persist active file failed", logging.Sheet(resolved), logging.Error(err))
	}
	return nil
}

// Rescan forces a refresh cycle for path, or the active file when empty.
func (e *Engine) Rescan(ctx context.Context, path string) error {
	resolved, err := e.resolveOpen(path)
	if err != nil {
		return err
	}
	return e.watcher.Rescan(ctx, resolved)
}

// Retry clears the status of one job.
func (e *Engine) Retry(ctx context.Context, path, jobID string) error {
	tf, err := e.File(path)
	if err != nil {
		return err
	}
	return e.gateway.RetrySingle(ctx, tf, jobID)
}

// ResetIncomplete clears every job that is not Completed.
func (e *Engine) ResetIncomplete(ctx context.Context, path string) (int, error) {
	tf, err := e.File(path)
	if err != nil {
		return 0, err
	}
	return e.gateway.ResetAllIncomplete(ctx, tf)
}

// DeleteResult removes a job's result file and clears its status. An empty
// resultPath uses the published match.
func (e *Engine) DeleteResult(ctx context.Context, path, jobID, resultPath string) error {
	tf, err := e.File(path)
	if err != nil {
		return err
	}
	if resultPath != "" {
		if resultPath, err = filepath.Abs(resultPath); err != nil {
			return jobs.Wrap(jobs.ErrIO, "delete result", resultPath, "resolve path", err)
		}
	}
	return e.gateway.DeleteResultAndReset(ctx, tf, jobID, resultPath)
}

// Link records file as the result of a job.
func (e *Engine) Link(ctx context.Context, path, jobID, file string) error {
	tf, err := e.File(path)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(strings.TrimSpace(file))
	if err != nil {
		return jobs.Wrap(jobs.ErrIO, "link result", file, "resolve path", err)
	}
	return e.gateway.LinkResult(ctx, tf, jobID, abs)
}

// Sweep runs one watchdog pass immediately.
func (e *Engine) Sweep(ctx context.Context) watchdog.Result {
	return e.watchdog.Sweep(ctx)
}

// RunWatchdog sweeps periodically until ctx is cancelled.
func (e *Engine) RunWatchdog(ctx context.Context) {
	e.watchdog.Run(ctx)
}

// Stats returns completion totals and the last days of history.
func (e *Engine) Stats(ctx context.Context, days int) (statestore.Stats, error) {
	return e.store.Stats(ctx, e.now(), days)
}

// ClearStats drops recorded completions for day (YYYY-MM-DD), or all of them
// when day is empty. It returns the number of completions removed.
func (e *Engine) ClearStats(ctx context.Context, day string) (int, error) {
	day = strings.TrimSpace(day)
	if day == "" {
		return e.store.ResetStats(ctx)
	}
	at, err := time.ParseInLocation(time.DateOnly, day, time.Local)
	if err != nil {
		return 0, jobs.Wrap(jobs.ErrParse, "clear stats", "", "day must be YYYY-MM-DD", err)
	}
	return e.store.DeleteStats(ctx, at)
}

// Restore reopens the spreadsheets tracked before the last shutdown. Files
// that no longer exist are skipped with a warning. It returns the number of
// spreadsheets restored.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	tracked, err := e.store.TrackedFiles(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	active := ""
	for _, entry := range tracked {
		if _, statErr := os.Stat(entry.Path); statErr != nil {
			logging.WarnWithContext(e.logger, "tracked spreadsheet missing; skipping", "restore_skipped",
				logging.Sheet(entry.Path),
				logging.Error(statErr),
				logging.String(logging.FieldErrorHint, "reopen the spreadsheet once it is back in place"),
				logging.String(logging.FieldImpact, "spreadsheet is not watched"),
			)
			continue
		}
		if _, ok := e.registry.Open(entry.Path, entry.DisplayName); !ok {
			continue
		}
		if _, err := e.watcher.Start(ctx, entry.Path); err != nil {
			e.registry.Close(entry.Path)
			e.logger.Warn("restore watch failed", logging.Sheet(entry.Path), logging.Error(err))
			continue
		}
		if entry.Active {
			active = entry.Path
		}
		restored++
	}
	if active != "" {
		_ = e.registry.Activate(active)
	}
	if restored > 0 {
		e.logger.Info("tracked spreadsheets restored", logging.Int("count", restored))
	}
	return restored, nil
}

// Close stops every watcher.
func (e *Engine) Close() {
	e.watcher.Close()
}

// cycle is the watch controller's refresh pass for one spreadsheet.
func (e *Engine) cycle(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return jobs.Wrap(jobs.ErrNotFound, "read spreadsheet", path, "", err)
		}
		return jobs.Wrap(jobs.ErrIO, "read spreadsheet", path, "", err)
	}
	parsed, err := sheet.Parse(data)
	if err != nil {
		return err
	}
	scanned := e.scanner.Scan(parsed, path)

	previous, err := e.previous(ctx, path)
	if err != nil {
		return err
	}
	now := e.now()
	merged := reconcile.Reconcile(previous, scanned, now)
	transitions := reconcile.Transitions(previous, merged)

	if _, ok := e.registry.Publish(path, merged); !ok {
		return nil
	}
	for _, tr := range transitions {
		e.logger.Debug("job status changed",
			logging.Sheet(path),
			logging.JobID(tr.ID),
			logging.String("from", tr.From.Label()),
			logging.String("to", tr.To.Label()),
		)
	}

	if err := e.store.SaveJobStates(ctx, path, merged); err != nil {
		e.logger.Warn("persist job states failed", logging.Sheet(path), logging.Error(err))
	}
	if n := reconcile.Completions(transitions); n > 0 {
		if err := e.store.RecordCompletions(ctx, now, n); err != nil {
			e.logger.Warn("record completions failed", logging.Sheet(path), logging.Error(err))
		}
	}
	return nil
}

// previous returns the last published jobs for path. Before the first publish
// in this process it falls back to the persisted states.
func (e *Engine) previous(ctx context.Context, path string) ([]jobs.Job, error) {
	if tf, ok := e.registry.Get(path); ok && !tf.UpdatedAt.IsZero() {
		return tf.Jobs, nil
	}
	states, err := e.store.JobStates(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load previous job states: %w", err)
	}
	return statestore.PreviousJobs(states), nil
}

// resolveOpen resolves path, defaulting to the active spreadsheet.
func (e *Engine) resolveOpen(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		active := e.registry.ActivePath()
		if active == "" {
			return "", jobs.Wrap(jobs.ErrNotFound, "resolve", "", "no spreadsheet is open", nil)
		}
		return active, nil
	}
	return ResolvePath(path)
}

// ResolvePath expands ~ and returns the absolute, cleaned form of path.
func ResolvePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", jobs.Wrap(jobs.ErrNotFound, "resolve", "", "spreadsheet path is required", nil)
	}
	resolved, err := config.ExpandPath(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", trimmed, err)
	}
	return resolved, nil
}

func notOpen(op, path string) error {
	return jobs.Wrap(jobs.ErrNotFound, op, path, "spreadsheet is not open", nil)
}
