// Package watchdog resets jobs that an external generator appears to have
// abandoned mid-run.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"vmanga/internal/jobs"
	"vmanga/internal/logging"
	"vmanga/internal/notifications"
)

const (
	defaultInterval  = time.Minute
	defaultThreshold = 5 * time.Minute
)

// FindStuck returns the in-progress jobs whose last status change is strictly
// older than threshold. Jobs without a timestamp are never considered stuck.
func FindStuck(list []jobs.Job, now time.Time, threshold time.Duration) []jobs.Job {
	var stuck []jobs.Job
	for _, job := range list {
		if !job.Status.InProgress() || job.LastUpdatedAt.IsZero() {
			continue
		}
		if now.Sub(job.LastUpdatedAt) > threshold {
			stuck = append(stuck, job)
		}
	}
	return stuck
}

// Source lists the published snapshots to inspect.
type Source interface {
	List() []jobs.TrackedFile
}

// Resetter clears job statuses in a spreadsheet.
type Resetter interface {
	ResetJobs(ctx context.Context, path string, ids []string) (int, error)
}

// Options configures a Watchdog.
type Options struct {
	Interval  time.Duration
	Threshold time.Duration
	Logger    *slog.Logger
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Result summarises one sweep.
type Result struct {
	Files  int      `json:"files"`
	Jobs   int      `json:"jobs"`
	Failed []string `json:"failed,omitempty"`
}

// Watchdog periodically sweeps tracked spreadsheets.
type Watchdog struct {
	source   Source
	resetter Resetter
	notifier notifications.Service
	opts     Options
	logger   *slog.Logger
}

// New constructs a Watchdog.
func New(source Source, resetter Resetter, notifier notifications.Service, opts Options) *Watchdog {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Watchdog{
		source:   source,
		resetter: resetter,
		notifier: notifier,
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "watchdog"),
	}
}

// Sweep resets stuck jobs in every tracked file with one write per file and
// sends a single summary notification. A failing file is logged and skipped.
func (w *Watchdog) Sweep(ctx context.Context) Result {
	now := w.opts.Now()
	var result Result
	var detail []string
	for _, tf := range w.source.List() {
		if ctx.Err() != nil {
			break
		}
		stuck := FindStuck(tf.Jobs, now, w.opts.Threshold)
		if len(stuck) == 0 {
			continue
		}
		ids := make([]string, 0, len(stuck))
		for _, job := range stuck {
			ids = append(ids, job.ID)
		}
		n, err := w.resetter.ResetJobs(ctx, tf.SourcePath, ids)
		if err != nil {
			logging.WarnWithContext(w.logger, "stuck job reset failed", "watchdog_reset_failed",
				logging.Sheet(tf.SourcePath),
				logging.Int("stuck", len(ids)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the spreadsheet is writable"),
				logging.String(logging.FieldImpact, "stuck jobs stay in progress until the next sweep"),
			)
			result.Failed = append(result.Failed, tf.SourcePath)
			continue
		}
		if n == 0 {
			continue
		}
		w.logger.Info("stuck jobs reset",
			logging.Sheet(tf.SourcePath),
			logging.Int("count", n),
			logging.Duration("threshold", w.opts.Threshold),
		)
		result.Files++
		result.Jobs += n
		detail = append(detail, fmt.Sprintf("%s: %d", filepath.Base(tf.SourcePath), n))
	}

	if result.Jobs > 0 {
		if err := w.notifier.Publish(ctx, notifications.EventStuckReset, notifications.Payload{
			"jobs":   result.Jobs,
			"files":  result.Files,
			"detail": strings.Join(detail, "\n"),
		}); err != nil {
			w.logger.Debug("stuck reset notification not sent", logging.Error(err))
		}
	}
	return result
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	w.logger.Debug("watchdog running",
		logging.Duration("interval", w.opts.Interval),
		logging.Duration("threshold", w.opts.Threshold),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}
