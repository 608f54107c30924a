// Package watch keeps tracked spreadsheets in sync with the filesystem.
//
// A Controller owns one handle per spreadsheet path. Each handle watches the
// spreadsheet's folder (atomic rename-writes replace the inode, so the file
// itself cannot be watched directly) and, when it exists, the sibling result
// folder. Events are debounced and funnelled through a per-path guard so
// refresh cycles for one spreadsheet never overlap.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vmanga/internal/debounce"
	"vmanga/internal/jobs"
	"vmanga/internal/logging"
	"vmanga/internal/scanner"
)

// CycleFunc runs one read, parse, scan, reconcile and publish pass for path.
// A returned error aborts the pass; nothing is published.
type CycleFunc func(ctx context.Context, path string) error

// Options tunes a Controller.
type Options struct {
	Debounce   time.Duration
	SubdirPoll time.Duration
	Logger     *slog.Logger
}

const (
	defaultDebounce   = 300 * time.Millisecond
	defaultSubdirPoll = 5 * time.Second
)

// Controller manages watch handles keyed by spreadsheet path.
type Controller struct {
	cycle  CycleFunc
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
}

// New constructs a Controller that invokes cycle on changes.
func New(cycle CycleFunc, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.SubdirPoll <= 0 {
		opts.SubdirPoll = defaultSubdirPoll
	}
	return &Controller{
		cycle:   cycle,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "watch"),
		handles: make(map[string]*handle),
	}
}

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("watch controller closed")

// Start begins watching path. It returns false without doing anything when
// the path is already watched. Otherwise one cycle runs synchronously before
// watchers are registered; a failing initial cycle is logged, not returned.
func (c *Controller) Start(ctx context.Context, path string) (bool, error) {
	path = filepath.Clean(path)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if _, ok := c.handles[path]; ok {
		c.mu.Unlock()
		return false, nil
	}
	h := c.newHandle(path)
	c.handles[path] = h
	c.mu.Unlock()

	_ = h.runGuarded(ctx)

	if err := h.open(); err != nil {
		c.mu.Lock()
		if c.handles[path] == h {
			delete(c.handles, path)
		}
		c.mu.Unlock()
		h.close()
		return false, err
	}
	c.logger.Debug("watch started", logging.Sheet(path), logging.Bool("subdir_attached", h.subdirAttached()))
	return true, nil
}

// Stop tears down the watchers for path. It is a no-op for unwatched paths.
// An in-flight cycle is allowed to finish.
func (c *Controller) Stop(path string) bool {
	path = filepath.Clean(path)
	c.mu.Lock()
	h, ok := c.handles[path]
	if ok {
		delete(c.handles, path)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	h.close()
	c.logger.Debug("watch stopped", logging.Sheet(path))
	return true
}

// Watching reports whether path currently has a handle.
func (c *Controller) Watching(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handles[filepath.Clean(path)]
	return ok
}

// Paths lists watched spreadsheet paths in no particular order.
func (c *Controller) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.handles))
	for p := range c.handles {
		out = append(out, p)
	}
	return out
}

// Rescan forces a cycle for a watched path through the same guard used by
// file events. When a cycle is already running, a follow-up is queued and
// Rescan returns nil immediately.
func (c *Controller) Rescan(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	c.mu.Lock()
	h, ok := c.handles[path]
	c.mu.Unlock()
	if !ok {
		return jobs.Wrap(jobs.ErrNotFound, "rescan", path, "spreadsheet is not watched", nil)
	}
	return h.runGuarded(ctx)
}

// Close stops every handle. Start fails afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	handles := make([]*handle, 0, len(c.handles))
	for p, h := range c.handles {
		handles = append(handles, h)
		delete(c.handles, p)
	}
	c.mu.Unlock()
	for _, h := range handles {
		h.close()
	}
}

func (c *Controller) newHandle(path string) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		ctrl:   c,
		path:   path,
		dir:    filepath.Dir(path),
		subdir: scanner.ResultDir(path),
		ctx:    ctx,
		cancel: cancel,
		logger: c.logger.With(logging.Sheet(path)),
	}
	h.debouncer = debounce.New(c.opts.Debounce, func() { _ = h.runGuarded(h.ctx) })
	return h
}

// logCycleError applies the refresh failure policy: a missing or half-written
// spreadsheet is expected during external saves and only logged at debug.
func (c *Controller) logCycleError(logger *slog.Logger, err error) {
	if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, jobs.ErrParse) || errors.Is(err, context.Canceled) {
		logger.Debug("refresh skipped", logging.Error(err))
		return
	}
	logging.WarnWithContext(logger, "refresh failed; keeping last published state", "watch_cycle_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the spreadsheet columns and folder permissions"),
		logging.String(logging.FieldImpact, "job list may be stale until the next change"),
	)
}

func (c *Controller) pollInterval() time.Duration { return c.opts.SubdirPoll }

func wrapWatchErr(path string, err error) error {
	return jobs.Wrap(jobs.ErrIO, "watch", path, "register watcher", err)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
