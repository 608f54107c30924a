package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vmanga/internal/debounce"
	"vmanga/internal/logging"
	"vmanga/internal/scanner"
)

type handle struct {
	ctrl   *Controller
	path   string
	dir    string
	subdir string
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	debouncer *debounce.Debouncer
	wg        sync.WaitGroup

	mu          sync.Mutex
	running     bool
	dirty       bool
	closed      bool
	fileWatcher *fsnotify.Watcher
	dirWatcher  *fsnotify.Watcher
}

// runGuarded runs the cycle unless one is already in progress, in which case
// it marks the handle dirty so exactly one follow-up runs afterwards. The
// returned error belongs to the first pass only.
func (h *handle) runGuarded(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.dirty = true
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	var first error
	for pass := 0; ; pass++ {
		err := h.ctrl.cycle(ctx, h.path)
		if err != nil {
			h.ctrl.logCycleError(h.logger, err)
		}
		if pass == 0 {
			first = err
		}

		h.mu.Lock()
		if !h.dirty || h.closed {
			h.running = false
			h.dirty = false
			h.mu.Unlock()
			return first
		}
		h.dirty = false
		h.mu.Unlock()
		ctx = h.ctx
	}
}

func (h *handle) trigger() {
	h.debouncer.Trigger()
}

func (h *handle) open() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return wrapWatchErr(h.path, err)
	}
	if err := w.Add(h.dir); err != nil {
		_ = w.Close()
		return wrapWatchErr(h.dir, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = w.Close()
		return nil
	}
	h.fileWatcher = w
	h.wg.Add(2)
	h.mu.Unlock()

	go h.loop(w, h.onFolderEvent)
	go h.pollSubdir()
	h.attachSubdir()
	return nil
}

func (h *handle) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	fw, dw := h.fileWatcher, h.dirWatcher
	h.fileWatcher, h.dirWatcher = nil, nil
	h.mu.Unlock()

	h.cancel()
	h.debouncer.Stop()
	if fw != nil {
		_ = fw.Close()
	}
	if dw != nil {
		_ = dw.Close()
	}
	h.wg.Wait()
}

func (h *handle) subdirAttached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirWatcher != nil
}

func (h *handle) attachSubdir() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.dirWatcher != nil || !isDir(h.subdir) {
		return false
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		h.logger.Warn("result folder watcher unavailable", logging.String("dir", h.subdir), logging.Error(err))
		return false
	}
	if err := w.Add(h.subdir); err != nil {
		_ = w.Close()
		h.logger.Debug("result folder watch failed", logging.String("dir", h.subdir), logging.Error(err))
		return false
	}
	h.dirWatcher = w
	h.wg.Add(1)
	go h.loop(w, h.onSubdirEvent)
	h.logger.Debug("result folder attached", logging.String("dir", h.subdir))
	return true
}

func (h *handle) detachSubdir() bool {
	h.mu.Lock()
	w := h.dirWatcher
	h.dirWatcher = nil
	h.mu.Unlock()
	if w == nil {
		return false
	}
	_ = w.Close()
	h.logger.Debug("result folder detached", logging.String("dir", h.subdir))
	return true
}

func (h *handle) loop(w *fsnotify.Watcher, onEvent func(fsnotify.Event)) {
	defer h.wg.Done()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			onEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Warn("watcher error", logging.Error(err))
		}
	}
}

func (h *handle) onFolderEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Clean(ev.Name)
	switch {
	case name == h.path:
		h.trigger()
	case name == h.subdir:
		if ev.Has(fsnotify.Create) && h.attachSubdir() {
			h.trigger()
		}
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			h.detachSubdir()
			h.trigger()
		}
	case scanner.IsResultFile(name):
		h.trigger()
	}
}

func (h *handle) onSubdirEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Clean(ev.Name)
	if name == h.subdir {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			// The folder itself went away; the poller reattaches it.
			go h.detachSubdir()
			h.trigger()
		}
		return
	}
	if scanner.IsResultFile(name) {
		h.trigger()
	}
}

// pollSubdir reconciles the result folder watcher with the folder's presence.
func (h *handle) pollSubdir() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.ctrl.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}
		exists := isDir(h.subdir)
		attached := h.subdirAttached()
		switch {
		case exists && !attached:
			if h.attachSubdir() {
				h.trigger()
			}
		case !exists && attached:
			h.detachSubdir()
			h.trigger()
		}
	}
}
