// Package registry holds the ordered set of open spreadsheets, the active
// selection, and the latest published job list for each.
package registry

import (
	"path/filepath"
	"sync"
	"time"

	"vmanga/internal/jobs"
)

// EventKind names a registry change.
type EventKind string

const (
	EventOpened    EventKind = "opened"
	EventClosed    EventKind = "closed"
	EventPublished EventKind = "published"
	EventActivated EventKind = "activated"
)

// Event is delivered to subscribers after each change. File is a snapshot.
type Event struct {
	Kind   EventKind
	File   jobs.TrackedFile
	Active string
	At     time.Time
}

const defaultSubscriberBuffer = 32

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	files  []jobs.TrackedFile
	active string
	subs   map[int]chan Event
	nextID int
	now    func() time.Time
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{subs: make(map[int]chan Event), now: time.Now}
}

// Open adds path to the end of the list. It returns false when the path is
// already open. An empty displayName defaults to the file name. The first
// opened file becomes active.
func (r *Registry) Open(path, displayName string) (jobs.TrackedFile, bool) {
	path = filepath.Clean(path)
	if displayName == "" {
		displayName = filepath.Base(path)
	}
	r.mu.Lock()
	if idx := r.indexLocked(path); idx >= 0 {
		existing := r.files[idx].Clone()
		r.mu.Unlock()
		return existing, false
	}
	tf := jobs.TrackedFile{DisplayName: displayName, SourcePath: path}
	r.files = append(r.files, tf)
	if r.active == "" {
		r.active = path
	}
	active := r.active
	r.mu.Unlock()

	r.broadcast(Event{Kind: EventOpened, File: tf, Active: active, At: r.now()})
	return tf, true
}

// Close removes path. Closing the active file activates the previous file in
// list order, or the next one when it was first.
func (r *Registry) Close(path string) bool {
	path = filepath.Clean(path)
	r.mu.Lock()
	idx := r.indexLocked(path)
	if idx < 0 {
		r.mu.Unlock()
		return false
	}
	removed := r.files[idx]
	r.files = append(r.files[:idx], r.files[idx+1:]...)
	if r.active == path {
		r.active = ""
		switch {
		case len(r.files) == 0:
		case idx > 0:
			r.active = r.files[idx-1].SourcePath
		default:
			r.active = r.files[0].SourcePath
		}
	}
	active := r.active
	r.mu.Unlock()

	r.broadcast(Event{Kind: EventClosed, File: removed, Active: active, At: r.now()})
	return true
}

// Activate selects path. It fails with jobs.ErrNotFound for unknown paths.
func (r *Registry) Activate(path string) error {
	path = filepath.Clean(path)
	r.mu.Lock()
	idx := r.indexLocked(path)
	if idx < 0 {
		r.mu.Unlock()
		return jobs.Wrap(jobs.ErrNotFound, "activate", path, "spreadsheet is not open", nil)
	}
	r.active = path
	tf := r.files[idx].Clone()
	r.mu.Unlock()

	r.broadcast(Event{Kind: EventActivated, File: tf, Active: path, At: r.now()})
	return nil
}

// Active returns the selected file.
func (r *Registry) Active() (jobs.TrackedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return jobs.TrackedFile{}, false
	}
	idx := r.indexLocked(r.active)
	if idx < 0 {
		return jobs.TrackedFile{}, false
	}
	return r.files[idx].Clone(), true
}

// ActivePath returns the selected path or "".
func (r *Registry) ActivePath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Get returns a snapshot of path.
func (r *Registry) Get(path string) (jobs.TrackedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexLocked(filepath.Clean(path))
	if idx < 0 {
		return jobs.TrackedFile{}, false
	}
	return r.files[idx].Clone(), true
}

// List returns snapshots in open order.
func (r *Registry) List() []jobs.TrackedFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]jobs.TrackedFile, len(r.files))
	for i, tf := range r.files {
		out[i] = tf.Clone()
	}
	return out
}

// Publish replaces the job list of path wholesale. Publishing to a path that
// is no longer open is dropped and reports false.
func (r *Registry) Publish(path string, list []jobs.Job) (jobs.TrackedFile, bool) {
	path = filepath.Clean(path)
	now := r.now()
	r.mu.Lock()
	idx := r.indexLocked(path)
	if idx < 0 {
		r.mu.Unlock()
		return jobs.TrackedFile{}, false
	}
	owned := make([]jobs.Job, len(list))
	copy(owned, list)
	r.files[idx].Jobs = owned
	r.files[idx].UpdatedAt = now
	tf := r.files[idx].Clone()
	active := r.active
	r.mu.Unlock()

	r.broadcast(Event{Kind: EventPublished, File: tf, Active: active, At: now})
	return tf, true
}

// Subscribe returns a channel of events and a cancel func. Events are dropped
// for subscribers whose buffer is full.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, defaultSubscriberBuffer)
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *Registry) broadcast(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *Registry) indexLocked(path string) int {
	for i, tf := range r.files {
		if tf.SourcePath == path {
			return i
		}
	}
	return -1
}
