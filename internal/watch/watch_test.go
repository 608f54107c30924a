package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vmanga/internal/jobs"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func handleFor(t *testing.T, ctrl *Controller, path string) *handle {
	t.Helper()
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	h, ok := ctrl.handles[path]
	if !ok {
		t.Fatalf("no handle for %s", path)
	}
	return h
}

type countingCycle struct {
	calls atomic.Int32
}

func (c *countingCycle) run(context.Context, string) error {
	c.calls.Add(1)
	return nil
}

func newTestController(cycle CycleFunc) *Controller {
	return New(cycle, Options{Debounce: 40 * time.Millisecond, SubdirPoll: 30 * time.Millisecond})
}

func TestStartRunsInitialCycleAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	counter := &countingCycle{}
	ctrl := newTestController(counter.run)
	defer ctrl.Close()

	started, err := ctrl.Start(context.Background(), path)
	if err != nil || !started {
		t.Fatalf("Start = %v, %v", started, err)
	}
	if got := counter.calls.Load(); got != 1 {
		t.Fatalf("expected synchronous initial cycle, got %d calls", got)
	}

	started, err = ctrl.Start(context.Background(), path)
	if err != nil || started {
		t.Fatalf("second Start = %v, %v; want false, nil", started, err)
	}
	if got := counter.calls.Load(); got != 1 {
		t.Fatalf("second Start must not run a cycle, got %d calls", got)
	}
}

func TestBurstOfWritesCollapsesToOneCycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	if err := os.WriteFile(path, []byte("v0"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	counter := &countingCycle{}
	ctrl := newTestController(counter.run)
	defer ctrl.Close()

	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return counter.calls.Load() >= 2 })
	time.Sleep(200 * time.Millisecond)
	if got := counter.calls.Load(); got != 2 {
		t.Fatalf("expected burst to collapse into one cycle, got %d total calls", got)
	}
}

func TestUnrelatedFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	counter := &countingCycle{}
	ctrl := newTestController(counter.run)
	defer ctrl.Close()

	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := counter.calls.Load(); got != 1 {
		t.Fatalf("expected unrelated file to be ignored, got %d calls", got)
	}
}

func TestResultFolderAttachesWhenCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	counter := &countingCycle{}
	ctrl := newTestController(counter.run)
	defer ctrl.Close()

	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h := handleFor(t, ctrl, path)
	if h.subdirAttached() {
		t.Fatal("result folder should not be attached before it exists")
	}

	sub := filepath.Join(dir, "Out")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitFor(t, 2*time.Second, h.subdirAttached)
	waitFor(t, 2*time.Second, func() bool { return counter.calls.Load() >= 2 })

	time.Sleep(100 * time.Millisecond)
	before := counter.calls.Load()
	if err := os.WriteFile(filepath.Join(sub, "Image_J1_Out_1.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write result: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return counter.calls.Load() > before })
}

func TestResultFolderRemovalDetaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	sub := filepath.Join(dir, "Out")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ctrl := newTestController((&countingCycle{}).run)
	defer ctrl.Close()

	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h := handleFor(t, ctrl, path)
	if !h.subdirAttached() {
		t.Fatal("expected existing result folder to be attached")
	}
	if err := os.RemoveAll(sub); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return !h.subdirAttached() })

	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir again: %v", err)
	}
	waitFor(t, 2*time.Second, h.subdirAttached)
}

func TestCycleGuardNeverOverlapsAndCoalesces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")

	var (
		calls    atomic.Int32
		active   atomic.Int32
		maxSeen  atomic.Int32
		release  = make(chan struct{})
		entered  = make(chan struct{}, 1)
		blockOne sync.Once
	)
	cycle := func(context.Context, string) error {
		n := calls.Add(1)
		cur := active.Add(1)
		defer active.Add(-1)
		if cur > maxSeen.Load() {
			maxSeen.Store(cur)
		}
		if n == 2 {
			blockOne.Do(func() {
				entered <- struct{}{}
				<-release
			})
		}
		return nil
	}
	ctrl := newTestController(cycle)
	defer ctrl.Close()

	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Rescan(context.Background(), path) }()
	<-entered

	for i := 0; i < 3; i++ {
		if err := ctrl.Rescan(context.Background(), path); err != nil {
			t.Fatalf("Rescan while running: %v", err)
		}
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("blocked Rescan: %v", err)
	}

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected initial + running + one follow-up = 3 calls, got %d", got)
	}
	if got := maxSeen.Load(); got != 1 {
		t.Fatalf("cycles overlapped: max concurrency %d", got)
	}
}

func TestRescanReturnsFirstPassError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	boom := jobs.Wrap(jobs.ErrStructure, "parse", path, "missing STATUS", nil)
	var fail atomic.Bool
	ctrl := newTestController(func(context.Context, string) error {
		if fail.Load() {
			return boom
		}
		return nil
	})
	defer ctrl.Close()

	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fail.Store(true)
	if err := ctrl.Rescan(context.Background(), path); !errors.Is(err, jobs.ErrStructure) {
		t.Fatalf("expected structure error, got %v", err)
	}
}

func TestStopIsIdempotentAndSilencesEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	counter := &countingCycle{}
	ctrl := newTestController(counter.run)
	defer ctrl.Close()

	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !ctrl.Stop(path) {
		t.Fatal("expected first Stop to report true")
	}
	if ctrl.Stop(path) {
		t.Fatal("expected second Stop to be a no-op")
	}
	if ctrl.Watching(path) {
		t.Fatal("path still reported as watched")
	}

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := counter.calls.Load(); got != 1 {
		t.Fatalf("expected no cycles after Stop, got %d calls", got)
	}
	if err := ctrl.Rescan(context.Background(), path); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected not found for unwatched rescan, got %v", err)
	}
}

func TestCloseRejectsFurtherStarts(t *testing.T) {
	ctrl := newTestController((&countingCycle{}).run)
	path := filepath.Join(t.TempDir(), "Out.xlsx")
	if _, err := ctrl.Start(context.Background(), path); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctrl.Close()
	if ctrl.Watching(path) {
		t.Fatal("expected Close to drop handles")
	}
	if _, err := ctrl.Start(context.Background(), path); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
