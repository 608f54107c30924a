package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vmanga/internal/config"
	"vmanga/internal/jobs"
	"vmanga/internal/logging"
	"vmanga/internal/statestore"
	"vmanga/internal/testsupport"
)

const settle = 5 * time.Second

func newEngine(t *testing.T, cfg *config.Config, store *statestore.Store) *Engine {
	t.Helper()
	e, err := New(cfg, store, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func jobStatus(e *Engine, path, id string) jobs.Status {
	tf, ok := e.Registry().Get(path)
	if !ok {
		return jobs.StatusEmpty
	}
	job, _ := tf.Find(id)
	return job.Status
}

func TestOpenMatchesResultsAndPicksUpNewFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	e := newEngine(t, cfg, store)

	dir := t.TempDir()
	path := filepath.Join(dir, "Out.xlsx")
	testsupport.WriteWorkbook(t, path, []jobs.Job{
		{ID: "Job_1", ResultName: "Out_1", Kind: jobs.KindImage, Status: jobs.StatusProcessing},
		{ID: "Job_2", ResultName: "Out_2", Kind: jobs.KindImage},
	})
	testsupport.WriteFile(t, filepath.Join(dir, "Out", "Image_Job_1_Out_1.png"), 8)

	tf, err := e.OpenFile(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if len(tf.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(tf.Jobs))
	}
	job, _ := tf.Find("Job_1")
	if job.Status != jobs.StatusCompleted || filepath.Base(job.ResultPath) != "Image_Job_1_Out_1.png" {
		t.Fatalf("Job_1 not matched: %+v", job)
	}
	if e.ActivePath() != path {
		t.Fatalf("active = %q, want %q", e.ActivePath(), path)
	}

	testsupport.WriteFile(t, filepath.Join(dir, "Out", "Image_Job_2_Out_2.png"), 8)
	testsupport.WaitFor(t, settle, func() bool {
		return jobStatus(e, path, "Job_2") == jobs.StatusCompleted
	})
	testsupport.WaitFor(t, settle, func() bool {
		stats, err := e.Stats(context.Background(), 7)
		return err == nil && stats.Total == 1
	})
}

func TestOpenMissingSpreadsheet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	e := newEngine(t, cfg, testsupport.MustOpenStore(t, cfg))

	_, err := e.OpenFile(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"))
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(e.Files()) != 0 {
		t.Fatal("missing spreadsheet should not be registered")
	}
}

func TestOpenTwiceActivates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	e := newEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	dir := t.TempDir()
	a := filepath.Join(dir, "a.xlsx")
	b := filepath.Join(dir, "b.xlsx")
	testsupport.WriteWorkbook(t, a, []jobs.Job{{ID: "Job_1"}})
	testsupport.WriteWorkbook(t, b, []jobs.Job{{ID: "Job_1"}})

	ctx := context.Background()
	if _, err := e.OpenFile(ctx, a); err != nil {
		t.Fatalf("open a: %v", err)
	}
	if _, err := e.OpenFile(ctx, b); err != nil {
		t.Fatalf("open b: %v", err)
	}
	if e.ActivePath() != b {
		t.Fatalf("active = %q, want b", e.ActivePath())
	}
	if _, err := e.OpenFile(ctx, a); err != nil {
		t.Fatalf("reopen a: %v", err)
	}
	if e.ActivePath() != a || len(e.Files()) != 2 {
		t.Fatalf("unexpected state: active=%q files=%d", e.ActivePath(), len(e.Files()))
	}
}

func TestRetryIsRepublishedByWatcher(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	e := newEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	path := filepath.Join(t.TempDir(), "Out.xlsx")
	testsupport.WriteWorkbook(t, path, []jobs.Job{{ID: "Job_1", ResultName: "Out_1", Status: jobs.StatusFailed}})

	ctx := context.Background()
	if _, err := e.OpenFile(ctx, path); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := e.Retry(ctx, "", "Job_1"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	testsupport.WaitFor(t, settle, func() bool {
		return jobStatus(e, path, "Job_1") == jobs.StatusEmpty
	})

	if err := e.Retry(ctx, path, "Job_404"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRescanPublishesExternalEdit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	e := newEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	path := filepath.Join(t.TempDir(), "Out.xlsx")
	testsupport.WriteWorkbook(t, path, []jobs.Job{{ID: "Job_1"}})

	ctx := context.Background()
	if _, err := e.OpenFile(ctx, path); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	testsupport.WriteWorkbook(t, path, []jobs.Job{{ID: "Job_1", Status: jobs.StatusGenerating}})
	if err := e.Rescan(ctx, path); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	testsupport.WaitFor(t, settle, func() bool {
		return jobStatus(e, path, "Job_1") == jobs.StatusGenerating
	})
}

func TestCloseForgetsFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	e := newEngine(t, cfg, store)
	path := filepath.Join(t.TempDir(), "Out.xlsx")
	testsupport.WriteWorkbook(t, path, []jobs.Job{{ID: "Job_1"}})

	ctx := context.Background()
	if _, err := e.OpenFile(ctx, path); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := e.CloseFile(ctx, path); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}
	if len(e.Files()) != 0 || e.ActivePath() != "" {
		t.Fatal("registry still holds the closed file")
	}
	tracked, err := store.TrackedFiles(ctx)
	if err != nil {
		t.Fatalf("TrackedFiles: %v", err)
	}
	if len(tracked) != 0 {
		t.Fatalf("store still tracks %d files", len(tracked))
	}
	if err := e.CloseFile(ctx, path); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second close, got %v", err)
	}
}

func TestRestoreKeepsTimestampsAndSkipsMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept.xlsx")
	gone := filepath.Join(dir, "gone.xlsx")
	testsupport.WriteWorkbook(t, kept, []jobs.Job{{ID: "Job_1", Status: jobs.StatusProcessing}})
	testsupport.WriteWorkbook(t, gone, []jobs.Job{{ID: "Job_1"}})

	first, err := New(cfg, store, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first.now = func() time.Time { return stamp }
	ctx := context.Background()
	if _, err := first.OpenFile(ctx, gone); err != nil {
		t.Fatalf("open gone: %v", err)
	}
	if _, err := first.OpenFile(ctx, kept); err != nil {
		t.Fatalf("open kept: %v", err)
	}
	first.Close()
	if err := os.Remove(gone); err != nil {
		t.Fatalf("remove: %v", err)
	}

	second := newEngine(t, cfg, store)
	n, err := second.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("restored %d files, want 1", n)
	}
	if second.ActivePath() != kept {
		t.Fatalf("active = %q, want %q", second.ActivePath(), kept)
	}
	tf, err := second.File(kept)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	job, _ := tf.Find("Job_1")
	if !job.LastUpdatedAt.Equal(stamp) {
		t.Fatalf("timestamp = %v, want %v", job.LastUpdatedAt, stamp)
	}
}

func TestSweepResetsStuckJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWatchdog(60))
	e := newEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	e.now = func() time.Time { return time.Now().Add(-time.Hour) }
	path := filepath.Join(t.TempDir(), "Out.xlsx")
	testsupport.WriteWorkbook(t, path, []jobs.Job{
		{ID: "Job_1", Status: jobs.StatusProcessing},
		{ID: "Job_2", Status: jobs.StatusCompleted},
	})

	ctx := context.Background()
	if _, err := e.OpenFile(ctx, path); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	result := e.Sweep(ctx)
	if result.Jobs != 1 || result.Files != 1 {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	list := testsupport.ReadWorkbook(t, path)
	if list[0].Status != jobs.StatusEmpty || list[1].Status != jobs.StatusCompleted {
		t.Fatalf("unexpected statuses after sweep: %v %v", list[0].Status, list[1].Status)
	}
}

func TestResolvePathRequiresValue(t *testing.T) {
	if _, err := ResolvePath("  "); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := ResolvePath("relative/../Out.xlsx")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if !filepath.IsAbs(got) || filepath.Base(got) != "Out.xlsx" {
		t.Fatalf("unexpected resolved path %q", got)
	}
}

func TestClearStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	e := newEngine(t, cfg, store)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	if err := store.RecordCompletions(ctx, day, 2); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}
	if err := store.RecordCompletions(ctx, day.AddDate(0, 0, 1), 5); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}

	if _, err := e.ClearStats(ctx, "10/03/2026"); !errors.Is(err, jobs.ErrParse) {
		t.Fatalf("expected ErrParse for malformed day, got %v", err)
	}
	removed, err := e.ClearStats(ctx, "2026-03-10")
	if err != nil || removed != 2 {
		t.Fatalf("ClearStats(day) = %d, %v; want 2, nil", removed, err)
	}
	removed, err = e.ClearStats(ctx, "")
	if err != nil || removed != 5 {
		t.Fatalf("ClearStats(all) = %d, %v; want 5, nil", removed, err)
	}
	stats, err := e.Stats(ctx, 0)
	if err != nil || stats.Total != 0 {
		t.Fatalf("Stats after clear = %+v, %v", stats, err)
	}
}
