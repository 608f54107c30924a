package statestore_test

import (
	"context"
	"testing"
	"time"

	"vmanga/internal/jobs"
	"vmanga/internal/statestore"
	"vmanga/internal/testsupport"
)

func TestTrackedFilesKeepOpenOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()

	for _, p := range []string{"/w/b.xlsx", "/w/a.xlsx", "/w/c.xlsx"} {
		if err := store.SaveTrackedFile(ctx, p, "", now); err != nil {
			t.Fatalf("SaveTrackedFile: %v", err)
		}
	}
	if err := store.SaveTrackedFile(ctx, "/w/b.xlsx", "renamed", now); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if err := store.SetActive(ctx, "/w/a.xlsx"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	files, err := store.TrackedFiles(ctx)
	if err != nil {
		t.Fatalf("TrackedFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(files))
	}
	want := []string{"/w/b.xlsx", "/w/a.xlsx", "/w/c.xlsx"}
	for i, f := range files {
		if f.Path != want[i] {
			t.Fatalf("position %d: got %q want %q", i, f.Path, want[i])
		}
	}
	if files[0].DisplayName != "renamed" {
		t.Fatalf("expected display name update, got %q", files[0].DisplayName)
	}
	if !files[1].Active || files[0].Active || files[2].Active {
		t.Fatalf("expected only a.xlsx active: %+v", files)
	}
}

func TestJobStatesRoundTripAndCascade(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	path := "/w/Out.xlsx"
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)

	if err := store.SaveTrackedFile(ctx, path, "", t0); err != nil {
		t.Fatalf("SaveTrackedFile: %v", err)
	}
	list := []jobs.Job{
		{ID: "J1", Status: jobs.StatusProcessing, LastUpdatedAt: t0},
		{ID: "J2", Status: jobs.StatusEmpty, LastUpdatedAt: t0.Add(time.Minute)},
	}
	if err := store.SaveJobStates(ctx, path, list); err != nil {
		t.Fatalf("SaveJobStates: %v", err)
	}
	if err := store.SaveJobStates(ctx, path, list[:1]); err != nil {
		t.Fatalf("SaveJobStates replace: %v", err)
	}

	states, err := store.JobStates(ctx, path)
	if err != nil {
		t.Fatalf("JobStates: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected replacement to drop J2, got %+v", states)
	}
	st := states["J1"]
	if st.Status != jobs.StatusProcessing || !st.LastUpdatedAt.Equal(t0) {
		t.Fatalf("unexpected state: %+v", st)
	}

	prev := statestore.PreviousJobs(states)
	if len(prev) != 1 || prev[0].ID != "J1" || !prev[0].LastUpdatedAt.Equal(t0) {
		t.Fatalf("unexpected previous jobs: %+v", prev)
	}

	if err := store.RemoveTrackedFile(ctx, path); err != nil {
		t.Fatalf("RemoveTrackedFile: %v", err)
	}
	states, err = store.JobStates(ctx, path)
	if err != nil {
		t.Fatalf("JobStates after remove: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("expected job states removed with file, got %+v", states)
	}
}

func TestCompletionStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

	if err := store.RecordCompletions(ctx, now, 2); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}
	if err := store.RecordCompletions(ctx, now, 1); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}
	if err := store.RecordCompletions(ctx, now.AddDate(0, 0, -2), 4); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}
	if err := store.RecordCompletions(ctx, now.AddDate(0, 0, -30), 5); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}
	if err := store.RecordCompletions(ctx, now, 0); err != nil {
		t.Fatalf("RecordCompletions zero: %v", err)
	}

	stats, err := store.Stats(ctx, now, 3)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 12 {
		t.Fatalf("expected total 12, got %d", stats.Total)
	}
	want := []statestore.DayCount{
		{Day: "2026-03-08", Count: 4},
		{Day: "2026-03-09", Count: 0},
		{Day: "2026-03-10", Count: 3},
	}
	if len(stats.History) != len(want) {
		t.Fatalf("unexpected history: %+v", stats.History)
	}
	for i := range want {
		if stats.History[i] != want[i] {
			t.Fatalf("history[%d] = %+v, want %+v", i, stats.History[i], want[i])
		}
	}
}

func TestDeleteAndResetStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	yesterday := now.AddDate(0, 0, -1)

	if err := store.RecordCompletions(ctx, now, 3); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}
	if err := store.RecordCompletions(ctx, yesterday, 2); err != nil {
		t.Fatalf("RecordCompletions: %v", err)
	}

	removed, err := store.DeleteStats(ctx, yesterday)
	if err != nil {
		t.Fatalf("DeleteStats: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if removed, err := store.DeleteStats(ctx, yesterday); err != nil || removed != 0 {
		t.Fatalf("second DeleteStats = %d, %v; want 0, nil", removed, err)
	}
	stats, err := store.Stats(ctx, now, 2)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.History[0].Count != 0 || stats.History[1].Count != 3 {
		t.Fatalf("unexpected stats after day delete: %+v", stats)
	}

	removed, err = store.ResetStats(ctx)
	if err != nil {
		t.Fatalf("ResetStats: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if stats, err := store.Stats(ctx, now, 0); err != nil || stats.Total != 0 {
		t.Fatalf("Stats after reset = %+v, %v", stats, err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := statestore.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.SaveTrackedFile(context.Background(), "/w/x.xlsx", "x", time.Now()); err != nil {
		t.Fatalf("SaveTrackedFile: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	files, err := reopened.TrackedFiles(context.Background())
	if err != nil {
		t.Fatalf("TrackedFiles: %v", err)
	}
	if len(files) != 1 || files[0].DisplayName != "x" {
		t.Fatalf("unexpected files after reopen: %+v", files)
	}
}
