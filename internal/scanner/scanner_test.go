package scanner_test

import (
	"os"
	"path/filepath"
	"testing"

	"vmanga/internal/jobs"
	"vmanga/internal/scanner"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScanPrefersConventionMatch(t *testing.T) {
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "Out.xlsx")
	touch(t, filepath.Join(dir, "Out_1_backup.png"))
	touch(t, filepath.Join(dir, "Image_J1_Out_1.png"))

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1"}}, sheetPath)
	want := filepath.Join(dir, "Image_J1_Out_1.png")
	if got[0].ResultPath != want {
		t.Fatalf("expected %s, got %s", want, got[0].ResultPath)
	}
	if got[0].Status != jobs.StatusCompleted {
		t.Fatalf("expected Completed, got %v", got[0].Status)
	}
}

func TestScanConventionMatchIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "VIDEO_j1_OUT_1.MP4"))

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1"}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath == "" {
		t.Fatal("expected case-insensitive convention match")
	}
}

func TestScanDigitBoundary(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Out_10.png"))

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1"}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != "" || got[0].Status != jobs.StatusEmpty {
		t.Fatalf("Out_1 must not match Out_10: %#v", got[0])
	}

	touch(t, filepath.Join(dir, "render_out_1.webm"))
	got = scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1"}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != filepath.Join(dir, "render_out_1.webm") {
		t.Fatalf("expected fallback match at end of name, got %q", got[0].ResultPath)
	}
}

func TestScanIgnoresOtherExtensionsAndDirectories(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Image_J1_Out_1.txt"))
	if err := os.MkdirAll(filepath.Join(dir, "Image_J1_Out_1.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1"}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != "" {
		t.Fatalf("unexpected match: %s", got[0].ResultPath)
	}
}

func TestScanSubfolderAndEndToEnd(t *testing.T) {
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "Out.xlsx")
	touch(t, filepath.Join(dir, "Out", "Image_Job_1_Out_1.png"))

	in := []jobs.Job{
		{ID: "Job_1", ResultName: "Out_1"},
		{ID: "Job_2", ResultName: "Out_2"},
	}
	got := scanner.New(nil).Scan(in, sheetPath)
	if got[0].Status != jobs.StatusCompleted || got[0].ResultPath != filepath.Join(dir, "Out", "Image_Job_1_Out_1.png") {
		t.Fatalf("unexpected job 1: %#v", got[0])
	}
	if got[1].Status != jobs.StatusEmpty || got[1].ResultPath != "" {
		t.Fatalf("unexpected job 2: %#v", got[1])
	}
	if in[0].ResultPath != "" {
		t.Fatal("scan must not mutate its input")
	}
}

func TestScanKeepsExistingResultPath(t *testing.T) {
	dir := t.TempDir()
	manual := filepath.Join(t.TempDir(), "elsewhere.mp4")
	touch(t, manual)
	touch(t, filepath.Join(dir, "Image_J1_Out_1.png"))

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1", ResultPath: manual}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != manual {
		t.Fatalf("expected sticky result path, got %s", got[0].ResultPath)
	}
	if got[0].Status != jobs.StatusCompleted {
		t.Fatalf("expected existing result to imply Completed, got %v", got[0].Status)
	}
}

func TestScanDropsVanishedResultPath(t *testing.T) {
	dir := t.TempDir()
	gone := filepath.Join(t.TempDir(), "moved.mp4")

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1", Status: jobs.StatusCompleted, ResultPath: gone}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != "" {
		t.Fatalf("expected vanished result path to be cleared, got %s", got[0].ResultPath)
	}
	if !got[0].ResultMissing() {
		t.Fatalf("expected job to report a missing result, got %+v", got[0])
	}

	touch(t, filepath.Join(dir, "Image_J1_Out_1.png"))
	got = scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Out_1", ResultPath: gone}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != filepath.Join(dir, "Image_J1_Out_1.png") {
		t.Fatalf("expected rematch after file vanished, got %s", got[0].ResultPath)
	}
}

func TestScanAmbiguousFallbackIsLexicographic(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b_Shot.png"))
	touch(t, filepath.Join(dir, "a_Shot.png"))

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1", ResultName: "Shot"}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != filepath.Join(dir, "a_Shot.png") {
		t.Fatalf("expected lexicographically first candidate, got %s", got[0].ResultPath)
	}
}

func TestScanEmptyResultNameNeverFallsBack(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "anything.png"))

	got := scanner.New(nil).Scan([]jobs.Job{{ID: "J1"}}, filepath.Join(dir, "Out.xlsx"))
	if got[0].ResultPath != "" {
		t.Fatalf("unexpected match for empty result name: %s", got[0].ResultPath)
	}
}

func TestResultDirAndCandidates(t *testing.T) {
	dir := t.TempDir()
	sheetPath := filepath.Join(dir, "Episode 3.xlsx")
	if got := scanner.ResultDir(sheetPath); got != filepath.Join(dir, "Episode 3") {
		t.Fatalf("unexpected result dir %s", got)
	}
	if got := scanner.CandidateDirs(sheetPath); len(got) != 1 {
		t.Fatalf("expected only parent before subdir exists, got %v", got)
	}
	if err := os.Mkdir(filepath.Join(dir, "Episode 3"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := scanner.CandidateDirs(sheetPath); len(got) != 2 {
		t.Fatalf("expected parent and subdir, got %v", got)
	}
}
