package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vmanga/internal/jobs"
	"vmanga/internal/sheet"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteWorkbook serializes list with the header layout and writes it to path.
func WriteWorkbook(t testing.TB, path string, list []jobs.Job) {
	t.Helper()

	data, err := sheet.Serialize(list)
	if err != nil {
		t.Fatalf("serialize workbook: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write workbook %s: %v", path, err)
	}
}

// ReadWorkbook parses the workbook at path.
func ReadWorkbook(t testing.TB, path string) []jobs.Job {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read workbook %s: %v", path, err)
	}
	list, err := sheet.Parse(data)
	if err != nil {
		t.Fatalf("parse workbook %s: %v", path, err)
	}
	return list
}

// WaitFor polls cond until it holds or timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
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
