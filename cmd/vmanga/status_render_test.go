package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Daemon", statusOK, "Running", false)
	if !strings.Contains(line, "Daemon:") || !strings.HasSuffix(line, "[OK] Running") {
		t.Fatalf("unexpected line %q", line)
	}
	colored := renderStatusLine("Daemon", statusError, "", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red line, got %q", colored)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	cases := []struct {
		in   string
		want statusKind
	}{
		{in: "ok", want: statusOK},
		{in: " WARN ", want: statusWarn},
		{in: "error", want: statusError},
		{in: "", want: statusInfo},
	}
	for _, tc := range cases {
		if got := statusKindFromSeverity(tc.in); got != tc.want {
			t.Fatalf("statusKindFromSeverity(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestColorizeJobStatus(t *testing.T) {
	if got := colorizeJobStatus("Failed", false); got != "Failed" {
		t.Fatalf("expected plain label, got %q", got)
	}
	if got := colorizeJobStatus("Completed", true); got != ansiGreen+"Completed"+ansiReset {
		t.Fatalf("unexpected colour %q", got)
	}
	if got := colorizeJobStatus("Idle", true); got != "Idle" {
		t.Fatalf("expected idle to stay uncoloured, got %q", got)
	}
}

func TestShouldColorizeNonTTY(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}
