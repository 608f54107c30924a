package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"vmanga/internal/debounce"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestBurstCollapsesToOneCall(t *testing.T) {
	var calls atomic.Int32
	d := debounce.New(40*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	for i := 0; i < 20; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	waitFor(t, time.Second, func() bool { return calls.Load() == 1 })
	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one call, got %d", got)
	}
}

func TestSeparatedBurstsFireSeparately(t *testing.T) {
	var calls atomic.Int32
	d := debounce.New(20*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	d.Trigger()
	waitFor(t, time.Second, func() bool { return calls.Load() == 1 })
	d.Trigger()
	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })
}

func TestStopCancelsPending(t *testing.T) {
	var calls atomic.Int32
	d := debounce.New(30*time.Millisecond, func() { calls.Add(1) })
	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("expected no calls after stop, got %d", calls.Load())
	}
	if d.Pending() {
		t.Fatal("expected nothing pending after stop")
	}
}

func TestFlushRunsImmediately(t *testing.T) {
	var calls atomic.Int32
	d := debounce.New(time.Hour, func() { calls.Add(1) })
	defer d.Stop()

	d.Flush()
	if calls.Load() != 0 {
		t.Fatal("flush without pending trigger must not call")
	}
	d.Trigger()
	d.Flush()
	if calls.Load() != 1 {
		t.Fatalf("expected flush to run pending call, got %d", calls.Load())
	}
}
