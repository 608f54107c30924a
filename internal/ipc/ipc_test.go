package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vmanga/internal/config"
	"vmanga/internal/daemon"
	"vmanga/internal/engine"
	"vmanga/internal/ipc"
	"vmanga/internal/jobs"
	"vmanga/internal/license"
	"vmanga/internal/logging"
	"vmanga/internal/testsupport"
)

func startServer(t *testing.T, cfg *config.Config, shutdown func()) *ipc.Client {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	eng, err := engine.New(cfg, store, nil, logger)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	lic, err := license.Open(cfg.LicensePath(), cfg.License.Secret, cfg.License.Required)
	if err != nil {
		t.Fatalf("license.Open: %v", err)
	}
	d, err := daemon.New(cfg, store, eng, lic, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger, shutdown)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := startServer(t, cfg, nil)

	path := filepath.Join(testsupport.BaseDir(cfg), "work", "Out.xlsx")
	testsupport.WriteWorkbook(t, path, []jobs.Job{
		{ID: "Job_1", ResultName: "Out_1", Kind: jobs.KindImage, Status: jobs.StatusFailed},
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}

	opened, err := client.FileOpen(path)
	if err != nil {
		t.Fatalf("FileOpen: %v", err)
	}
	if !opened.File.Active || opened.File.Summary.Total != 1 {
		t.Fatalf("unexpected open snapshot %+v", opened.File)
	}

	list, err := client.FileList()
	if err != nil {
		t.Fatalf("FileList: %v", err)
	}
	if list.Active != path || len(list.Files) != 1 {
		t.Fatalf("unexpected file list %+v", list)
	}

	if err := client.JobRetry("", "Job_1"); err != nil {
		t.Fatalf("JobRetry: %v", err)
	}
	if got := testsupport.ReadWorkbook(t, path)[0].Status; got != jobs.StatusEmpty {
		t.Fatalf("expected retry to clear status, got %v", got)
	}
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		shown, err := client.FileShow("")
		return err == nil && len(shown.File.Jobs) == 1 && shown.File.Jobs[0].Status == ""
	})

	if err := client.JobRetry(path, "Job_404"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	stats, err := client.Stats(7)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats.History) != 7 {
		t.Fatalf("expected 7 days of history, got %d", len(stats.History))
	}
	if _, err := client.StatsClear(""); err != nil {
		t.Fatalf("StatsClear: %v", err)
	}
	if _, err := client.StatsClear("yesterday"); err == nil {
		t.Fatal("expected malformed day to be rejected")
	}

	lic, err := client.LicenseStatus()
	if err != nil {
		t.Fatalf("LicenseStatus: %v", err)
	}
	if lic.Required || lic.MachineID == "" {
		t.Fatalf("unexpected license status %+v", lic)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected no notification without a topic")
	}

	if err := client.FileClose(path); err != nil {
		t.Fatalf("FileClose: %v", err)
	}
	if _, err := client.FileShow(path); err == nil {
		t.Fatal("expected closed file to be unknown")
	}
}

func TestIPCStopInvokesShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var called atomic.Bool
	client := startServer(t, cfg, func() { called.Store(true) })

	resp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !resp.Stopped {
		t.Fatal("expected stop acknowledgement")
	}
	testsupport.WaitFor(t, 2*time.Second, called.Load)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to report stopped")
	}
}

func TestIPCLicenseGate(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLicense("gate-secret"))
	client := startServer(t, cfg, nil)

	path := filepath.Join(testsupport.BaseDir(cfg), "Out.xlsx")
	testsupport.WriteWorkbook(t, path, nil)
	if _, err := client.FileOpen(path); err == nil {
		t.Fatal("expected open to be refused before activation")
	}

	st, err := client.LicenseStatus()
	if err != nil {
		t.Fatalf("LicenseStatus: %v", err)
	}
	activated, err := client.LicenseActivate(license.Issue("gate-secret", st.MachineID))
	if err != nil {
		t.Fatalf("LicenseActivate: %v", err)
	}
	if !activated.Activated {
		t.Fatalf("expected activation, got %+v", activated)
	}
	if _, err := client.FileOpen(path); err != nil {
		t.Fatalf("FileOpen after activation: %v", err)
	}
}
