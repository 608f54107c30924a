// Package daemonrun hosts the long-lived daemon process started by
// `vmanga daemon`.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vmanga/internal/config"
	"vmanga/internal/daemon"
	"vmanga/internal/engine"
	"vmanga/internal/ipc"
	"vmanga/internal/license"
	"vmanga/internal/logging"
	"vmanga/internal/notifications"
	"vmanga/internal/statestore"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	SocketPath  string
}

// Run starts the daemon and blocks until a signal or an IPC stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	startedAt := time.Now()
	archived, rotateErr := logging.RotateLog(logPath, startedAt)
	if rotateErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to rotate %s: %v\n", logPath, rotateErr)
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if archived != "" {
		logger.Debug("previous log archived", logging.String("path", archived))
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, startedAt,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logging.ArchivePattern(logPath), Exclude: []string{logPath}},
	)

	pidPath := cfg.DaemonPIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := statestore.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg)
	eng, err := engine.New(cfg, store, notifier, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create engine: %w", err)
	}
	lic, err := license.Open(cfg.LicensePath(), cfg.License.Secret, cfg.License.Required)
	if err != nil {
		eng.Close()
		_ = store.Close()
		return fmt.Errorf("open license: %w", err)
	}

	d, err := daemon.New(cfg, store, eng, lic, notifier, logger)
	if err != nil {
		eng.Close()
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("vmanga daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", socketPath),
		logging.String("api_bind", d.APIAddr()),
		logging.Bool("license_required", lic.Required()),
		logging.Bool("license_activated", lic.IsActivated()),
	)

	<-signalCtx.Done()
	logger.Info("vmanga daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
