package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Watch tunes the filesystem watch controller.
type Watch struct {
	DebounceMillis    int `toml:"debounce_ms"`
	SubdirPollSeconds int `toml:"subdir_poll_seconds"`
}

// Watchdog controls the stuck-job sweep.
type Watchdog struct {
	Enabled               bool `toml:"enabled"`
	IntervalSeconds       int  `toml:"interval_seconds"`
	StaleThresholdSeconds int  `toml:"stale_threshold_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	StuckReset     bool   `toml:"stuck_reset"`
	Errors         bool   `toml:"errors"`
}

// License holds the device-activation gate settings.
type License struct {
	Required bool   `toml:"required"`
	Secret   string `toml:"secret"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for vmanga.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and the optional HTTP API bind
//   - Watch: debounce window and subfolder polling
//   - Watchdog: stuck-job detection cadence and threshold
//   - Notifications: ntfy push notification settings
//   - License: activation requirement and signing secret
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watch         Watch         `toml:"watch"`
	Watchdog      Watchdog      `toml:"watchdog"`
	Notifications Notifications `toml:"notifications"`
	License       License       `toml:"license"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute per-user config location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the config at path, or the first existing of the per-user file
// and ./vmanga.toml when path is empty. Missing files fall back to defaults.
// It returns the normalized config, the resolved path and whether that file
// existed.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// resolveConfigPath picks the file Load should read. An explicit path is
// returned even when absent so `config init` can create it there.
func resolveConfigPath(path string) (string, bool, error) {
	candidates := []string{path}
	if path == "" {
		candidates = []string{defaultConfigPath, "vmanga.toml"}
	}
	var first string
	for _, candidate := range candidates {
		expanded, err := expandPath(candidate)
		if err != nil {
			return "", false, err
		}
		if first == "" {
			first = expanded
		}
		info, err := os.Stat(expanded)
		switch {
		case err == nil && !info.IsDir():
			return expanded, true, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist) && path != "":
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}
	return first, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DaemonLockPath is the single-instance lock file held by a running daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "vmanga.lock")
}

// DaemonPIDPath is where the daemon records its process id.
func (c *Config) DaemonPIDPath() string {
	return filepath.Join(c.Paths.StateDir, "vmanga.pid")
}

// SocketPath is the default JSON-RPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "vmanga.sock")
}

// StorePath is the sqlite database holding tracked files and job timestamps.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.StateDir, "vmanga.db")
}

// SheetLockDir holds the advisory lock files guarding spreadsheet rewrites.
func (c *Config) SheetLockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// LicensePath is the persisted machine identity and activation key.
func (c *Config) LicensePath() string {
	return filepath.Join(c.Paths.StateDir, "license.toml")
}

// expandPath resolves "~" and "~/..." against the home directory and returns
// a cleaned absolute path. Empty stays empty.
func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, strings.TrimPrefix(value[1:], "/"))
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// ExpandPath applies the config path rules to CLI arguments, so paths sent
// to the daemon do not depend on the caller's working directory.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the commented sample config to path.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
