package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vmanga/internal/config"
)

func writeConfig(t *testing.T, path string, payload any) {
	t.Helper()
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadDefaultConfigRequiresLicenseSecret(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected validation error without license secret")
	}
	if !strings.Contains(err.Error(), "license.secret") {
		t.Fatalf("expected license.secret in error, got %v", err)
	}
}

func TestLoadExpandsPathsAndAppliesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(t.TempDir(), "vmanga.toml")

	type payload struct {
		License struct {
			Secret string `toml:"secret"`
		} `toml:"license"`
	}
	custom := payload{}
	custom.License.Secret = "s3cret"
	writeConfig(t, configPath, custom)

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "vmanga")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.APIBind != "" {
		t.Fatalf("expected API disabled by default, got %q", cfg.Paths.APIBind)
	}
	if cfg.Watch.DebounceMillis != 300 || cfg.Watch.SubdirPollSeconds != 5 {
		t.Fatalf("unexpected watch defaults: %+v", cfg.Watch)
	}
	if !cfg.Watchdog.Enabled || cfg.Watchdog.StaleThresholdSeconds != 300 {
		t.Fatalf("unexpected watchdog defaults: %+v", cfg.Watchdog)
	}
	if !cfg.License.Required || cfg.License.Secret != "s3cret" {
		t.Fatalf("unexpected license section: %+v", cfg.License)
	}
	if cfg.SocketPath() != filepath.Join(wantState, "vmanga.sock") {
		t.Fatalf("unexpected socket path %q", cfg.SocketPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vmanga.toml")
	stateDir := t.TempDir()

	type payload struct {
		Paths struct {
			StateDir string `toml:"state_dir"`
			APIBind  string `toml:"api_bind"`
		} `toml:"paths"`
		Watch struct {
			DebounceMillis int `toml:"debounce_ms"`
		} `toml:"watch"`
		License struct {
			Required bool `toml:"required"`
		} `toml:"license"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.StateDir = stateDir
	custom.Paths.APIBind = "127.0.0.1:7600"
	custom.Watch.DebounceMillis = 50
	custom.License.Required = false
	custom.Logging.Format = " JSON "
	writeConfig(t, configPath, custom)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.StateDir != stateDir {
		t.Fatalf("expected state dir %q, got %q", stateDir, cfg.Paths.StateDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7600" {
		t.Fatalf("unexpected api bind %q", cfg.Paths.APIBind)
	}
	if cfg.Watch.DebounceMillis != 50 {
		t.Fatalf("expected debounce 50, got %d", cfg.Watch.DebounceMillis)
	}
	if cfg.License.Required {
		t.Fatal("expected license requirement disabled")
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", cfg.Logging.Format)
	}
}

func TestEnvVarOverridesEmptyAPIToken(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vmanga.toml")
	type payload struct {
		License struct {
			Required bool `toml:"required"`
		} `toml:"license"`
	}
	writeConfig(t, configPath, payload{})
	t.Setenv("VMANGA_API_TOKEN", " env-token ")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.Paths.APIToken)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StateDir, "vmanga") {
		t.Fatalf("expected state dir to contain vmanga, got %q", cfg.Paths.StateDir)
	}
	if cfg.Watch.DebounceMillis != 300 {
		t.Fatalf("expected sample debounce 300, got %d", cfg.Watch.DebounceMillis)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Paths.StateDir = "/tmp/vmanga"
		cfg.Paths.LogDir = "/tmp/vmanga/logs"
		cfg.License.Secret = "secret"
		return cfg
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected base config to validate: %v", err)
	}

	cfg = base()
	cfg.Watchdog.IntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive watchdog interval")
	}

	cfg = base()
	cfg.Paths.APIBind = "no-port"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed api bind")
	}

	cfg = base()
	cfg.Notifications.NtfyTopic = "just-a-topic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for topic without scheme")
	}

	cfg = base()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestEncodeRoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.License.Secret = "abc"
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.License.Secret != "abc" || decoded.Watch.DebounceMillis != cfg.Watch.DebounceMillis {
		t.Fatalf("unexpected decoded config: %+v", decoded)
	}
}
