package testsupport

import (
	"path/filepath"
	"testing"

	"vmanga/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Watchdog loops are disabled and timings shortened so watcher tests settle
// quickly; the license gate is off unless WithLicense is applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Watch.DebounceMillis = 30
	cfgVal.Watch.SubdirPollSeconds = 1
	cfgVal.Watchdog.Enabled = false
	cfgVal.License.Required = false
	cfgVal.License.Secret = "test-secret"
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIBind enables the HTTP API on addr (use "127.0.0.1:0" for a free port).
func WithAPIBind(addr, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = addr
		b.cfg.Paths.APIToken = token
	}
}

// WithLicense turns the activation gate on with the given secret.
func WithLicense(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.License.Required = true
		b.cfg.License.Secret = secret
	}
}

// WithNtfyTopic points notifications at a test server.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}

// WithWatchdog enables the watchdog with the given stale threshold.
func WithWatchdog(thresholdSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watchdog.Enabled = true
		b.cfg.Watchdog.StaleThresholdSeconds = thresholdSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
