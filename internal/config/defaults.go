package config

const (
	defaultConfigPath             = "~/.config/vmanga/config.toml"
	defaultStateDir               = "~/.local/share/vmanga"
	defaultLogDir                 = "~/.local/share/vmanga/logs"
	defaultLogRetentionDays       = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultDebounceMillis         = 300
	defaultSubdirPollSeconds      = 5
	defaultWatchdogInterval       = 60
	defaultWatchdogStaleThreshold = 300
	defaultNotifyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Watch: Watch{
			DebounceMillis:    defaultDebounceMillis,
			SubdirPollSeconds: defaultSubdirPollSeconds,
		},
		Watchdog: Watchdog{
			Enabled:               true,
			IntervalSeconds:       defaultWatchdogInterval,
			StaleThresholdSeconds: defaultWatchdogStaleThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			StuckReset:     true,
			Errors:         true,
		},
		License: License{
			Required: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
