// Package config loads, normalizes, and validates vmanga configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the VMANGA_API_TOKEN environment
// fallback. The Config type centralizes every knob the daemon and CLI need:
// state and log directories, watcher timing, the stuck-job watchdog, ntfy
// notifications, and the license gate.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
