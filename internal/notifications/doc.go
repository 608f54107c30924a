// Package notifications delivers daemon events via ntfy.
//
// The ntfy implementation posts plain-text messages to the topic configured
// in config.toml and degrades to a no-op when no topic is set. Watchdog
// resets and failed user actions are individually switchable.
package notifications
