// Package logging assembles structured slog loggers and formatting helpers used
// across vmanga.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes helpers that tag records with the component, the
// spreadsheet being synchronized, job ids, and request correlation ids. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail, plus age-based pruning of old log files.
package logging
