// Package daemon coordinates the long-running vmanga process.
//
// It wires configuration, the state store, the synchronization engine and the
// license gate into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon restores previously open spreadsheets,
// drives the stuck-job watchdog, and optionally serves the HTTP/WebSocket API.
//
// Keep orchestration logic here: refresh cycles and spreadsheet writes live in
// the engine and its packages while the daemon focuses on startup, shutdown,
// the activation gate and transport-facing helpers shared by IPC and HTTP.
package daemon
