// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Request and response types embed the HTTP API DTOs from internal/api so the
// CLI, the HTTP surface, and the socket all render the same shapes.
package ipc
