// Package api defines wire-format types and converters shared by the IPC and
// HTTP API layers. It translates tracked spreadsheets and their jobs into
// transport-friendly DTOs that the CLI and browser dashboards can render
// without coupling to internal types.
//
// # Key Types
//
// FileSnapshot: one open spreadsheet with its status summary and, when
// requested, the full job list.
//
// Job: transport representation of a spreadsheet row including the matched
// result file.
//
// DaemonStatus: daemon running state, open files and license state.
//
// Event: a registry change streamed over the WebSocket endpoint.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Statuses are exposed
// both in their spreadsheet wire form and as a display label. Timestamps use
// RFC3339 with milliseconds.
package api
