// Package preflight provides readiness checks for the filesystem paths and
// services vmanga depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs failures.
//   - The engine calls CheckSpreadsheetDir before opening a spreadsheet so a
//     read-only folder is rejected before anything is watched.
//
// The ntfy check only runs when a topic is configured.
package preflight
