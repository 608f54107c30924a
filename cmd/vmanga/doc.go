// Command vmanga is the command-line entry point for the vmanga job-state
// daemon.
//
// Most commands talk to the running daemon over its JSON-RPC socket; `start`
// launches it when needed. `author` and `config` work locally without a
// daemon. Output is rendered with go-pretty tables, or as JSON with --json.
package main
