// Package daemon hosts the background episode pipeline: it enforces
// single-instance execution with a file lock, runs startup preflight
// checks, supervises the workflow manager, and serves the HTTP API the
// CLI talks to.
package daemon
