// Package main hosts the papercast CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground and
// translates terminal invocations into HTTP calls against it: document
// submission, job inspection, verification reports, maintenance, and
// configuration scaffolding. It centralizes configuration resolution and
// API address discovery so subcommands can focus on user experience.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
