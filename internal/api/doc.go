// Package api defines the transport DTOs and the job service shared by the
// daemon's HTTP endpoints and the CLI's rendering code. Keeping both sides
// on the same types means a field added here shows up everywhere at once.
package api
