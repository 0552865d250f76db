// Package logging wraps log/slog with the attribute helpers and standardized
// field names used across the pipeline.
//
// Components receive a *slog.Logger and enrich it with context-derived fields
// (job, stage, segment, correlation id) via WithContext. Construction happens
// once in the daemon or CLI entry point; everything else just logs.
package logging
