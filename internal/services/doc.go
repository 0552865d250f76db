// Package services holds the error taxonomy and context plumbing shared by
// the pipeline stages and capability clients.
//
// Errors are tagged with sentinel markers (transient, content, structural,
// fatal) so the workflow manager can decide whether a failure retries, drives
// the rewrite loop, fails a single segment, or aborts the whole job.
package services
