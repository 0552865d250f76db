// Package preflight provides readiness checks for the directories and
// capability endpoints the daemon depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to process jobs while a
//     required check fails, so a job never burns its time budget against an
//     unreachable provider.
//   - The CLI "papercast status" command renders the individual results so
//     misconfiguration is visible before submitting work.
package preflight
