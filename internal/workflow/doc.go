// Package workflow advances episode jobs through the configured processing
// stages.
//
// The Manager polls the job store, reclaims stale work via heartbeats, and
// feeds jobs into registered stage handlers (indexer, planner, scriptgen,
// assembler) while capturing progress and failure metadata. Each stage runs
// under the job's wall-clock budget; exceeding it fails the job with
// whatever partial script the drafting stage persisted.
//
// Add new lifecycle stages by extending StageSet, updating the job status
// enums, and teaching the manager how to transition jobs; this package is
// the authoritative home for that coordination logic.
package workflow
