// Package jobs persists episode jobs and source documents in SQLite and
// exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-job recovery, and the validated status
// transitions the workflow manager relies on. Jobs carry their outline,
// segment scripts, and verification report as JSON columns so every stage
// boundary is resumable from the database alone.
//
// The database is treated as working state for in-flight episodes rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package jobs
