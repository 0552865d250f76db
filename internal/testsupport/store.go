package testsupport

import (
	"context"
	"testing"

	"papercast/internal/config"
	"papercast/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewDocument creates a document row for tests using the provided store.
func NewDocument(t testing.TB, store *jobs.Store, title, sourcePath string) *jobs.Document {
	t.Helper()

	doc, err := store.NewDocument(context.Background(), title, sourcePath, "", "", 1, 100)
	if err != nil {
		t.Fatalf("store.NewDocument: %v", err)
	}
	return doc
}

// NewJob creates a pending episode job for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, documentID int64) *jobs.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), documentID, "Test Episode", "conversational", []string{"host", "expert"})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
