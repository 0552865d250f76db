package api_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"papercast/internal/api"
	"papercast/internal/jobs"
	"papercast/internal/services"
	"papercast/internal/testsupport"
)

func newService(t *testing.T) (*api.JobService, *jobs.Store, string) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(testsupport.BaseDir(cfg), "paper.txt")
	testsupport.WriteDocument(t, source, "Coral reefs host a quarter of marine species. Warming events bleach them repeatedly.")
	return api.NewJobService(store, cfg), store, source
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	svc, store, source := newService(t)
	ctx := context.Background()

	view, err := svc.Submit(ctx, api.SubmitRequest{Path: source, Title: "Reef Episode"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if view.Status != string(jobs.StatusPending) {
		t.Fatalf("status = %q, want pending", view.Status)
	}
	if view.Title != "Reef Episode" {
		t.Fatalf("title = %q", view.Title)
	}
	if view.Token == "" {
		t.Fatal("expected a job token")
	}
	if len(view.Speakers) < 2 {
		t.Fatalf("speakers = %v, want config defaults", view.Speakers)
	}

	job, err := store.GetByToken(ctx, view.Token)
	if err != nil || job == nil {
		t.Fatalf("GetByToken: job=%v err=%v", job, err)
	}
	doc, err := store.GetDocument(ctx, job.DocumentID)
	if err != nil || doc == nil {
		t.Fatalf("GetDocument: doc=%v err=%v", doc, err)
	}
	if doc.StagedPath == "" {
		t.Fatal("expected document to be staged")
	}
	if doc.WordCount == 0 {
		t.Fatal("expected word count on the document row")
	}
}

func TestSubmitReusesDocumentByHash(t *testing.T) {
	svc, store, source := newService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, api.SubmitRequest{Path: source})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// A second submission while the first job is still live is rejected.
	if _, err := svc.Submit(ctx, api.SubmitRequest{Path: source}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("duplicate submit: err = %v, want configuration error", err)
	}

	job, err := store.GetByToken(ctx, first.Token)
	if err != nil || job == nil {
		t.Fatalf("GetByToken: job=%v err=%v", job, err)
	}
	job.SetFailed("stage crashed")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	second, err := svc.Submit(ctx, api.SubmitRequest{Path: source})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if first.DocumentID != second.DocumentID {
		t.Fatalf("document ids differ: %d vs %d", first.DocumentID, second.DocumentID)
	}
	if first.Token == second.Token {
		t.Fatal("expected distinct jobs for repeated submissions")
	}
}

func TestSubmitRejectsUnknownStyle(t *testing.T) {
	svc, _, source := newService(t)

	_, err := svc.Submit(context.Background(), api.SubmitRequest{Path: source, Style: "interpretive-dance"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestSubmitRejectsMissingSource(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Submit(context.Background(), api.SubmitRequest{Path: "/nonexistent/paper.txt"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found error", err)
	}
}

func TestDescribeUnknownToken(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Describe(context.Background(), "no-such-token")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found error", err)
	}
}

func TestDescribeIncludesReportAndSegments(t *testing.T) {
	svc, store, source := newService(t)
	ctx := context.Background()

	submitted, err := svc.Submit(ctx, api.SubmitRequest{Path: source})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := store.GetByToken(ctx, submitted.Token)
	if err != nil || job == nil {
		t.Fatalf("GetByToken: job=%v err=%v", job, err)
	}
	segments := []jobs.Segment{{
		Index:  0,
		Status: jobs.SegmentVerified,
		Lines: []jobs.ScriptLine{
			{Speaker: "host", Text: "Reefs host many species.", Kind: jobs.LineContent, Verdict: jobs.VerdictVerified},
		},
	}}
	if err := job.SetSegments(segments); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}
	if err := job.SetReport(jobs.BuildReport(segments, 1)); err != nil {
		t.Fatalf("SetReport: %v", err)
	}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	view, err := svc.Describe(ctx, submitted.Token)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if view.Report == nil {
		t.Fatal("expected report view")
	}
	if view.Report.VerifiedLines != 1 || view.Report.ContentLines != 1 {
		t.Fatalf("report = %+v", view.Report)
	}
	if len(view.Segments) != 1 || view.Segments[0].Lines != 1 {
		t.Fatalf("segments = %+v", view.Segments)
	}
	if view.Segments[0].VerifiedFraction != 1 {
		t.Fatalf("verified fraction = %v", view.Segments[0].VerifiedFraction)
	}
}

func TestReportBeforeCompletion(t *testing.T) {
	svc, _, source := newService(t)
	ctx := context.Background()

	submitted, err := svc.Submit(ctx, api.SubmitRequest{Path: source})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = svc.Report(ctx, submitted.Token)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not-found error", err)
	}
}

func TestRetryRequiresFailedJob(t *testing.T) {
	svc, store, source := newService(t)
	ctx := context.Background()

	submitted, err := svc.Submit(ctx, api.SubmitRequest{Path: source})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Retry(ctx, submitted.Token); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("retry of pending job: err = %v, want configuration error", err)
	}

	job, err := store.GetByToken(ctx, submitted.Token)
	if err != nil || job == nil {
		t.Fatalf("GetByToken: job=%v err=%v", job, err)
	}
	job.SetFailed("synthesis backend unreachable")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	requeued, err := svc.Retry(ctx, submitted.Token)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if requeued.Status == string(jobs.StatusFailed) {
		t.Fatalf("status = %q after retry", requeued.Status)
	}
	if requeued.ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", requeued.ErrorMessage)
	}
}

func TestRemoveRejectsProcessingJob(t *testing.T) {
	svc, store, source := newService(t)
	ctx := context.Background()

	submitted, err := svc.Submit(ctx, api.SubmitRequest{Path: source})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := store.GetByToken(ctx, submitted.Token)
	if err != nil || job == nil {
		t.Fatalf("GetByToken: job=%v err=%v", job, err)
	}
	job.Status = jobs.StatusIndexing
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := svc.Remove(ctx, submitted.Token); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}

	job.Status = jobs.StatusIndexed
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := svc.Remove(ctx, submitted.Token); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := svc.Describe(ctx, submitted.Token); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected job gone, err = %v", err)
	}
}

func TestListSortsNewestFirst(t *testing.T) {
	svc, _, source := newService(t)
	ctx := context.Background()

	other := filepath.Join(filepath.Dir(source), "other.txt")
	testsupport.WriteDocument(t, other, "Kelp forests buffer coastlines and shelter juvenile fish through winter storms.")

	first, err := svc.Submit(ctx, api.SubmitRequest{Path: source, Title: "First"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := svc.Submit(ctx, api.SubmitRequest{Path: other, Title: "Second"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Jobs) != 2 {
		t.Fatalf("len(jobs) = %d", len(list.Jobs))
	}
	if list.Jobs[0].Token != second.Token || list.Jobs[1].Token != first.Token {
		t.Fatalf("jobs not newest first: %q, %q", list.Jobs[0].Token, list.Jobs[1].Token)
	}
}

func TestClearModes(t *testing.T) {
	svc, store, source := newService(t)
	ctx := context.Background()

	submitted, err := svc.Submit(ctx, api.SubmitRequest{Path: source})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, err := store.GetByToken(ctx, submitted.Token)
	if err != nil || job == nil {
		t.Fatalf("GetByToken: job=%v err=%v", job, err)
	}
	job.SetFailed("boom")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if count, err := svc.Clear(ctx, api.ClearCompletedMode); err != nil || count != 0 {
		t.Fatalf("clear completed: count=%d err=%v", count, err)
	}
	count, err := svc.Clear(ctx, api.ClearFailedMode)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("cleared %d failed jobs, want 1", count)
	}
	if _, err := svc.Clear(ctx, api.ClearMode("everything")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
