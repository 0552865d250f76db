package api

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"papercast/internal/config"
	"papercast/internal/index"
	"papercast/internal/ingest"
	"papercast/internal/jobs"
	"papercast/internal/services"
)

// JobStore is the subset of the job store the service needs. The daemon
// passes its live store; tests can substitute a narrower fixture.
type JobStore interface {
	NewDocument(ctx context.Context, title, sourcePath, stagedPath, contentHash string, pages, wordCount int) (*jobs.Document, error)
	FindDocumentByHash(ctx context.Context, contentHash string) (*jobs.Document, error)
	NewJob(ctx context.Context, documentID int64, title, style string, speakers []string) (*jobs.Job, error)
	GetByToken(ctx context.Context, token string) (*jobs.Job, error)
	ActiveJobForDocument(ctx context.Context, documentID int64) (*jobs.Job, error)
	List(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error)
	Remove(ctx context.Context, id int64) (bool, error)
	RetryFailed(ctx context.Context, ids ...int64) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int64, error)
}

// JobService implements the job operations shared by the HTTP API and the
// CLI. It owns submission, inspection, and maintenance of episode jobs.
type JobService struct {
	store JobStore
	cfg   *config.Config
}

// NewJobService constructs a JobService.
func NewJobService(store JobStore, cfg *config.Config) *JobService {
	return &JobService{store: store, cfg: cfg}
}

// Submit loads and stages a source document, then enqueues an episode job
// for it. Documents are deduplicated by content hash, so resubmitting the
// same file reuses the stored document and its embeddings. A document can
// only carry one live job at a time; resubmission is allowed once that job
// completes or fails.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (JobView, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return JobView{}, services.Wrap(services.ErrConfiguration, "api", "submit", "Source path is required", nil)
	}

	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = s.cfg.Episode.Style
	}
	if _, err := index.LoadPatterns(style); err != nil {
		return JobView{}, services.Wrap(services.ErrConfiguration, "api", "submit", fmt.Sprintf("Unknown episode style %q", style), err)
	}

	speakers := req.Speakers
	if len(speakers) == 0 {
		speakers = s.cfg.Episode.Speakers
	}
	if len(speakers) < 2 {
		return JobView{}, services.Wrap(services.ErrConfiguration, "api", "submit", "At least two speakers are required", nil)
	}

	loaded, err := ingest.Load(path)
	if err != nil {
		return JobView{}, err
	}

	doc, err := s.store.FindDocumentByHash(ctx, loaded.ContentHash)
	if err != nil {
		return JobView{}, services.Wrap(services.ErrTransient, "api", "submit", "Failed to look up document", err)
	}
	if doc == nil {
		stagedPath, err := ingest.Stage(s.cfg.Paths.StagingDir, path, loaded.ContentHash)
		if err != nil {
			return JobView{}, err
		}
		doc, err = s.store.NewDocument(ctx, loaded.Title, path, stagedPath, loaded.ContentHash, loaded.Pages, loaded.WordCount)
		if err != nil {
			return JobView{}, services.Wrap(services.ErrTransient, "api", "submit", "Failed to record document", err)
		}
	}

	// One active job per document; a second run for the same source has to
	// wait until the first completes or fails.
	active, err := s.store.ActiveJobForDocument(ctx, doc.ID)
	if err != nil {
		return JobView{}, services.Wrap(services.ErrTransient, "api", "submit", "Failed to check for active jobs", err)
	}
	if active != nil {
		return JobView{}, services.Wrap(services.ErrConfiguration, "api", "submit",
			fmt.Sprintf("Document already has an active job %s (%s)", active.Token, active.Status), nil)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = doc.Title
	}

	job, err := s.store.NewJob(ctx, doc.ID, title, style, speakers)
	if err != nil {
		return JobView{}, services.Wrap(services.ErrTransient, "api", "submit", "Failed to enqueue job", err)
	}
	return FromJob(job), nil
}

// List returns all jobs, optionally filtered by status, newest first.
func (s *JobService) List(ctx context.Context, statuses ...jobs.Status) (JobListResponse, error) {
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return JobListResponse{}, services.Wrap(services.ErrTransient, "api", "list", "Failed to list jobs", err)
	}
	views := make([]JobView, 0, len(items))
	for _, job := range items {
		views = append(views, FromJob(job))
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	return JobListResponse{Jobs: views}, nil
}

// Describe returns the detail view for one job, including its verification
// report and per-segment breakdown when present.
func (s *JobService) Describe(ctx context.Context, token string) (JobView, error) {
	job, err := s.lookup(ctx, token)
	if err != nil {
		return JobView{}, err
	}
	view := FromJob(job)
	if report, err := job.GetReport(); err == nil && report != nil {
		rv := FromReport(*report)
		view.Report = &rv
	}
	if segments, err := job.Segments(); err == nil {
		view.Segments = segmentRows(segments)
	}
	return view, nil
}

// Report returns the verification report for a job.
func (s *JobService) Report(ctx context.Context, token string) (ReportView, error) {
	job, err := s.lookup(ctx, token)
	if err != nil {
		return ReportView{}, err
	}
	report, err := job.GetReport()
	if err != nil {
		return ReportView{}, services.Wrap(services.ErrStructural, "api", "report", "Stored report is corrupt", err)
	}
	if report == nil {
		return ReportView{}, services.Wrap(services.ErrNotFound, "api", "report", "Job has no report yet", nil)
	}
	return FromReport(*report), nil
}

// Retry requeues a failed job at its last completed stage boundary.
func (s *JobService) Retry(ctx context.Context, token string) (JobView, error) {
	job, err := s.lookup(ctx, token)
	if err != nil {
		return JobView{}, err
	}
	if job.Status != jobs.StatusFailed {
		return JobView{}, services.Wrap(services.ErrConfiguration, "api", "retry", fmt.Sprintf("Job is %s, only failed jobs can be retried", job.Status), nil)
	}
	if _, err := s.store.RetryFailed(ctx, job.ID); err != nil {
		return JobView{}, services.Wrap(services.ErrTransient, "api", "retry", "Failed to requeue job", err)
	}
	refreshed, err := s.lookup(ctx, token)
	if err != nil {
		return JobView{}, err
	}
	return FromJob(refreshed), nil
}

// RetryAll requeues every failed job and returns how many were touched.
func (s *JobService) RetryAll(ctx context.Context) (int64, error) {
	count, err := s.store.RetryFailed(ctx)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "api", "retry", "Failed to requeue jobs", err)
	}
	return count, nil
}

// Remove deletes a job. In-flight jobs cannot be removed.
func (s *JobService) Remove(ctx context.Context, token string) error {
	job, err := s.lookup(ctx, token)
	if err != nil {
		return err
	}
	if job.IsProcessing() {
		return services.Wrap(services.ErrConfiguration, "api", "remove", "Job is currently processing", nil)
	}
	removed, err := s.store.Remove(ctx, job.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api", "remove", "Failed to remove job", err)
	}
	if !removed {
		return services.Wrap(services.ErrNotFound, "api", "remove", "Job not found", nil)
	}
	return nil
}

// ClearMode selects which jobs a Clear call deletes.
type ClearMode string

const (
	ClearCompletedMode ClearMode = "completed"
	ClearFailedMode    ClearMode = "failed"
	ClearAllMode       ClearMode = "all"
)

// Clear deletes finished jobs according to mode.
func (s *JobService) Clear(ctx context.Context, mode ClearMode) (int64, error) {
	var (
		count int64
		err   error
	)
	switch mode {
	case ClearCompletedMode:
		count, err = s.store.ClearCompleted(ctx)
	case ClearFailedMode:
		count, err = s.store.ClearFailed(ctx)
	case ClearAllMode:
		count, err = s.store.Clear(ctx)
	default:
		return 0, services.Wrap(services.ErrConfiguration, "api", "clear", fmt.Sprintf("Unknown clear mode %q", mode), nil)
	}
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "api", "clear", "Failed to clear jobs", err)
	}
	return count, nil
}

func (s *JobService) lookup(ctx context.Context, token string) (*jobs.Job, error) {
	job, err := s.store.GetByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "lookup", "Failed to load job", err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "lookup", fmt.Sprintf("No job with token %q", token), nil)
	}
	return job, nil
}
