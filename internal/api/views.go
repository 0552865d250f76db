package api

import (
	"os"
	"sort"
	"time"

	"papercast/internal/jobs"
	"papercast/internal/preflight"
	"papercast/internal/workflow"
)

// FromJob builds the transport view of a job.
func FromJob(job *jobs.Job) JobView {
	view := JobView{
		ID:     job.ID,
		Token:  job.Token,
		Title:  job.Title,
		Style:  job.Style,
		Status: string(job.Status),
		Progress: JobProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		ErrorMessage:   job.ErrorMessage,
		RewritesUsed:   job.RewritesUsed,
		EpisodePath:    job.EpisodePath,
		TranscriptPath: job.TranscriptPath,
		DocumentID:     job.DocumentID,
		Speakers:       job.Speakers(),
	}
	if !job.CreatedAt.IsZero() {
		view.CreatedAt = job.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !job.UpdatedAt.IsZero() {
		view.UpdatedAt = job.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return view
}

// FromReport builds the transport view of a verification report.
func FromReport(report jobs.Report) ReportView {
	return ReportView{
		ContentLines:     report.ContentLines,
		VerifiedLines:    report.VerifiedLines,
		UnsupportedLines: report.UnsupportedLines,
		VerifiedFraction: report.VerifiedFraction,
		RewritesUsed:     report.RewritesUsed,
		EpisodeSeconds:   report.EpisodeSeconds,
	}
}

func segmentRows(segments []jobs.Segment) []SegmentRow {
	if len(segments) == 0 {
		return nil
	}
	rows := make([]SegmentRow, 0, len(segments))
	for _, segment := range segments {
		rows = append(rows, SegmentRow{
			Index:            segment.Index,
			Status:           string(segment.Status),
			Lines:            len(segment.Lines),
			Rewrites:         segment.Rewrites,
			VerifiedFraction: segment.VerifiedFraction(),
		})
	}
	return rows
}

// FromStatusSummary builds the transport view of the workflow state.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:   summary.Running,
		LastError: summary.LastError,
		JobStats:  make(map[string]int, len(summary.JobStats)),
	}
	for jobStatus, count := range summary.JobStats {
		status.JobStats[string(jobStatus)] = count
	}
	if summary.LastJob != nil {
		view := FromJob(summary.LastJob)
		status.LastJob = &view
	}
	for _, health := range summary.StageHealth {
		status.StageHealth = append(status.StageHealth, StageHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	sort.Slice(status.StageHealth, func(i, j int) bool {
		return status.StageHealth[i].Name < status.StageHealth[j].Name
	})
	return status
}

// FromChecks builds the transport view of preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	views := make([]CheckResult, 0, len(results))
	for _, result := range results {
		views = append(views, CheckResult{
			Name:   result.Name,
			Passed: result.Passed,
			Detail: result.Detail,
		})
	}
	return views
}

// NewDaemonStatus assembles the daemon status payload.
func NewDaemonStatus(running bool, workflowStatus WorkflowStatus, jobDBPath, lockFilePath string, checks []CheckResult) DaemonStatus {
	return DaemonStatus{
		Running:      running,
		PID:          os.Getpid(),
		JobDBPath:    jobDBPath,
		LockFilePath: lockFilePath,
		Workflow:     workflowStatus,
		Preflight:    checks,
	}
}
