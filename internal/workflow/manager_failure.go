package workflow

import (
	"context"
	"errors"
	"strings"

	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, job *jobs.Job, stageErr error) {
	logger := m.stageLogger(ctx, m.logger, job)

	message := failureMessage(stageName, stageErr)
	job.SetFailed(message)

	// A job that failed mid-draft still carries its partial segments; surface
	// them as a report so the failure is inspectable.
	if job.ReportJSON == "" {
		if segments, err := job.Segments(); err == nil && len(segments) > 0 {
			_ = job.SetReport(jobs.BuildReport(segments, job.RewritesUsed))
		}
	}

	logger.Error("stage failed",
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
		logging.String("failure_class", classify(stageErr)),
	)

	if err := m.store.Update(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	m.setLastJob(job)
}

func failureMessage(stageName string, stageErr error) string {
	if stageErr != nil {
		if message := strings.TrimSpace(stageErr.Error()); message != "" {
			return message
		}
	}
	if stageName != "" {
		return stageName + " failed without error detail"
	}
	return "workflow failed without error detail"
}

func classify(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case services.IsFatal(err):
		return "fatal"
	case services.IsTransient(err):
		return "transient"
	case services.IsStructural(err):
		return "structural"
	case errors.Is(err, services.ErrContent):
		return "content"
	default:
		return "unknown"
	}
}
