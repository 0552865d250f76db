package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
)

func (m *Manager) processJob(ctx context.Context, runLogger *slog.Logger, job *jobs.Job) error {
	stg, ok := m.stageByStart[job.Status]
	if !ok {
		runLogger.Warn("no stage configured for status", logging.String("status", string(job.Status)))
		m.waitForJobOrShutdown(ctx)
		return nil
	}

	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(services.WithStage(services.WithJobID(ctx, job.ID), stg.name), requestID)
	stageLogger := m.stageLogger(stageCtx, runLogger, job)
	if aware, ok := stg.handler.(loggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	if err := m.transitionToProcessing(stageCtx, stg, job); err != nil {
		stageLogger.Error("failed to transition job to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}

	return m.executeStage(stageCtx, stageLogger, stg, job)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *jobs.Job) error {
	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("title", strings.TrimSpace(job.Title)),
	)

	if err := stg.handler.Prepare(ctx, job); err != nil {
		m.handleStageFailure(ctx, stg.name, job, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, stg, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stg.name, job, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if job.Status == stg.processingStatus || job.Status == "" {
		job.Status = stg.doneStatus
	}
	job.LastHeartbeat = nil
	if job.Status == jobs.StatusCompleted {
		if job.ProgressPercent < 100 {
			job.ProgressPercent = 100
		}
		if strings.TrimSpace(job.ProgressMessage) == "" {
			job.ProgressMessage = "Completed"
		}
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastJob(job)
	return nil
}

// executeWithHeartbeat runs the stage under the job's remaining wall-clock
// budget while a background loop refreshes the heartbeat column.
func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, job *jobs.Job) error {
	execCtx := ctx
	var budgetCancel context.CancelFunc
	if deadline, ok := m.budgetDeadline(job); ok {
		execCtx, budgetCancel = context.WithDeadline(ctx, deadline)
		defer budgetCancel()
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := stg.handler.Execute(execCtx, job)
	hbCancel()
	hbWG.Wait()

	if execErr != nil && execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return services.Wrap(services.ErrFatal, stg.name, "execute",
			fmt.Sprintf("Job exceeded its %ds time budget", m.cfg.Workflow.JobTimeBudget), execErr)
	}
	return execErr
}

func (m *Manager) budgetDeadline(job *jobs.Job) (time.Time, bool) {
	budget := time.Duration(m.cfg.Workflow.JobTimeBudget) * time.Second
	if budget <= 0 {
		return time.Time{}, false
	}
	started := time.Now()
	if job.StartedAt != nil {
		started = *job.StartedAt
	}
	return started.Add(budget), true
}

func (m *Manager) transitionToProcessing(ctx context.Context, stg pipelineStage, job *jobs.Job) error {
	now := time.Now().UTC()
	job.Status = stg.processingStatus
	job.ErrorMessage = ""
	job.ProgressPercent = 0
	job.LastHeartbeat = &now
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := m.store.Update(ctx, job); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastJob(job)
	return nil
}
