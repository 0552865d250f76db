package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"papercast/internal/jobs"
	"papercast/internal/logging"
)

// Start begins background processing. Jobs left in a processing status by an
// unclean shutdown are rolled back to their stage start first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.statusOrder) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckProcessing(ctx); err != nil {
		m.logger.Warn("reset stuck jobs failed", logging.Error(err))
	} else if reset > 0 {
		m.logger.Info("reset jobs interrupted by previous shutdown", logging.Int64("count", reset))
	}

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for the in-flight stage to
// return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the manager loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	logger := m.logger
	if logger == nil {
		logger = logging.NewNop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil {
			logger.Warn("reclaim stale jobs failed; stuck jobs may remain", logging.Error(err))
		}

		job, err := m.store.NextForStatuses(ctx, m.statusOrder...)
		if err != nil {
			m.handleFetchError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, logger, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) handleFetchError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "job_fetch_failed"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *jobs.Job) {
	m.mu.Lock()
	if job != nil {
		snapshot := *job
		m.lastJob = &snapshot
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
