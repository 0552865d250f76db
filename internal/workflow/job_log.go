package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"papercast/internal/config"
	"papercast/internal/jobs"
	"papercast/internal/logging"
)

// JobLogger manages dedicated per-job log files so one episode's processing
// history reads end to end in a single place.
type JobLogger struct {
	baseDir string
	cfg     *config.Config
}

// NewJobLogger creates a job logger rooted under the configured log
// directory.
func NewJobLogger(cfg *config.Config) *JobLogger {
	dir := ""
	if cfg != nil && cfg.Paths.LogDir != "" {
		dir = filepath.Join(cfg.Paths.LogDir, "jobs")
	}
	return &JobLogger{baseDir: dir, cfg: cfg}
}

// Path returns the log file path for a job.
func (j *JobLogger) Path(job *jobs.Job) (string, error) {
	if job == nil {
		return "", fmt.Errorf("job is nil")
	}
	if strings.TrimSpace(j.baseDir) == "" {
		return "", fmt.Errorf("job log directory not configured")
	}
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure job log directory: %w", err)
	}
	return filepath.Join(j.baseDir, job.Token+".log"), nil
}

// Handler builds a slog handler appending to the given job log path.
func (j *JobLogger) Handler(path string) (slog.Handler, error) {
	level := "info"
	format := "json"
	if j.cfg != nil {
		if strings.TrimSpace(j.cfg.Logging.Level) != "" {
			level = j.cfg.Logging.Level
		}
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      format,
		OutputPaths: []string{path},
	})
	if err != nil {
		return nil, err
	}
	return logger.Handler(), nil
}

// stageLogger returns a logger scoped to the job's log file, falling back to
// the daemon logger when the file is unavailable.
func (m *Manager) stageLogger(ctx context.Context, base *slog.Logger, job *jobs.Job) *slog.Logger {
	if base == nil {
		base = m.logger
	}
	if base == nil {
		base = logging.NewNop()
	}
	if job != nil {
		path, err := m.jobLogs.Path(job)
		if err == nil {
			if handler, handlerErr := m.jobLogs.Handler(path); handlerErr == nil {
				base = slog.New(handler).With(logging.Int64(logging.FieldJobID, job.ID))
			} else {
				base.Warn("failed to create job log writer", logging.Error(handlerErr))
			}
		}
	}
	return logging.WithContext(ctx, base)
}
