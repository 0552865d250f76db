package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"papercast/internal/capability"
	"papercast/internal/capability/provider"
	"papercast/internal/config"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/preflight"
	"papercast/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a lock file under the log directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	workflow *workflow.Manager
	caps     capability.Set

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc

	preflightResults []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	JobDBPath    string
	LockFilePath string
	Preflight    []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, wf *workflow.Manager, caps capability.Set) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "papercastd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		caps:     caps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// workflow manager and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another papercast daemon instance is already running")
	}

	results := preflight.RunAll(ctx, d.cfg, provider.HealthCheckers(d.caps))
	d.preflightResults = results
	for _, result := range results {
		if result.Passed {
			d.logger.Debug("preflight check passed", logging.String("check", result.Name))
			continue
		}
		d.logger.Error("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
	if !preflight.AllPassed(results) {
		_ = d.lock.Unlock()
		return fmt.Errorf("preflight failed: %s", failedCheckNames(results))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("papercast daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddr()))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("papercast daemon stopped")
}

// Close stops the daemon and closes the job store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound API address, empty until Start succeeds.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		Preflight:    d.preflightResults,
	}
}

func failedCheckNames(results []preflight.Result) string {
	var names []string
	for _, result := range results {
		if !result.Passed {
			names = append(names, result.Name)
		}
	}
	return strings.Join(names, ", ")
}
