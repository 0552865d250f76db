package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"papercast/internal/config"
	"papercast/internal/jobs"
	"papercast/internal/stage"
)

const (
	// heartbeatInterval is how often an executing stage refreshes the job's
	// heartbeat column.
	heartbeatInterval = 15 * time.Second
	// staleAfter is how long a processing job may go without a heartbeat
	// before another daemon instance reclaims it.
	staleAfter = 2 * time.Minute
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Indexer   stage.Handler
	Planner   stage.Handler
	Scriptgen stage.Handler
	Assembler stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      jobs.Status
	processingStatus jobs.Status
	doneStatus       jobs.Status
}

// loggerAware lets stage handlers receive the job-scoped logger before each
// run.
type loggerAware interface {
	SetLogger(*slog.Logger)
}

// Manager coordinates job processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *jobs.Store
	logger       *slog.Logger
	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor
	jobLogs      *JobLogger

	stages             []pipelineStage
	stageByStart       map[jobs.Status]pipelineStage
	statusOrder        []jobs.Status
	processingStatuses []jobs.Status

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *jobs.Job
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat:    NewHeartbeatMonitor(store, logger, heartbeatInterval, staleAfter),
		jobLogs:      NewJobLogger(cfg),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow runs.
// Stages execute in lifecycle order; a nil handler drops its stage from the
// pipeline, which tests use to run partial pipelines.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	if set.Indexer != nil {
		stages = append(stages, pipelineStage{
			name:             "indexer",
			handler:          set.Indexer,
			startStatus:      jobs.StatusPending,
			processingStatus: jobs.StatusIndexing,
			doneStatus:       jobs.StatusIndexed,
		})
	}
	if set.Planner != nil {
		stages = append(stages, pipelineStage{
			name:             "planner",
			handler:          set.Planner,
			startStatus:      jobs.StatusIndexed,
			processingStatus: jobs.StatusPlanning,
			doneStatus:       jobs.StatusPlanned,
		})
	}
	if set.Scriptgen != nil {
		stages = append(stages, pipelineStage{
			name:             "scriptgen",
			handler:          set.Scriptgen,
			startStatus:      jobs.StatusPlanned,
			processingStatus: jobs.StatusDrafting,
			doneStatus:       jobs.StatusDrafted,
		})
	}
	if set.Assembler != nil {
		stages = append(stages, pipelineStage{
			name:             "assembler",
			handler:          set.Assembler,
			startStatus:      jobs.StatusDrafted,
			processingStatus: jobs.StatusAssembling,
			doneStatus:       jobs.StatusCompleted,
		})
	}

	byStart := make(map[jobs.Status]pipelineStage, len(stages))
	order := make([]jobs.Status, 0, len(stages))
	processing := make([]jobs.Status, 0, len(stages))
	for _, stg := range stages {
		byStart[stg.startStatus] = stg
		order = append(order, stg.startStatus)
		processing = append(processing, stg.processingStatus)
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = byStart
	m.statusOrder = order
	m.processingStatuses = processing
	m.mu.Unlock()
}
