// Package scriptgen implements the drafting stage: each planned segment is
// drafted, fact-checked against the document's fact index, and rewritten
// under a bounded budget until every content line is supported. Segments
// that stay unsupported after the cap are marked failed and left out of the
// episode while the rest of the job proceeds.
package scriptgen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"papercast/internal/capability"
	"papercast/internal/config"
	"papercast/internal/index"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
	"papercast/internal/stage"
)

// Stage integrates script generation with the workflow manager.
type Stage struct {
	cfg    *config.Config
	store  *jobs.Store
	caps   capability.Set
	logger *slog.Logger
}

// NewStage constructs the drafting stage.
func NewStage(cfg *config.Config, store *jobs.Store, caps capability.Set, logger *slog.Logger) *Stage {
	return &Stage{cfg: cfg, store: store, caps: caps, logger: logging.NewComponentLogger(logger, "scriptgen")}
}

// SetLogger routes stage logs into the job-scoped log.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "scriptgen")
}

// Prepare primes progress fields before executing the stage.
func (s *Stage) Prepare(_ context.Context, job *jobs.Job) error {
	if s == nil || s.caps.Generator == nil || s.caps.Embedder == nil {
		return services.Wrap(services.ErrConfiguration, "draft", "prepare", "Drafting stage is not configured", nil)
	}
	job.InitProgress("Drafting", "Writing segment scripts")
	return nil
}

// Execute drafts and verifies every planned segment. Segments that already
// verified in a previous attempt are kept as-is, so resume only pays for
// unfinished work. The drafted segments are always stored on the job, even
// when the stage fails, so partial scripts stay inspectable.
func (s *Stage) Execute(ctx context.Context, job *jobs.Job) error {
	outline, err := job.Outline()
	if err != nil || outline == nil {
		return services.Wrap(services.ErrFatal, "draft", "load outline",
			"Outline missing; planning stage did not complete", err)
	}

	patterns, err := index.LoadPatterns(job.Style)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "draft", "load style",
			fmt.Sprintf("Unknown episode style %q", job.Style), err)
	}
	retriever, err := s.buildRetriever(ctx, job)
	if err != nil {
		return err
	}
	if retriever.FactCount() == 0 {
		return services.Wrap(services.ErrContent, "draft", "load facts", "Fact index is empty", nil)
	}

	previous, err := job.Segments()
	if err != nil {
		return services.Wrap(services.ErrFatal, "draft", "decode segments", "Persisted segments are corrupt", err)
	}
	kept := make(map[int]jobs.Segment, len(previous))
	for _, segment := range previous {
		if segment.Status == jobs.SegmentVerified {
			kept[segment.Index] = segment
		}
	}

	budget := newRewriteBudget(s.cfg.Workflow.RewriteBudget - job.RewritesUsed)
	segments := make([]jobs.Segment, len(outline.Segments))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workerLimit())
	for i, plan := range outline.Segments {
		if prev, ok := kept[plan.Index]; ok {
			segments[i] = prev
			continue
		}
		if plan.Kind == jobs.LineStructural {
			segments[i] = s.structuralSegment(plan, outline, patterns)
			continue
		}
		i, plan := i, plan
		group.Go(func() error {
			segCtx := services.WithSegment(groupCtx, plan.Index)
			segment, err := s.buildSegment(segCtx, plan, outline, retriever, budget)
			if err != nil {
				if !services.IsStructural(err) {
					return err
				}
				// A structural failure stays on its segment; siblings
				// keep drafting.
				s.logger.Warn("segment failed structurally",
					logging.Int(logging.FieldSegment, plan.Index),
					logging.Error(err),
				)
				segment.Status = jobs.SegmentFailed
			}
			segments[i] = segment
			return nil
		})
	}
	groupErr := group.Wait()

	job.RewritesUsed += budget.used()
	if err := job.SetSegments(segments); err != nil {
		return services.Wrap(services.ErrFatal, "draft", "encode segments", "Failed to serialize segments", err)
	}
	if groupErr != nil {
		return groupErr
	}

	var failed, verifiedContent int
	for _, segment := range segments {
		switch {
		case segment.Status == jobs.SegmentFailed:
			failed++
		case segment.Status == jobs.SegmentVerified && hasContentLines(segment):
			verifiedContent++
		}
	}
	report := jobs.BuildReport(segments, job.RewritesUsed)
	if err := job.SetReport(report); err != nil {
		return services.Wrap(services.ErrFatal, "draft", "encode report", "Failed to serialize report", err)
	}
	if failed > 0 && budget.exhausted() {
		return services.Wrap(services.ErrContent, "draft", "verify segments",
			fmt.Sprintf("Rewrite budget exhausted with %d segment(s) unsupported", failed), nil)
	}
	if verifiedContent == 0 {
		return services.Wrap(services.ErrContent, "draft", "verify segments",
			"No content segment survived verification", nil)
	}
	// Failed segments ride along: the assembler leaves them out of the
	// episode and the report keeps their degraded status visible.
	if failed > 0 {
		s.logger.Warn("continuing with failed segments excluded",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Int("failed_segments", failed),
		)
	}
	s.logger.Info("script drafted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("segments", len(segments)),
		logging.Int("content_lines", report.ContentLines),
		logging.Int("rewrites_used", report.RewritesUsed),
	)
	job.SetProgressComplete("Drafting", fmt.Sprintf("Verified %d of %d segments", len(segments)-failed, len(segments)))
	return nil
}

func hasContentLines(segment jobs.Segment) bool {
	for _, line := range segment.Lines {
		if line.Kind == jobs.LineContent {
			return true
		}
	}
	return false
}

func (s *Stage) workerLimit() int {
	if s.cfg.Workflow.SegmentWorkers > 0 {
		return s.cfg.Workflow.SegmentWorkers
	}
	return 1
}

// buildRetriever reassembles the dual index for the job: the facts side from
// the document's persisted chunk embeddings, the style side from the
// embedded pattern bank.
func (s *Stage) buildRetriever(ctx context.Context, job *jobs.Job) (*index.Retriever, error) {
	doc, err := s.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "draft", "load document", "Failed to load document row", err)
	}
	if doc == nil {
		return nil, services.Wrap(services.ErrFatal, "draft", "load document",
			fmt.Sprintf("Document %d not found", job.DocumentID), nil)
	}
	chunks, err := index.DecodeChunks(doc.ChunksJSON)
	if err != nil {
		return nil, services.Wrap(services.ErrFatal, "draft", "decode chunks", "Persisted chunks are corrupt", err)
	}
	facts, _, err := index.BuildFacts(ctx, s.caps.Embedder, doc.ID, chunks)
	if err != nil {
		return nil, services.Wrap(callMarker(err), "draft", "build facts", "Failed to rebuild fact index", err)
	}
	styleBank, err := index.BuildStyleBank(ctx, s.caps.Embedder, job.Style)
	if err != nil {
		return nil, services.Wrap(callMarker(err), "draft", "build style bank", "Failed to build style bank", err)
	}
	return index.NewRetriever(s.caps.Embedder, facts, styleBank), nil
}

// HealthCheck verifies the generation and embedding capabilities.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s == nil || s.caps.Generator == nil || s.caps.Embedder == nil {
		return stage.Unhealthy("scriptgen", "generation or embedding capability unavailable")
	}
	if hc, ok := s.caps.Generator.(capability.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("scriptgen", err.Error())
		}
	}
	return stage.Healthy("scriptgen")
}

// rewriteBudget is the job-wide rewrite allowance shared by segment workers.
type rewriteBudget struct {
	mu        sync.Mutex
	remaining int
	spent     int
	ranDry    bool
}

func newRewriteBudget(remaining int) *rewriteBudget {
	if remaining < 0 {
		remaining = 0
	}
	return &rewriteBudget{remaining: remaining}
}

// take reserves one rewrite. It returns false once the budget is exhausted.
func (b *rewriteBudget) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining == 0 {
		b.ranDry = true
		return false
	}
	b.remaining--
	b.spent++
	return true
}

func (b *rewriteBudget) used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}

// exhausted reports whether a segment was refused a rewrite it wanted.
func (b *rewriteBudget) exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ranDry
}
