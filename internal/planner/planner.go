// Package planner implements the planning stage: it sizes the episode from
// document complexity and drafts a segment outline grounded in retrieved
// fact chunks.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"papercast/internal/capability"
	"papercast/internal/config"
	"papercast/internal/index"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
	"papercast/internal/stage"
)

const (
	// structuralSeconds is the target length for intro and outro segments.
	structuralSeconds = 20
	// outlineContextChunks caps how many chunks ground one segment outline.
	outlineContextChunks = 4
)

// Stage integrates episode planning with the workflow manager.
type Stage struct {
	cfg      *config.Config
	store    *jobs.Store
	caps     capability.Set
	logger   *slog.Logger
	titleCfg cases.Caser
}

// NewStage constructs the planning stage.
func NewStage(cfg *config.Config, store *jobs.Store, caps capability.Set, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:      cfg,
		store:    store,
		caps:     caps,
		logger:   logging.NewComponentLogger(logger, "planner"),
		titleCfg: cases.Title(language.English),
	}
}

// SetLogger routes stage logs into the job-scoped log.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "planner")
}

// Prepare primes progress fields before executing the stage.
func (s *Stage) Prepare(_ context.Context, job *jobs.Job) error {
	if s == nil || s.caps.Generator == nil {
		return services.Wrap(services.ErrConfiguration, "plan", "prepare", "Planning stage is not configured", nil)
	}
	job.InitProgress("Planning", "Sizing episode outline")
	return nil
}

// Execute builds the episode outline and persists it on the job.
func (s *Stage) Execute(ctx context.Context, job *jobs.Job) error {
	doc, err := s.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "plan", "load document", "Failed to load document row", err)
	}
	if doc == nil {
		return services.Wrap(services.ErrFatal, "plan", "load document",
			fmt.Sprintf("Document %d not found", job.DocumentID), nil)
	}
	chunks, err := index.DecodeChunks(doc.ChunksJSON)
	if err != nil || len(chunks) == 0 {
		return services.Wrap(services.ErrFatal, "plan", "decode chunks",
			"Fact index missing; indexing stage did not complete", err)
	}

	speakers := job.Speakers()
	if len(speakers) < 2 {
		speakers = s.cfg.Episode.Speakers
	}

	complexity := Complexity(doc.WordCount, len(chunks))
	contentCount := s.segmentCount(complexity, len(chunks))
	groups := groupChunks(chunks, contentCount)

	outline := &jobs.Outline{
		Style:    job.Style,
		Speakers: speakers,
	}
	outline.Segments = append(outline.Segments, jobs.SegmentPlan{
		Index:         0,
		Kind:          jobs.LineStructural,
		Topic:         "Introduction",
		TargetSeconds: structuralSeconds,
	})

	perSegment := s.targetSeconds(doc.WordCount, len(groups))
	for i, group := range groups {
		job.SetProgress("Planning", fmt.Sprintf("Outlining segment %d/%d", i+1, len(groups)),
			float64(i)/float64(len(groups))*100)

		topic, keyPoints, err := s.outlineSegment(ctx, group)
		if err != nil {
			return err
		}
		if outline.Topic == "" {
			outline.Topic = topic
		}
		outline.Segments = append(outline.Segments, jobs.SegmentPlan{
			Index:         i + 1,
			Kind:          jobs.LineContent,
			Topic:         topic,
			KeyPoints:     keyPoints,
			TargetSeconds: perSegment,
		})
	}
	outline.Segments = append(outline.Segments, jobs.SegmentPlan{
		Index:         len(groups) + 1,
		Kind:          jobs.LineStructural,
		Topic:         "Closing thoughts",
		TargetSeconds: structuralSeconds,
	})

	if job.Title == "" && outline.Topic != "" {
		job.Title = s.titleCfg.String(outline.Topic)
	}
	if err := job.SetOutline(outline); err != nil {
		return services.Wrap(services.ErrFatal, "plan", "encode outline", "Failed to serialize outline", err)
	}

	s.logger.Info("episode planned",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Float64("complexity", complexity),
		logging.Int("content_segments", len(groups)),
		logging.Int("target_seconds_per_segment", perSegment),
	)
	job.SetProgressComplete("Planning", fmt.Sprintf("Planned %d segments", len(outline.Segments)))
	return nil
}

func (s *Stage) outlineSegment(ctx context.Context, group []index.Chunk) (string, []string, error) {
	contextChunks := make([]capability.ContextChunk, 0, outlineContextChunks)
	for i, chunk := range group {
		if i == outlineContextChunks {
			break
		}
		contextChunks = append(contextChunks, capability.ContextChunk{
			ID:      chunk.ID,
			Locator: chunk.Locator(),
			Text:    chunk.Text,
		})
	}
	raw, err := s.caps.Generator.Generate(ctx, capability.GenerateRequest{
		Operation: "outline",
		System:    outlineSystemPrompt,
		Prompt:    outlineUserPrompt,
		Context:   contextChunks,
	})
	if err != nil {
		return "", nil, services.Wrap(services.ErrTransient, "plan", "generate outline", "Outline generation failed", err)
	}
	var payload struct {
		Topic     string   `json:"topic"`
		KeyPoints []string `json:"key_points"`
	}
	if err := capability.DecodeJSON(raw, &payload); err != nil {
		return "", nil, services.Wrap(services.ErrContent, "plan", "parse outline", "Outline payload is not valid JSON", err)
	}
	topic := strings.TrimSpace(payload.Topic)
	if topic == "" {
		return "", nil, services.Wrap(services.ErrContent, "plan", "parse outline", "Outline payload has no topic", nil)
	}
	return topic, payload.KeyPoints, nil
}

// HealthCheck verifies the generation capability is reachable.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s == nil || s.caps.Generator == nil {
		return stage.Unhealthy("planner", "generation capability unavailable")
	}
	if hc, ok := s.caps.Generator.(capability.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("planner", err.Error())
		}
	}
	return stage.Healthy("planner")
}

// Complexity scores a document in [0, 1] from its length. Short notes plan
// few segments; paper-length documents saturate the scale.
func Complexity(wordCount, chunkCount int) float64 {
	if wordCount <= 0 {
		return 0
	}
	words := math.Min(float64(wordCount)/8000, 1)
	chunks := math.Min(float64(chunkCount)/40, 1)
	return (words + chunks) / 2
}

func (s *Stage) segmentCount(complexity float64, chunkCount int) int {
	minSeg := s.cfg.Planner.MinSegments
	maxSeg := s.cfg.Planner.MaxSegments
	count := minSeg + int(math.Round(complexity*float64(maxSeg-minSeg)))
	if count > chunkCount {
		count = chunkCount
	}
	if count < 1 {
		count = 1
	}
	return count
}

// targetSeconds budgets per-segment duration from the document's word count
// at the configured speaking rate, clamped to the segment ceiling.
func (s *Stage) targetSeconds(wordCount, segments int) int {
	if segments <= 0 {
		segments = 1
	}
	// A spoken episode condenses the document; budget roughly a fifth of a
	// straight read-through.
	episodeSeconds := float64(wordCount) / float64(s.cfg.Planner.WordsPerMinute) * 60 / 5
	per := int(episodeSeconds / float64(segments))
	if per < 30 {
		per = 30
	}
	if per > s.cfg.Planner.MaxSegmentSeconds {
		per = s.cfg.Planner.MaxSegmentSeconds
	}
	return per
}

func groupChunks(chunks []index.Chunk, groups int) [][]index.Chunk {
	if groups <= 0 {
		groups = 1
	}
	if groups > len(chunks) {
		groups = len(chunks)
	}
	out := make([][]index.Chunk, groups)
	base := len(chunks) / groups
	extra := len(chunks) % groups
	pos := 0
	for i := 0; i < groups; i++ {
		size := base
		if i < extra {
			size++
		}
		out[i] = chunks[pos : pos+size]
		pos += size
	}
	return out
}

const outlineSystemPrompt = `You are planning one segment of a podcast episode about a source document. Respond with JSON only: {"topic": string, "key_points": [string]}.`

const outlineUserPrompt = `Summarize the excerpts below into a segment topic and two to four key points. Stay strictly within what the excerpts say.`
