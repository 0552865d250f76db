package scriptgen_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"papercast/internal/capability"
	"papercast/internal/capability/mock"
	"papercast/internal/config"
	"papercast/internal/index"
	"papercast/internal/jobs"
	"papercast/internal/scriptgen"
	"papercast/internal/services"
	"papercast/internal/testsupport"
)

const (
	chunkTextA = "Quantum error correction reduces logical failure rates in superconducting processors."
	chunkTextB = "The experiment sustained below threshold error rates for twelve hours of operation."
	// offSourceText shares no vocabulary with the chunks, so retrieval never
	// supports it.
	offSourceText = "Bananas ripen quickly inside warm paper bags during summer."
)

// scriptedGenerator returns canned script and rewrite payloads keyed by the
// segment topic found in the prompt, and counts drafts per topic.
type scriptedGenerator struct {
	mu       sync.Mutex
	scripts  map[string]string // topic -> first line text
	rewrites map[string]string // original text -> replacement text
	drafts   map[string]int
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		scripts:  make(map[string]string),
		rewrites: make(map[string]string),
		drafts:   make(map[string]int),
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, req capability.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch req.Operation {
	case "script":
		for topic, text := range g.scripts {
			if containsTopic(req.Prompt, topic) {
				g.drafts[topic]++
				payload := map[string]any{
					"lines": []map[string]any{
						{"speaker": "host", "text": text, "citations": firstCitation(req)},
					},
				}
				return encode(payload), nil
			}
		}
		return "", fmt.Errorf("no scripted response for prompt %q", req.Prompt)
	case "rewrite":
		for original, replacement := range g.rewrites {
			if containsTopic(req.Prompt, original) {
				return encode(map[string]any{"text": replacement, "citations": firstCitation(req)}), nil
			}
		}
		// Unscripted rewrites echo the failed line back unchanged.
		return encode(map[string]any{"text": "", "citations": []string{}}), nil
	default:
		return "", fmt.Errorf("unexpected operation %q", req.Operation)
	}
}

func (g *scriptedGenerator) draftCount(topic string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drafts[topic]
}

func containsTopic(prompt, topic string) bool {
	return len(topic) > 0 && len(prompt) > 0 && contains(prompt, topic)
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func firstCitation(req capability.GenerateRequest) []string {
	if len(req.Context) == 0 {
		return nil
	}
	return []string{req.Context[0].ID}
}

func encode(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func seedDocument(t *testing.T, store *jobs.Store, texts ...string) *jobs.Document {
	t.Helper()
	doc := testsupport.NewDocument(t, store, "Quantum Study", "study.txt")
	chunks := make([]index.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = index.Chunk{
			ID:         fmt.Sprintf("%d-%d", doc.ID, i),
			DocumentID: doc.ID,
			Ordinal:    i,
			Page:       i + 1,
			Text:       text,
		}
	}
	encoded, err := index.EncodeChunks(chunks)
	if err != nil {
		t.Fatalf("EncodeChunks: %v", err)
	}
	doc.ChunksJSON = encoded
	if err := store.UpdateDocument(context.Background(), doc); err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	return doc
}

func plannedJob(t *testing.T, store *jobs.Store, doc *jobs.Document, topics ...string) *jobs.Job {
	t.Helper()
	job := testsupport.NewJob(t, store, doc.ID)
	outline := &jobs.Outline{
		Topic:    "quantum error correction",
		Style:    "conversational",
		Speakers: []string{"host", "expert"},
	}
	outline.Segments = append(outline.Segments, jobs.SegmentPlan{
		Index: 0, Kind: jobs.LineStructural, Topic: "Introduction", TargetSeconds: 20,
	})
	for i, topic := range topics {
		outline.Segments = append(outline.Segments, jobs.SegmentPlan{
			Index: i + 1, Kind: jobs.LineContent, Topic: topic, TargetSeconds: 60,
		})
	}
	outline.Segments = append(outline.Segments, jobs.SegmentPlan{
		Index: len(topics) + 1, Kind: jobs.LineStructural, Topic: "Closing thoughts", TargetSeconds: 20,
	})
	if err := job.SetOutline(outline); err != nil {
		t.Fatalf("SetOutline: %v", err)
	}
	return job
}

func strictConfig(t *testing.T) *config.Config {
	cfg := testsupport.NewConfig(t)
	// A high support bar keeps verbatim chunk quotes verified while any
	// off-source line stays unsupported.
	cfg.Scriptgen.SupportThreshold = 0.6
	return cfg
}

func capsWith(gen capability.Generator) capability.Set {
	return capability.Set{
		Generator:   gen,
		Embedder:    mock.NewEmbedder(64),
		Synthesizer: mock.NewSynthesizer(8000),
	}
}

func TestExecuteVerifiesGroundedSegments(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA, chunkTextB)
	job := plannedJob(t, store, doc, "error correction rates", "threshold experiment duration")

	gen := newScriptedGenerator()
	gen.scripts["error correction rates"] = chunkTextA
	gen.scripts["threshold experiment duration"] = chunkTextB

	stage := scriptgen.NewStage(cfg, store, capsWith(gen), slog.Default())
	if err := stage.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	segments, err := job.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 4 {
		t.Fatalf("segments = %d, want 4", len(segments))
	}
	for _, segment := range segments {
		if segment.Status != jobs.SegmentVerified {
			t.Fatalf("segment %d status = %s", segment.Index, segment.Status)
		}
		if segment.Rewrites != 0 {
			t.Fatalf("segment %d used %d rewrites on grounded input", segment.Index, segment.Rewrites)
		}
		for _, line := range segment.Lines {
			if line.Verdict != jobs.VerdictVerified {
				t.Fatalf("line %q verdict = %s", line.Text, line.Verdict)
			}
			if line.Kind == jobs.LineContent && len(line.Citations) == 0 {
				t.Fatalf("content line %q carries no citations", line.Text)
			}
		}
	}

	report, err := job.GetReport()
	if err != nil || report == nil {
		t.Fatalf("GetReport: %v", err)
	}
	if report.RewritesUsed != 0 {
		t.Fatalf("report rewrites = %d", report.RewritesUsed)
	}
	if report.ContentLines == 0 || report.VerifiedLines != report.ContentLines {
		t.Fatalf("report lines = %d verified of %d content", report.VerifiedLines, report.ContentLines)
	}
}

func TestRewriteRepairsUnsupportedLine(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA, chunkTextB)
	job := plannedJob(t, store, doc, "error correction rates", "threshold experiment duration")

	gen := newScriptedGenerator()
	gen.scripts["error correction rates"] = chunkTextA
	gen.scripts["threshold experiment duration"] = offSourceText
	gen.rewrites[offSourceText] = chunkTextB

	stage := scriptgen.NewStage(cfg, store, capsWith(gen), slog.Default())
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	segments, _ := job.Segments()
	var clean, repaired *jobs.Segment
	for i := range segments {
		switch segments[i].Index {
		case 1:
			clean = &segments[i]
		case 2:
			repaired = &segments[i]
		}
	}
	if clean == nil || repaired == nil {
		t.Fatal("content segments missing")
	}
	if clean.Rewrites != 0 {
		t.Fatalf("clean segment used %d rewrites", clean.Rewrites)
	}
	if repaired.Rewrites == 0 {
		t.Fatal("repaired segment reports zero rewrites")
	}
	if repaired.Status != jobs.SegmentVerified {
		t.Fatalf("repaired segment status = %s", repaired.Status)
	}
	if job.RewritesUsed == 0 {
		t.Fatal("job-level rewrite count not incremented")
	}
	report, _ := job.GetReport()
	if report == nil || report.RewritesUsed != job.RewritesUsed {
		t.Fatalf("report rewrites = %v, job = %d", report, job.RewritesUsed)
	}
}

func TestRewriteCapBoundsAttempts(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA)
	job := plannedJob(t, store, doc, "stubborn claim")

	gen := newScriptedGenerator()
	gen.scripts["stubborn claim"] = offSourceText
	// No rewrite mapping: the line never improves.

	stage := scriptgen.NewStage(cfg, store, capsWith(gen), slog.Default())
	err := stage.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected failure when no content segment survives")
	}
	if !errors.Is(err, services.ErrContent) {
		t.Fatalf("error = %v, want content failure", err)
	}

	segments, serr := job.Segments()
	if serr != nil {
		t.Fatalf("Segments: %v", serr)
	}
	var failed *jobs.Segment
	for i := range segments {
		if segments[i].Index == 1 {
			failed = &segments[i]
		}
	}
	if failed == nil || failed.Status != jobs.SegmentFailed {
		t.Fatalf("segment 1 = %+v, want failed", failed)
	}
	if failed.Rewrites != cfg.Scriptgen.RewriteCap {
		t.Fatalf("rewrites = %d, want cap %d", failed.Rewrites, cfg.Scriptgen.RewriteCap)
	}
}

func TestFailedSegmentExcludedWhileJobContinues(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA, chunkTextB)
	job := plannedJob(t, store, doc, "error correction rates", "stubborn claim")

	gen := newScriptedGenerator()
	gen.scripts["error correction rates"] = chunkTextA
	gen.scripts["stubborn claim"] = offSourceText
	// No rewrite mapping: the stubborn line never improves.

	stage := scriptgen.NewStage(cfg, store, capsWith(gen), slog.Default())
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	segments, err := job.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	var clean, degraded *jobs.Segment
	for i := range segments {
		switch segments[i].Index {
		case 1:
			clean = &segments[i]
		case 2:
			degraded = &segments[i]
		}
	}
	if clean == nil || clean.Status != jobs.SegmentVerified || clean.Rewrites != 0 {
		t.Fatalf("clean segment = %+v", clean)
	}
	if degraded == nil || degraded.Status != jobs.SegmentFailed {
		t.Fatalf("degraded segment = %+v", degraded)
	}
	if degraded.Rewrites != cfg.Scriptgen.RewriteCap {
		t.Fatalf("degraded rewrites = %d, want cap %d", degraded.Rewrites, cfg.Scriptgen.RewriteCap)
	}

	report, err := job.GetReport()
	if err != nil || report == nil {
		t.Fatalf("GetReport: %v", err)
	}
	if report.Segments != len(segments) {
		t.Fatalf("report covers %d segments, want %d", report.Segments, len(segments))
	}
	if report.UnsupportedLines == 0 {
		t.Fatal("report hides the unsupported lines of the excluded segment")
	}
}

// garblingGenerator corrupts the script payload for one topic while
// delegating everything else.
type garblingGenerator struct {
	inner *scriptedGenerator
	topic string
}

func (g garblingGenerator) Generate(ctx context.Context, req capability.GenerateRequest) (string, error) {
	if req.Operation == "script" && containsTopic(req.Prompt, g.topic) {
		return "this is not a script payload", nil
	}
	return g.inner.Generate(ctx, req)
}

func TestMalformedPayloadFailsOnlyItsSegment(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA, chunkTextB)
	job := plannedJob(t, store, doc, "error correction rates", "broken topic")

	gen := newScriptedGenerator()
	gen.scripts["error correction rates"] = chunkTextA

	stage := scriptgen.NewStage(cfg, store, capsWith(garblingGenerator{inner: gen, topic: "broken topic"}), slog.Default())
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	segments, _ := job.Segments()
	var sibling, broken *jobs.Segment
	for i := range segments {
		switch segments[i].Index {
		case 1:
			sibling = &segments[i]
		case 2:
			broken = &segments[i]
		}
	}
	if broken == nil || broken.Status != jobs.SegmentFailed {
		t.Fatalf("broken segment = %+v, want failed", broken)
	}
	if sibling == nil || sibling.Status != jobs.SegmentVerified {
		t.Fatalf("sibling segment = %+v, want verified", sibling)
	}
	if got := gen.draftCount("error correction rates"); got != 1 {
		t.Fatalf("sibling segment drafted %d times, want 1", got)
	}
}

func TestMissingRosterFallsBackToConfigSpeakers(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA)
	job := plannedJob(t, store, doc, "error correction rates")
	outline, err := job.Outline()
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	outline.Speakers = nil
	if err := job.SetOutline(outline); err != nil {
		t.Fatalf("SetOutline: %v", err)
	}

	gen := newScriptedGenerator()
	gen.scripts["error correction rates"] = chunkTextA

	stage := scriptgen.NewStage(cfg, store, capsWith(gen), slog.Default())
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	known := make(map[string]bool, len(cfg.Episode.Speakers))
	for _, speaker := range cfg.Episode.Speakers {
		known[speaker] = true
	}
	segments, _ := job.Segments()
	for _, segment := range segments {
		for _, line := range segment.Lines {
			if !known[line.Speaker] {
				t.Fatalf("line speaker %q not in configured roster %v", line.Speaker, cfg.Episode.Speakers)
			}
		}
	}
}

func TestExhaustedBudgetBlocksRewrites(t *testing.T) {
	cfg := strictConfig(t)
	cfg.Workflow.RewriteBudget = 0
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA)
	job := plannedJob(t, store, doc, "stubborn claim")

	gen := newScriptedGenerator()
	gen.scripts["stubborn claim"] = offSourceText
	gen.rewrites[offSourceText] = chunkTextA

	stage := scriptgen.NewStage(cfg, store, capsWith(gen), slog.Default())
	if err := stage.Execute(context.Background(), job); err == nil {
		t.Fatal("expected failure with no rewrite budget")
	}
	segments, _ := job.Segments()
	for _, segment := range segments {
		if segment.Index == 1 && segment.Rewrites != 0 {
			t.Fatalf("rewrites = %d with zero budget", segment.Rewrites)
		}
	}
	if job.RewritesUsed != 0 {
		t.Fatalf("job rewrites = %d with zero budget", job.RewritesUsed)
	}
}

func TestResumeKeepsVerifiedSegments(t *testing.T) {
	cfg := strictConfig(t)
	// Budget below the per-segment cap, so the stubborn segment drains it
	// and the first attempt fails rather than completing degraded.
	cfg.Workflow.RewriteBudget = cfg.Scriptgen.RewriteCap - 1
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA, chunkTextB)
	job := plannedJob(t, store, doc, "error correction rates", "threshold experiment duration")

	gen := newScriptedGenerator()
	gen.scripts["error correction rates"] = chunkTextA
	gen.scripts["threshold experiment duration"] = offSourceText

	stage := scriptgen.NewStage(cfg, store, capsWith(gen), slog.Default())
	if err := stage.Execute(context.Background(), job); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	if got := gen.draftCount("error correction rates"); got != 1 {
		t.Fatalf("clean segment drafted %d times", got)
	}

	// The source for the failing segment becomes available on retry.
	gen.mu.Lock()
	gen.scripts["threshold experiment duration"] = chunkTextB
	gen.mu.Unlock()

	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute(resume): %v", err)
	}
	if got := gen.draftCount("error correction rates"); got != 1 {
		t.Fatalf("verified segment re-drafted on resume (%d drafts)", got)
	}
	segments, _ := job.Segments()
	for _, segment := range segments {
		if segment.Status != jobs.SegmentVerified {
			t.Fatalf("segment %d status = %s after resume", segment.Index, segment.Status)
		}
	}
}

func TestExecuteFailsOnEmptyFactIndex(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.NewDocument(t, store, "Empty", "empty.txt")
	job := plannedJob(t, store, doc, "anything")

	stage := scriptgen.NewStage(cfg, store, capsWith(newScriptedGenerator()), slog.Default())
	err := stage.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected failure with no indexed facts")
	}
	if !errors.Is(err, services.ErrContent) {
		t.Fatalf("error = %v, want content failure", err)
	}
}

func TestExecuteRejectsUnknownStyle(t *testing.T) {
	cfg := strictConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store, chunkTextA)
	job := plannedJob(t, store, doc, "error correction rates")
	job.Style = "noir"

	stage := scriptgen.NewStage(cfg, store, capsWith(newScriptedGenerator()), slog.Default())
	err := stage.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected failure for unknown style")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration failure", err)
	}
}

func TestMockProviderPipelineVerifies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := seedDocument(t, store,
		"Error correction cycles ran on a seventeen qubit lattice with measured gains.",
		"Logical qubit lifetimes doubled compared to the unencoded baseline device.",
	)
	job := plannedJob(t, store, doc, "error correction cycles", "logical qubit lifetimes")

	caps := capability.Set{
		Generator:   mock.NewGenerator(),
		Embedder:    mock.NewEmbedder(64),
		Synthesizer: mock.NewSynthesizer(8000),
	}
	stage := scriptgen.NewStage(cfg, store, caps, slog.Default())
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	segments, _ := job.Segments()
	for _, segment := range segments {
		if segment.Status != jobs.SegmentVerified {
			t.Fatalf("segment %d status = %s", segment.Index, segment.Status)
		}
	}
}
