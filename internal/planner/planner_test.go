package planner_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"papercast/internal/capability"
	"papercast/internal/capability/mock"
	"papercast/internal/index"
	"papercast/internal/jobs"
	"papercast/internal/planner"
	"papercast/internal/testsupport"
)

func mockSet() capability.Set {
	return capability.Set{
		Generator:   mock.NewGenerator(),
		Embedder:    mock.NewEmbedder(64),
		Synthesizer: mock.NewSynthesizer(8000),
	}
}

func indexedJob(t *testing.T, store *jobs.Store, wordCount, chunkCount int) *jobs.Job {
	t.Helper()
	doc := testsupport.NewDocument(t, store, "Study", "study.txt")
	doc.WordCount = wordCount
	chunks := make([]index.Chunk, chunkCount)
	for i := range chunks {
		chunks[i] = index.Chunk{
			ID:         fmt.Sprintf("%d-%d", doc.ID, i),
			DocumentID: doc.ID,
			Ordinal:    i,
			Page:       i + 1,
			Text:       fmt.Sprintf("Finding number %d. The measurements support this result directly.", i),
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
	return testsupport.NewJob(t, store, doc.ID)
}

func TestExecuteBracketsOutlineWithStructuralSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := indexedJob(t, store, 4000, 12)

	stage := planner.NewStage(cfg, store, mockSet(), slog.Default())
	if err := stage.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	outline, err := job.Outline()
	if err != nil || outline == nil {
		t.Fatalf("Outline: %v", err)
	}
	if len(outline.Segments) < 3 {
		t.Fatalf("segments = %d, want intro + content + outro at minimum", len(outline.Segments))
	}
	first := outline.Segments[0]
	last := outline.Segments[len(outline.Segments)-1]
	if first.Kind != jobs.LineStructural || first.Topic != "Introduction" {
		t.Fatalf("first segment = %+v, want structural introduction", first)
	}
	if last.Kind != jobs.LineStructural {
		t.Fatalf("last segment = %+v, want structural outro", last)
	}
	for i, seg := range outline.Segments {
		if seg.Index != i {
			t.Fatalf("segment %d carries index %d", i, seg.Index)
		}
		if i > 0 && i < len(outline.Segments)-1 {
			if seg.Kind != jobs.LineContent {
				t.Fatalf("interior segment %d is %s", i, seg.Kind)
			}
			if seg.Topic == "" {
				t.Fatalf("interior segment %d has no topic", i)
			}
			if seg.TargetSeconds < 30 || seg.TargetSeconds > cfg.Planner.MaxSegmentSeconds {
				t.Fatalf("segment %d target %ds outside bounds", i, seg.TargetSeconds)
			}
		}
	}
	if outline.Topic == "" {
		t.Fatal("outline topic empty")
	}
	if job.Title == "" {
		t.Fatal("job title not derived from outline topic")
	}
}

func TestExecuteScalesSegmentCountWithComplexity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	short := indexedJob(t, store, 400, 2)
	long := indexedJob(t, store, 12000, 50)

	stage := planner.NewStage(cfg, store, mockSet(), slog.Default())
	if err := stage.Execute(context.Background(), short); err != nil {
		t.Fatalf("Execute(short): %v", err)
	}
	if err := stage.Execute(context.Background(), long); err != nil {
		t.Fatalf("Execute(long): %v", err)
	}

	shortOutline, _ := short.Outline()
	longOutline, _ := long.Outline()
	if len(shortOutline.Segments) >= len(longOutline.Segments) {
		t.Fatalf("short doc planned %d segments, long doc %d; expected growth with complexity",
			len(shortOutline.Segments), len(longOutline.Segments))
	}
	// Content segments never exceed the chunk count.
	if got := len(shortOutline.Segments) - 2; got > 2 {
		t.Fatalf("short doc content segments = %d, more than its %d chunks", got, 2)
	}
	if got := len(longOutline.Segments) - 2; got > cfg.Planner.MaxSegments {
		t.Fatalf("long doc content segments = %d, above configured maximum %d", got, cfg.Planner.MaxSegments)
	}
}

func TestExecuteFailsWithoutIndexedChunks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.NewDocument(t, store, "Empty", "empty.txt")
	job := testsupport.NewJob(t, store, doc.ID)

	stage := planner.NewStage(cfg, store, mockSet(), slog.Default())
	if err := stage.Execute(context.Background(), job); err == nil {
		t.Fatal("expected error when document has no chunks")
	}
}

func TestComplexityBounds(t *testing.T) {
	if got := planner.Complexity(0, 0); got != 0 {
		t.Fatalf("Complexity(0,0) = %v", got)
	}
	if got := planner.Complexity(100000, 500); got != 1 {
		t.Fatalf("Complexity saturates at 1, got %v", got)
	}
	mid := planner.Complexity(4000, 20)
	if mid <= 0 || mid >= 1 {
		t.Fatalf("mid-size document complexity = %v, want interior value", mid)
	}
}

func TestOutlineTopicsStayGroundedInChunks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := indexedJob(t, store, 4000, 12)

	stage := planner.NewStage(cfg, store, mockSet(), slog.Default())
	if err := stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	outline, _ := job.Outline()
	for _, seg := range outline.Segments {
		if seg.Kind != jobs.LineContent {
			continue
		}
		if !strings.Contains(seg.Topic, "Finding") {
			t.Fatalf("segment topic %q not derived from chunk text", seg.Topic)
		}
	}
}
