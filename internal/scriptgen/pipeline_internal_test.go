package scriptgen

import (
	"context"
	"reflect"
	"testing"

	"papercast/internal/capability/mock"
	"papercast/internal/config"
	"papercast/internal/index"
	"papercast/internal/jobs"
)

// Verification is pure retrieval, so running it again over already-checked
// lines must not flip a verdict or duplicate a citation.
func TestVerifyLinesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewEmbedder(64)
	chunks := []index.Chunk{
		{ID: "1-0", DocumentID: 1, Ordinal: 0, Page: 1, Text: "Tidal turbines generate predictable power twice a day."},
		{ID: "1-1", DocumentID: 1, Ordinal: 1, Page: 2, Text: "Blade erosion limits turbine service life in silty channels."},
	}
	facts, _, err := index.BuildFacts(ctx, embedder, 1, chunks)
	if err != nil {
		t.Fatalf("BuildFacts: %v", err)
	}
	retriever := index.NewRetriever(embedder, facts, nil)

	cfg := config.Default()
	stage := &Stage{cfg: &cfg}
	lines := []jobs.ScriptLine{
		{Speaker: "host", Text: "Welcome back.", Kind: jobs.LineStructural},
		{Speaker: "host", Text: chunks[0].Text, Kind: jobs.LineContent},
		{Speaker: "expert", Text: "Comets are mostly ice and dust from the outer solar system.", Kind: jobs.LineContent},
	}

	if err := stage.verifyLines(ctx, retriever, lines); err != nil {
		t.Fatalf("verifyLines: %v", err)
	}
	if lines[1].Verdict != jobs.VerdictVerified {
		t.Fatalf("grounded line verdict = %s", lines[1].Verdict)
	}
	if lines[2].Verdict != jobs.VerdictUnsupported {
		t.Fatalf("off-source line verdict = %s", lines[2].Verdict)
	}

	first := make([]jobs.ScriptLine, len(lines))
	copy(first, lines)

	if err := stage.verifyLines(ctx, retriever, lines); err != nil {
		t.Fatalf("verifyLines(again): %v", err)
	}
	if !reflect.DeepEqual(first, lines) {
		t.Fatalf("second pass changed lines:\nfirst:  %+v\nsecond: %+v", first, lines)
	}
	if len(lines[1].Citations) != 1 {
		t.Fatalf("citations duplicated: %+v", lines[1].Citations)
	}
}
