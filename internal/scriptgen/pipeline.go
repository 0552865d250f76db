package scriptgen

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"papercast/internal/capability"
	"papercast/internal/index"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
)

// wordsPerTurn approximates how many words one speaker turn carries when
// sizing a segment's turn count from its duration target.
const wordsPerTurn = 20

// callMarker classifies a capability call failure: auth rejections abort
// the job, everything else is retried as transient.
func callMarker(err error) error {
	if capability.IsAuthError(err) {
		return services.ErrFatal
	}
	return services.ErrTransient
}

// roster returns the outline's speaker list, falling back to the configured
// default when a stored job predates the submit-time speaker check.
func (s *Stage) roster(outline *jobs.Outline) []string {
	if len(outline.Speakers) >= 2 {
		return outline.Speakers
	}
	return s.cfg.Episode.Speakers
}

// structuralSegment renders an intro or outro from the style bank. The
// lines carry no claims, so they verify trivially.
func (s *Stage) structuralSegment(plan jobs.SegmentPlan, outline *jobs.Outline, patterns []index.StylePattern) jobs.Segment {
	kind := index.PatternClosing
	if plan.Index == 0 {
		kind = index.PatternOpening
	}
	speakers := s.roster(outline)
	snippets := index.PatternsByKind(patterns, kind)
	lines := make([]jobs.ScriptLine, 0, len(snippets))
	for i, snippet := range snippets {
		lines = append(lines, jobs.ScriptLine{
			Speaker: speakers[i%len(speakers)],
			Text:    renderPattern(snippet.Text, outline.Topic),
			Kind:    jobs.LineStructural,
			Verdict: jobs.VerdictVerified,
		})
	}
	return jobs.Segment{Index: plan.Index, Status: jobs.SegmentVerified, Lines: lines}
}

func renderPattern(text, topic string) string {
	if topic == "" {
		topic = "this research"
	}
	return strings.ReplaceAll(text, "{topic}", topic)
}

// buildSegment runs one segment through draft, verify, and a bounded number
// of rewrite passes. Content failures are recorded on the segment rather
// than returned, so sibling segments keep going.
func (s *Stage) buildSegment(ctx context.Context, plan jobs.SegmentPlan, outline *jobs.Outline, retriever *index.Retriever, budget *rewriteBudget) (jobs.Segment, error) {
	segment := jobs.Segment{Index: plan.Index, Status: jobs.SegmentDrafting}

	lines, err := s.draft(ctx, plan, outline, retriever)
	if err != nil {
		return segment, err
	}
	segment.Lines = lines

	segment.Status = jobs.SegmentVerifying
	if err := s.verifyLines(ctx, retriever, segment.Lines); err != nil {
		return segment, err
	}

	threshold := s.cfg.Scriptgen.MinVerifiedFraction
	for segment.VerifiedFraction() < threshold && segment.Rewrites < s.cfg.Scriptgen.RewriteCap {
		if !budget.take() {
			s.logger.Warn("rewrite budget exhausted",
				logging.Int(logging.FieldSegment, plan.Index),
				logging.Float64("verified_fraction", segment.VerifiedFraction()),
			)
			break
		}
		segment.Status = jobs.SegmentRewriting
		if err := s.rewriteUnsupported(ctx, retriever, segment.Lines); err != nil {
			return segment, err
		}
		segment.Rewrites++
		segment.Status = jobs.SegmentVerifying
		if err := s.verifyLines(ctx, retriever, segment.Lines); err != nil {
			return segment, err
		}
	}

	if segment.VerifiedFraction() >= threshold {
		segment.Status = jobs.SegmentVerified
	} else {
		segment.Status = jobs.SegmentFailed
		s.logger.Warn("segment failed verification",
			logging.Int(logging.FieldSegment, plan.Index),
			logging.Int("rewrites", segment.Rewrites),
			logging.Float64("verified_fraction", segment.VerifiedFraction()),
		)
	}
	return segment, nil
}

// draft generates the segment script grounded in retrieved facts, with
// style exemplars steering tone. The first line is a structural transition
// from the style bank so segments hand off naturally.
func (s *Stage) draft(ctx context.Context, plan jobs.SegmentPlan, outline *jobs.Outline, retriever *index.Retriever) ([]jobs.ScriptLine, error) {
	query := plan.Topic
	if len(plan.KeyPoints) > 0 {
		query += " " + strings.Join(plan.KeyPoints, " ")
	}

	factHits, err := retriever.Retrieve(ctx, query, index.KindFacts, s.cfg.Scriptgen.FactsTopK)
	if err != nil {
		return nil, services.Wrap(callMarker(err), "draft", "retrieve facts", "Fact retrieval failed", err)
	}
	if len(factHits) == 0 {
		return nil, services.Wrap(services.ErrStructural, "draft", "retrieve facts",
			fmt.Sprintf("No facts retrieved for segment %d", plan.Index), nil)
	}
	styleHits, err := retriever.Retrieve(ctx, query, index.KindStyle, s.cfg.Scriptgen.StyleTopK)
	if err != nil {
		return nil, services.Wrap(callMarker(err), "draft", "retrieve style", "Style retrieval failed", err)
	}

	contextChunks := make([]capability.ContextChunk, len(factHits))
	locators := make(map[string]string, len(factHits))
	for i, hit := range factHits {
		contextChunks[i] = capability.ContextChunk{ID: hit.ChunkID, Locator: hit.Locator, Text: hit.Text}
		locators[hit.ChunkID] = hit.Locator
	}

	raw, err := s.caps.Generator.Generate(ctx, capability.GenerateRequest{
		Operation: "script",
		System:    scriptSystemPrompt(outline.Style, styleHits),
		Prompt:    scriptUserPrompt(plan),
		Context:   contextChunks,
		Params: map[string]string{
			"speakers": strings.Join(s.roster(outline), ","),
			"turns":    strconv.Itoa(turnCount(plan.TargetSeconds, s.cfg.Planner.WordsPerMinute)),
		},
	})
	if err != nil {
		return nil, services.Wrap(callMarker(err), "draft", "generate script", "Script generation failed", err)
	}

	var payload struct {
		Lines []struct {
			Speaker   string   `json:"speaker"`
			Text      string   `json:"text"`
			Citations []string `json:"citations"`
		} `json:"lines"`
	}
	if err := capability.DecodeJSON(raw, &payload); err != nil {
		return nil, services.Wrap(services.ErrStructural, "draft", "parse script", "Script payload is not valid JSON", err)
	}
	if len(payload.Lines) == 0 {
		return nil, services.Wrap(services.ErrStructural, "draft", "parse script", "Script payload has no lines", nil)
	}

	lines := make([]jobs.ScriptLine, 0, len(payload.Lines)+1)
	if transition := s.transitionLine(plan, outline); transition != nil {
		lines = append(lines, *transition)
	}
	for i, drafted := range payload.Lines {
		text := strings.TrimSpace(drafted.Text)
		if text == "" {
			continue
		}
		line := jobs.ScriptLine{
			Speaker: normalizeSpeaker(drafted.Speaker, s.roster(outline), i),
			Text:    text,
			Kind:    jobs.LineContent,
			Verdict: jobs.VerdictUnchecked,
		}
		for _, id := range drafted.Citations {
			line.Citations = append(line.Citations, jobs.Citation{ChunkID: id, Locator: locators[id]})
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// transitionLine picks a deterministic transition snippet for every content
// segment except the first.
func (s *Stage) transitionLine(plan jobs.SegmentPlan, outline *jobs.Outline) *jobs.ScriptLine {
	if plan.Index <= 1 {
		return nil
	}
	patterns, err := index.LoadPatterns(outline.Style)
	if err != nil {
		return nil
	}
	transitions := index.PatternsByKind(patterns, index.PatternTransition)
	if len(transitions) == 0 {
		return nil
	}
	snippet := transitions[(plan.Index-2)%len(transitions)]
	return &jobs.ScriptLine{
		Speaker: s.roster(outline)[0],
		Text:    renderPattern(snippet.Text, outline.Topic),
		Kind:    jobs.LineStructural,
		Verdict: jobs.VerdictVerified,
	}
}

// verifyLines re-retrieves facts for every content line and marks it
// verified only when its best match clears the support threshold. The check
// is pure retrieval, so verifying twice always agrees.
func (s *Stage) verifyLines(ctx context.Context, retriever *index.Retriever, lines []jobs.ScriptLine) error {
	for i := range lines {
		if lines[i].Kind == jobs.LineStructural {
			lines[i].Verdict = jobs.VerdictVerified
			continue
		}
		hits, err := retriever.Retrieve(ctx, lines[i].Text, index.KindFacts, s.cfg.Scriptgen.FactsTopK)
		if err != nil {
			return services.Wrap(callMarker(err), "verify", "retrieve facts", "Verification retrieval failed", err)
		}
		if len(hits) == 0 || hits[0].Score < s.cfg.Scriptgen.SupportThreshold {
			lines[i].Verdict = jobs.VerdictUnsupported
			continue
		}
		best := hits[0]
		lines[i].Verdict = jobs.VerdictVerified
		lines[i].Citations = mergeCitation(lines[i].Citations, jobs.Citation{
			ChunkID:    best.ChunkID,
			Locator:    best.Locator,
			Similarity: best.Score,
		})
	}
	return nil
}

// rewriteUnsupported regenerates every unsupported line against its closest
// source material.
func (s *Stage) rewriteUnsupported(ctx context.Context, retriever *index.Retriever, lines []jobs.ScriptLine) error {
	for i := range lines {
		if lines[i].Verdict != jobs.VerdictUnsupported {
			continue
		}
		hits, err := retriever.Retrieve(ctx, lines[i].Text, index.KindFacts, s.cfg.Scriptgen.FactsTopK)
		if err != nil {
			return services.Wrap(callMarker(err), "rewrite", "retrieve facts", "Rewrite retrieval failed", err)
		}
		contextChunks := make([]capability.ContextChunk, 0, 3)
		locators := make(map[string]string, 3)
		for j, hit := range hits {
			if j == 3 {
				break
			}
			contextChunks = append(contextChunks, capability.ContextChunk{ID: hit.ChunkID, Locator: hit.Locator, Text: hit.Text})
			locators[hit.ChunkID] = hit.Locator
		}

		raw, err := s.caps.Generator.Generate(ctx, capability.GenerateRequest{
			Operation: "rewrite",
			System:    rewriteSystemPrompt,
			Prompt:    fmt.Sprintf("Rewrite this line so it states only what the excerpts support: %q", lines[i].Text),
			Context:   contextChunks,
		})
		if err != nil {
			return services.Wrap(callMarker(err), "rewrite", "generate", "Line rewrite failed", err)
		}
		var payload struct {
			Text      string   `json:"text"`
			Citations []string `json:"citations"`
		}
		if err := capability.DecodeJSON(raw, &payload); err != nil {
			return services.Wrap(services.ErrStructural, "rewrite", "parse", "Rewrite payload is not valid JSON", err)
		}
		if text := strings.TrimSpace(payload.Text); text != "" {
			lines[i].Text = text
		}
		lines[i].Verdict = jobs.VerdictUnchecked
		lines[i].Citations = nil
		for _, id := range payload.Citations {
			lines[i].Citations = append(lines[i].Citations, jobs.Citation{ChunkID: id, Locator: locators[id]})
		}
	}
	return nil
}

func mergeCitation(citations []jobs.Citation, best jobs.Citation) []jobs.Citation {
	for i := range citations {
		if citations[i].ChunkID == best.ChunkID {
			citations[i].Locator = best.Locator
			citations[i].Similarity = best.Similarity
			return citations
		}
	}
	return append(citations, best)
}

func normalizeSpeaker(speaker string, roster []string, position int) string {
	cleaned := strings.ToLower(strings.TrimSpace(speaker))
	for _, known := range roster {
		if cleaned == strings.ToLower(known) {
			return known
		}
	}
	return roster[position%len(roster)]
}

func turnCount(targetSeconds, wordsPerMinute int) int {
	if targetSeconds <= 0 || wordsPerMinute <= 0 {
		return 4
	}
	words := float64(targetSeconds) / 60 * float64(wordsPerMinute)
	turns := int(words / wordsPerTurn)
	if turns < 4 {
		turns = 4
	}
	if turns > 12 {
		turns = 12
	}
	return turns
}

func scriptSystemPrompt(style string, styleHits []index.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are writing one segment of a %s podcast. Respond with JSON only: {\"lines\":[{\"speaker\":string,\"text\":string,\"citations\":[string]}]}.\n", style)
	sb.WriteString("Every line must cite the excerpt IDs it draws from. Match the tone of these examples:\n")
	for _, hit := range styleHits {
		sb.WriteString("- " + hit.Text + "\n")
	}
	return sb.String()
}

func scriptUserPrompt(plan jobs.SegmentPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the segment about: %s\n", plan.Topic)
	if len(plan.KeyPoints) > 0 {
		sb.WriteString("Cover these points:\n")
		for _, point := range plan.KeyPoints {
			sb.WriteString("- " + point + "\n")
		}
	}
	fmt.Fprintf(&sb, "Target length: about %d seconds of speech.", plan.TargetSeconds)
	return sb.String()
}

const rewriteSystemPrompt = `You are correcting a podcast line that failed fact-checking. Respond with JSON only: {"text": string, "citations": [string]}. State only what the excerpts support and cite them.`
