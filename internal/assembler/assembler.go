// Package assembler implements the audio stage: it synthesizes every
// script line, stitches the clips into one episode file, and writes the
// transcript and verification report next to it.
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"papercast/internal/audio"
	"papercast/internal/capability"
	"papercast/internal/config"
	"papercast/internal/jobs"
	"papercast/internal/logging"
	"papercast/internal/services"
	"papercast/internal/stage"
)

// reconcileTolerance is how far the stitched duration may drift from the
// sum of clip durations before the mismatch is logged.
const reconcileTolerance = 250 * time.Millisecond

// Stage integrates audio assembly with the workflow manager.
type Stage struct {
	cfg    *config.Config
	store  *jobs.Store
	synth  capability.Synthesizer
	logger *slog.Logger
}

// NewStage constructs the assembly stage.
func NewStage(cfg *config.Config, store *jobs.Store, synth capability.Synthesizer, logger *slog.Logger) *Stage {
	return &Stage{cfg: cfg, store: store, synth: synth, logger: logging.NewComponentLogger(logger, "assembler")}
}

// SetLogger routes stage logs into the job-scoped log.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "assembler")
}

// Prepare primes progress fields before executing the stage.
func (s *Stage) Prepare(_ context.Context, job *jobs.Job) error {
	if s == nil || s.synth == nil {
		return services.Wrap(services.ErrConfiguration, "assemble", "prepare", "Assembly stage is not configured", nil)
	}
	job.InitProgress("Assembling", "Synthesizing episode audio")
	return nil
}

// Execute renders the verified script into the final episode artifacts.
func (s *Stage) Execute(ctx context.Context, job *jobs.Job) error {
	segments, err := job.Segments()
	if err != nil || len(segments) == 0 {
		return services.Wrap(services.ErrFatal, "assemble", "load segments",
			"Segments missing; drafting stage did not complete", err)
	}
	included := make([]jobs.Segment, 0, len(segments))
	for _, segment := range segments {
		switch segment.Status {
		case jobs.SegmentVerified:
			included = append(included, segment)
		case jobs.SegmentFailed:
			// Left out of the episode; the report keeps its status.
			s.logger.Warn("excluding failed segment from episode",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Int(logging.FieldSegment, segment.Index),
			)
		default:
			return services.Wrap(services.ErrFatal, "assemble", "load segments",
				fmt.Sprintf("Segment %d is %s, drafting did not finish", segment.Index, segment.Status), nil)
		}
	}
	if len(included) == 0 {
		return services.Wrap(services.ErrContent, "assemble", "load segments",
			"Every segment failed verification; nothing to assemble", nil)
	}

	var (
		clips       [][]byte
		expectedSum time.Duration
		lineTotal   int
	)
	for _, segment := range included {
		lineTotal += len(segment.Lines)
	}
	rendered := 0
	for _, segment := range included {
		for _, line := range segment.Lines {
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			clip, err := s.synth.Synthesize(ctx, line.Text, line.Speaker)
			if err != nil {
				marker := services.ErrTransient
				if capability.IsAuthError(err) {
					marker = services.ErrFatal
				}
				return services.Wrap(marker, "assemble", "synthesize",
					fmt.Sprintf("Speech synthesis failed for segment %d", segment.Index), err)
			}
			clips = append(clips, clip.Data)
			expectedSum += clip.Duration
			rendered++
			job.SetProgress("Assembling", fmt.Sprintf("Synthesized %d/%d lines", rendered, lineTotal),
				float64(rendered)/float64(lineTotal)*80)
		}
	}
	if len(clips) == 0 {
		return services.Wrap(services.ErrContent, "assemble", "synthesize", "Script produced no audio", nil)
	}

	job.SetProgress("Assembling", "Stitching episode", 85)
	episode, duration, err := s.stitch(clips)
	if err != nil {
		return services.Wrap(services.ErrStructural, "assemble", "stitch", "Failed to assemble episode audio", err)
	}
	if drift := duration - expectedSum; drift > reconcileTolerance || drift < -reconcileTolerance {
		s.logger.Warn("episode duration drifted from clip sum",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Duration("clip_sum", expectedSum),
			logging.Duration("episode", duration),
		)
	}

	if err := s.writeArtifacts(job, included, segments, episode, duration); err != nil {
		return err
	}
	job.SetProgressComplete("Assembling", fmt.Sprintf("Episode ready (%s)", duration.Round(time.Second)))
	return nil
}

// stitch joins clips at the container level when formats agree and falls
// back to a sample-level combine when they don't. The fallback re-encodes
// exactly once.
func (s *Stage) stitch(clips [][]byte) ([]byte, time.Duration, error) {
	format, uniform, err := audio.UniformFormat(clips)
	if err != nil {
		return nil, 0, err
	}
	if uniform {
		return audio.Join(clips)
	}
	s.logger.Info("mixed clip formats; combining at sample level",
		logging.Int("clips", len(clips)),
		logging.Int("first_sample_rate", format.SampleRate),
	)
	return audio.Combine(clips)
}

// writeArtifacts renders the transcript from the assembled segments only,
// while the report covers every segment so excluded failures stay visible.
func (s *Stage) writeArtifacts(job *jobs.Job, included, all []jobs.Segment, episode []byte, duration time.Duration) error {
	dir := filepath.Join(s.cfg.Paths.EpisodeDir, job.Token)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrFatal, "assemble", "write artifacts", "Failed to create episode directory", err)
	}

	episodePath := filepath.Join(dir, "episode.wav")
	if err := os.WriteFile(episodePath, episode, 0o644); err != nil {
		return services.Wrap(services.ErrFatal, "assemble", "write artifacts", "Failed to write episode audio", err)
	}

	transcriptPath := filepath.Join(dir, "transcript.txt")
	if err := os.WriteFile(transcriptPath, []byte(renderTranscript(job, included)), 0o644); err != nil {
		return services.Wrap(services.ErrFatal, "assemble", "write artifacts", "Failed to write transcript", err)
	}

	report, err := job.GetReport()
	if err != nil || report == nil {
		built := jobs.BuildReport(all, job.RewritesUsed)
		report = &built
	}
	report.EpisodeSeconds = duration.Seconds()
	if err := job.SetReport(*report); err != nil {
		return services.Wrap(services.ErrFatal, "assemble", "write artifacts", "Failed to serialize report", err)
	}
	reportData, err := json.MarshalIndent(buildReportArtifact(job, all, *report), "", "  ")
	if err != nil {
		return services.Wrap(services.ErrFatal, "assemble", "write artifacts", "Failed to encode report", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), reportData, 0o644); err != nil {
		return services.Wrap(services.ErrFatal, "assemble", "write artifacts", "Failed to write report", err)
	}

	job.EpisodePath = episodePath
	job.TranscriptPath = transcriptPath
	return nil
}

// reportArtifact is the JSON shape written to report.json. It extends the
// stored aggregate report with per-segment scores, the distinct citation
// locators drawn on by the script, and wall-clock elapsed time.
type reportArtifact struct {
	jobs.Report
	SegmentDetail  []segmentReport `json:"segment_detail"`
	Citations      []string        `json:"citations,omitempty"`
	ElapsedSeconds float64         `json:"elapsed_seconds,omitempty"`
}

type segmentReport struct {
	Index            int     `json:"index"`
	Status           string  `json:"status"`
	Lines            int     `json:"lines"`
	Rewrites         int     `json:"rewrites"`
	VerifiedFraction float64 `json:"verified_fraction"`
}

func buildReportArtifact(job *jobs.Job, segments []jobs.Segment, report jobs.Report) reportArtifact {
	artifact := reportArtifact{Report: report}
	seen := make(map[string]struct{})
	for _, segment := range segments {
		artifact.SegmentDetail = append(artifact.SegmentDetail, segmentReport{
			Index:            segment.Index,
			Status:           string(segment.Status),
			Lines:            len(segment.Lines),
			Rewrites:         segment.Rewrites,
			VerifiedFraction: segment.VerifiedFraction(),
		})
		for _, line := range segment.Lines {
			for _, citation := range line.Citations {
				if citation.Locator == "" {
					continue
				}
				if _, ok := seen[citation.Locator]; ok {
					continue
				}
				seen[citation.Locator] = struct{}{}
				artifact.Citations = append(artifact.Citations, citation.Locator)
			}
		}
	}
	sort.Strings(artifact.Citations)
	if job.StartedAt != nil {
		artifact.ElapsedSeconds = time.Since(*job.StartedAt).Seconds()
	}
	return artifact
}

func renderTranscript(job *jobs.Job, segments []jobs.Segment) string {
	var sb strings.Builder
	title := job.Title
	if title == "" {
		title = "Untitled Episode"
	}
	fmt.Fprintf(&sb, "%s\nStyle: %s\n\n", title, job.Style)
	for _, segment := range segments {
		for _, line := range segment.Lines {
			fmt.Fprintf(&sb, "%s: %s", line.Speaker, line.Text)
			if len(line.Citations) > 0 {
				refs := make([]string, 0, len(line.Citations))
				for _, citation := range line.Citations {
					if citation.Locator != "" {
						refs = append(refs, citation.Locator)
					}
				}
				if len(refs) > 0 {
					fmt.Fprintf(&sb, " [%s]", strings.Join(refs, ", "))
				}
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// HealthCheck verifies the speech capability is reachable.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	if s == nil || s.synth == nil {
		return stage.Unhealthy("assembler", "speech capability unavailable")
	}
	if hc, ok := s.synth.(capability.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return stage.Unhealthy("assembler", err.Error())
		}
	}
	return stage.Healthy("assembler")
}
