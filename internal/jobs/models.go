package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of an episode job. Odd entries are stage
// start statuses, even entries the corresponding done statuses; the pairing
// is what makes every stage boundary a resume point.
type Status string

const (
	StatusPending    Status = "pending"
	StatusIndexing   Status = "indexing"
	StatusIndexed    Status = "indexed"
	StatusPlanning   Status = "planning"
	StatusPlanned    Status = "planned"
	StatusDrafting   Status = "drafting"
	StatusDrafted    Status = "drafted"
	StatusAssembling Status = "assembling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message set when jobs are failed due to
// daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusIndexing,
	StatusIndexed,
	StatusPlanning,
	StatusPlanned,
	StatusDrafting,
	StatusDrafted,
	StatusAssembling,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusIndexing:   {},
	StatusPlanning:   {},
	StatusDrafting:   {},
	StatusAssembling: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether no further transitions leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// SegmentStatus tracks a segment through the draft/verify/rewrite loop.
type SegmentStatus string

const (
	SegmentDrafting  SegmentStatus = "drafting"
	SegmentVerifying SegmentStatus = "verifying"
	SegmentRewriting SegmentStatus = "rewriting"
	SegmentVerified  SegmentStatus = "verified"
	SegmentFailed    SegmentStatus = "failed"
)

// Verdict is the fact-check outcome for one script line.
type Verdict string

const (
	VerdictUnchecked   Verdict = "unchecked"
	VerdictVerified    Verdict = "verified"
	VerdictUnsupported Verdict = "unsupported"
)

// LineKind distinguishes factual content lines, which must verify against
// the source, from structural lines (intros, transitions) that carry no
// claims.
type LineKind string

const (
	LineContent    LineKind = "content"
	LineStructural LineKind = "structural"
)

// Citation points a script line at the source chunk that supports it.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	Locator    string  `json:"locator"`
	Similarity float64 `json:"similarity,omitempty"`
}

// ScriptLine is one speaker turn in a segment script.
type ScriptLine struct {
	Speaker   string     `json:"speaker"`
	Text      string     `json:"text"`
	Kind      LineKind   `json:"kind"`
	Verdict   Verdict    `json:"verdict"`
	Citations []Citation `json:"citations,omitempty"`
}

// WordCount returns the number of words in the line.
func (l ScriptLine) WordCount() int {
	return len(strings.Fields(l.Text))
}

// SegmentPlan is one planned segment in the episode outline.
type SegmentPlan struct {
	Index         int      `json:"index"`
	Kind          LineKind `json:"kind"`
	Topic         string   `json:"topic"`
	KeyPoints     []string `json:"key_points,omitempty"`
	TargetSeconds int      `json:"target_seconds"`
}

// Outline is the planner's episode blueprint.
type Outline struct {
	Topic    string        `json:"topic"`
	Style    string        `json:"style"`
	Speakers []string      `json:"speakers"`
	Segments []SegmentPlan `json:"segments"`
}

// Segment is one drafted segment with its verification state.
type Segment struct {
	Index    int           `json:"index"`
	Status   SegmentStatus `json:"status"`
	Rewrites int           `json:"rewrites"`
	Lines    []ScriptLine  `json:"lines"`
}

// VerifiedFraction returns the share of content lines that verified.
// Structural lines are excluded; a segment of only structural lines counts
// as fully verified.
func (s Segment) VerifiedFraction() float64 {
	var content, verified int
	for _, line := range s.Lines {
		if line.Kind == LineStructural {
			continue
		}
		content++
		if line.Verdict == VerdictVerified {
			verified++
		}
	}
	if content == 0 {
		return 1
	}
	return float64(verified) / float64(content)
}

// Report summarizes verification outcomes for the finished (or failed) job.
type Report struct {
	Segments         int     `json:"segments"`
	ContentLines     int     `json:"content_lines"`
	VerifiedLines    int     `json:"verified_lines"`
	UnsupportedLines int     `json:"unsupported_lines"`
	RewritesUsed     int     `json:"rewrites_used"`
	VerifiedFraction float64 `json:"verified_fraction"`
	EpisodeSeconds   float64 `json:"episode_seconds,omitempty"`
}

// BuildReport aggregates the per-line verdicts across segments.
func BuildReport(segments []Segment, rewritesUsed int) Report {
	report := Report{Segments: len(segments), RewritesUsed: rewritesUsed}
	for _, segment := range segments {
		for _, line := range segment.Lines {
			if line.Kind == LineStructural {
				continue
			}
			report.ContentLines++
			switch line.Verdict {
			case VerdictVerified:
				report.VerifiedLines++
			case VerdictUnsupported:
				report.UnsupportedLines++
			}
		}
	}
	if report.ContentLines == 0 {
		report.VerifiedFraction = 1
	} else {
		report.VerifiedFraction = float64(report.VerifiedLines) / float64(report.ContentLines)
	}
	return report
}

// Document is a submitted source document with its persisted fact chunks.
type Document struct {
	ID          int64
	Title       string
	SourcePath  string
	StagedPath  string
	ContentHash string
	Pages       int
	WordCount   int
	ChunksJSON  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Job represents an episode job persisted in SQLite.
type Job struct {
	ID              int64
	Token           string
	DocumentID      int64
	Title           string
	Style           string
	SpeakersJSON    string
	Status          Status
	OutlineJSON     string
	SegmentsJSON    string
	ReportJSON      string
	EpisodePath     string
	TranscriptPath  string
	ErrorMessage    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	RewritesUsed    int
	StartedAt       *time.Time
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (j Job) IsProcessing() bool {
	return IsProcessingStatus(j.Status)
}

// Speakers decodes the speaker roster.
func (j Job) Speakers() []string {
	if strings.TrimSpace(j.SpeakersJSON) == "" {
		return nil
	}
	var speakers []string
	if err := json.Unmarshal([]byte(j.SpeakersJSON), &speakers); err != nil {
		return nil
	}
	return speakers
}

// SetSpeakers encodes the speaker roster.
func (j *Job) SetSpeakers(speakers []string) error {
	data, err := json.Marshal(speakers)
	if err != nil {
		return fmt.Errorf("marshal speakers: %w", err)
	}
	j.SpeakersJSON = string(data)
	return nil
}

// Outline decodes the stored outline, if any.
func (j Job) Outline() (*Outline, error) {
	if strings.TrimSpace(j.OutlineJSON) == "" {
		return nil, nil
	}
	var outline Outline
	if err := json.Unmarshal([]byte(j.OutlineJSON), &outline); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	return &outline, nil
}

// SetOutline encodes and stores the outline.
func (j *Job) SetOutline(outline *Outline) error {
	if outline == nil {
		j.OutlineJSON = ""
		return nil
	}
	data, err := json.Marshal(outline)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	j.OutlineJSON = string(data)
	return nil
}

// Segments decodes the stored segment scripts, if any.
func (j Job) Segments() ([]Segment, error) {
	if strings.TrimSpace(j.SegmentsJSON) == "" {
		return nil, nil
	}
	var segments []Segment
	if err := json.Unmarshal([]byte(j.SegmentsJSON), &segments); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	return segments, nil
}

// SetSegments encodes and stores the segment scripts.
func (j *Job) SetSegments(segments []Segment) error {
	if segments == nil {
		j.SegmentsJSON = ""
		return nil
	}
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	j.SegmentsJSON = string(data)
	return nil
}

// SetReport encodes and stores the verification report.
func (j *Job) SetReport(report Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	j.ReportJSON = string(data)
	return nil
}

// GetReport decodes the stored report, if any.
func (j Job) GetReport() (*Report, error) {
	if strings.TrimSpace(j.ReportJSON) == "" {
		return nil, nil
	}
	var report Report
	if err := json.Unmarshal([]byte(j.ReportJSON), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// InitProgress resets progress fields for a new stage. If ProgressStage is
// currently empty, it is set to the provided stage value; otherwise the
// existing stage is preserved to support resume.
func (j *Job) InitProgress(stage, message string) {
	if j.ProgressStage == "" {
		j.ProgressStage = stage
	}
	j.ProgressMessage = message
	j.ProgressPercent = 0
	j.ErrorMessage = ""
}

// SetProgress updates all three progress fields together.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (j *Job) SetProgressComplete(stage, message string) {
	j.SetProgress(stage, message, 100)
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressPercent = 0
	j.ProgressMessage = message
	j.LastHeartbeat = nil
	j.ProgressStage = "Failed"
}

// HealthSummary describes aggregated job counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}
