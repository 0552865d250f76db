package api

// JobView describes an episode job in a transport-friendly format.
type JobView struct {
	ID              int64        `json:"id"`
	Token           string       `json:"token"`
	Title           string       `json:"title"`
	Style           string       `json:"style"`
	Speakers        []string     `json:"speakers"`
	Status          string       `json:"status"`
	Progress        JobProgress  `json:"progress"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	RewritesUsed    int          `json:"rewritesUsed"`
	EpisodePath     string       `json:"episodePath,omitempty"`
	TranscriptPath  string       `json:"transcriptPath,omitempty"`
	DocumentID      int64        `json:"documentId"`
	CreatedAt       string       `json:"createdAt,omitempty"`
	UpdatedAt       string       `json:"updatedAt,omitempty"`
	Report          *ReportView  `json:"report,omitempty"`
	Segments        []SegmentRow `json:"segments,omitempty"`
}

// JobProgress captures stage progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// SegmentRow summarizes one script segment for display.
type SegmentRow struct {
	Index            int     `json:"index"`
	Status           string  `json:"status"`
	Lines            int     `json:"lines"`
	Rewrites         int     `json:"rewrites"`
	VerifiedFraction float64 `json:"verifiedFraction"`
}

// ReportView mirrors the verification report persisted on completed jobs.
type ReportView struct {
	ContentLines     int     `json:"contentLines"`
	VerifiedLines    int     `json:"verifiedLines"`
	UnsupportedLines int     `json:"unsupportedLines"`
	VerifiedFraction float64 `json:"verifiedFraction"`
	RewritesUsed     int     `json:"rewritesUsed"`
	EpisodeSeconds   float64 `json:"episodeSeconds"`
}

// SubmitRequest carries the parameters for a new episode job.
type SubmitRequest struct {
	Path     string   `json:"path"`
	Title    string   `json:"title,omitempty"`
	Style    string   `json:"style,omitempty"`
	Speakers []string `json:"speakers,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// CheckResult mirrors one preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	JobStats    map[string]int `json:"jobStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *JobView       `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	JobDBPath    string         `json:"jobDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
	Preflight    []CheckResult  `json:"preflight,omitempty"`
}

// ErrorResponse is the uniform error payload for API failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CountResponse reports how many rows a maintenance operation touched.
type CountResponse struct {
	Affected int64 `json:"affected"`
}
