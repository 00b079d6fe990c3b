package domain

import "time"

type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// Terminal reports whether a state cannot change anymore. State transitions
// are monotonic: running moves to exactly one of succeeded or failed.
func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

type RunMode string

const (
	ModeDry  RunMode = "dry"
	ModeReal RunMode = "run"
)

// RunMeta carries the identity stamp recorded at run creation. Progress
// writes must never erase it (merge-not-replace on the status document).
type RunMeta struct {
	Email         string `json:"email,omitempty"`
	OwnerHash     string `json:"ownerHash,omitempty"`
	ProfileID     string `json:"profileId,omitempty"`
	AccessKeyHash string `json:"accessKeyHash,omitempty"`
}

// Progress is the per-document position of a running pipeline.
type Progress struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	File  string `json:"file,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// SummaryDetail is one per-document outcome line attached to the run summary.
type SummaryDetail struct {
	File        string  `json:"file"`
	PlacedAt    string  `json:"to,omitempty"`
	Planned     string  `json:"planned,omitempty"`
	DuplicateOf FileRef `json:"duplicate_of,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Summary accumulates counters across one pipeline execution. Per-document
// errors are counted here instead of aborting the run.
type Summary struct {
	Processed  int             `json:"processed"`
	Moved      int             `json:"moved"`
	Duplicates int             `json:"duplicates"`
	Errors     int             `json:"errors"`
	OCRSources map[string]int  `json:"ocr_sources,omitempty"`
	Details    []SummaryDetail `json:"details,omitempty"`
}

func (s *Summary) CountOCRSource(source string) {
	if source == "" {
		return
	}
	if s.OCRSources == nil {
		s.OCRSources = map[string]int{}
	}
	s.OCRSources[source]++
}

// RunRecord is the persisted status document of one run.
type RunRecord struct {
	OK        bool      `json:"ok"`
	RunID     string    `json:"runId"`
	State     RunState  `json:"state"`
	Mode      RunMode   `json:"mode"`
	Meta      *RunMeta  `json:"meta,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
	Summary   *Summary  `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// LogEntry is one line of a run's append-only NDJSON log.
type LogEntry struct {
	TS     time.Time `json:"ts"`
	Level  string    `json:"level"`
	Msg    string    `json:"msg"`
	Detail string    `json:"detail,omitempty"`
}

// ArtifactURLs are the signed read-only links issued to a run's owner.
type ArtifactURLs struct {
	StatusURL string `json:"statusUrl"`
	LogsURL   string `json:"logsUrl,omitempty"`
}
