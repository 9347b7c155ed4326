// Package models holds the domain types shared across the pipeline engine:
// Job, Download, ProcessingStep, SyncDecision and their supporting value
// types. They carry JSON tags for direct API serialization, mirroring the
// shape of pkg/models in the teacher repo.
package models

import "time"

// JobState is one of the pipeline lifecycle states defined in §4.3.
type JobState string

const (
	StatePending     JobState = "PENDING"
	StateDownloading JobState = "DOWNLOADING"
	StateAnalyzing   JobState = "ANALYZING"
	StateSyncing     JobState = "SYNCING"
	StateProcessing  JobState = "PROCESSING"
	StateValidating  JobState = "VALIDATING"
	StatePackaged    JobState = "PACKAGED"
	StateUploaded    JobState = "UPLOADED"
	StateDone        JobState = "DONE"
	StateFailed      JobState = "FAILED"
	StateCancelled   JobState = "CANCELLED"
)

// JobKind distinguishes how far through the pipeline a job should run.
type JobKind string

const (
	KindDownload     JobKind = "download"
	KindAnalyzeOnly  JobKind = "analyze-only"
	KindFullPipeline JobKind = "full-pipeline"
)

// JobPriority is stored on the job and passed to the router's Request; the
// router and the per-stage semaphores do not order work by it.
type JobPriority string

const (
	PriorityLow    JobPriority = "low"
	PriorityNormal JobPriority = "normal"
	PriorityHigh   JobPriority = "high"
)

// Job is one user-initiated pipeline attempt for one source link.
type Job struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	Link        string      `json:"link"`
	Kind        JobKind     `json:"kind"`
	Priority    JobPriority `json:"priority"`
	State       JobState    `json:"status"`
	Progress    int         `json:"progress"`
	RetryCount  int         `json:"retryCount"`
	Revalidated bool        `json:"-"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	TerminalAt  *time.Time  `json:"terminalAt,omitempty"`
}

// IsTerminalState reports whether s is DONE or FAILED. CANCELLED is
// deliberately excluded: it may re-enter PENDING on retry (§4.3, §9).
func IsTerminalState(s JobState) bool {
	return s == StateDone || s == StateFailed
}

// MediaAsset records the files produced by the DOWNLOADING stage and later
// annotated by the probe during ANALYZING.
type MediaAsset struct {
	JobID        string   `json:"jobId"`
	VideoPath    string   `json:"videoPath,omitempty"`
	AudioPaths   []string `json:"audioPaths,omitempty"`
	SubtitlePath []string `json:"subtitlePaths,omitempty"`
	HasVideo     bool     `json:"hasVideo"`
	HasAudio     bool     `json:"hasAudio"`
	DurationSec  float64  `json:"durationSec"`
}

// AuditEntry is one immutable record in a job's audit log (§3).
type AuditEntry struct {
	ID       int64                  `json:"id"`
	JobID    string                 `json:"jobId"`
	At       time.Time              `json:"at"`
	Stage    string                 `json:"stage"`
	Kind     string                 `json:"kind"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
