package models

import "time"

// ProgressRecord is the ephemeral, last-writer-wins progress snapshot for a
// running job (§3, §6). Stored in the progress store under key
// "media-bot:progress:<jobId>" with a 3600s TTL.
type ProgressRecord struct {
	JobID      string    `json:"jobId"`
	Downloader string    `json:"downloader"`
	Progress   int       `json:"progress"`
	Speed      string    `json:"speed,omitempty"`
	ETA        string    `json:"eta,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StateTransition is one immutable entry in a job's StateHistory (§3).
type StateTransition struct {
	From      JobState               `json:"from"`
	To        JobState               `json:"to"`
	At        time.Time              `json:"at"`
	Reason    string                 `json:"reason,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
