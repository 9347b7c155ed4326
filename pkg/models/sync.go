package models

// SyncDecisionKind is the outcome of the Sync Decision Engine (C7, §4.5).
type SyncDecisionKind string

const (
	DecisionNone    SyncDecisionKind = "none"
	DecisionDelay   SyncDecisionKind = "delay"
	DecisionStretch SyncDecisionKind = "stretch"
	DecisionTrim    SyncDecisionKind = "trim"
	DecisionPad     SyncDecisionKind = "pad"
	DecisionReject  SyncDecisionKind = "reject"
)

// AnchorPoint is one video/audio timestamp correspondence used as sync
// evidence (GLOSSARY).
type AnchorPoint struct {
	VideoMs    float64 `json:"videoMs"`
	AudioMs    float64 `json:"audioMs"`
	Confidence float64 `json:"confidence"`
}

// TrimRegion is a span of audio or video to be cut as part of a `trim`
// correction plan.
type TrimRegion struct {
	StartMs float64 `json:"startMs"`
	EndMs   float64 `json:"endMs"`
}

// SyncMeasurement is the measurement-oracle contract (§4.5, §1): everything
// the Sync Decision Engine needs to decide, with no DSP of its own.
type SyncMeasurement struct {
	VideoDurationSec float64
	AudioDurationSec float64
	StartSilenceMs   float64
	EndSilenceMs     float64
	StartOffsetMs    float64
	MiddleOffsetMs   float64
	EndOffsetMs      float64
	DriftPerSecond   float64
	Confidence       float64
	Anchors          []AnchorPoint
	// MethodAgreementMs is the max disagreement, in ms, between at least two
	// independent measurement methods at the start anchor. A value below 50ms
	// satisfies rule 1 of §4.5's decision procedure.
	MethodAgreementMs float64
	IndependentMethods int
}

// SyncDecisionParams carries the bounded correction plan for whichever
// Decision was chosen. Only the fields relevant to Decision are meaningful.
type SyncDecisionParams struct {
	OffsetMs     float64      `json:"offsetMs,omitempty"`
	StretchRatio float64      `json:"stretchRatio,omitempty"`
	TrimRegions  []TrimRegion `json:"trimRegions,omitempty"`
}

// SyncDecision is the persisted outcome of C7 for one job (§3).
type SyncDecision struct {
	ID          string              `json:"id"`
	JobID       string              `json:"jobId"`
	Decision    SyncDecisionKind    `json:"decision"`
	Params      SyncDecisionParams  `json:"parameters"`
	Confidence  float64             `json:"confidence"`
	Measurement SyncMeasurement     `json:"-"`
	Rationale   string              `json:"rationale"`
}
