// Package syncdecision implements the Sync Decision Engine (C7, §4.5): a
// pure function turning audio/video measurements into a bounded correction
// plan, or a rejection. It never calls out to a measurement oracle itself —
// that contract is satisfied by whatever fed it a models.SyncMeasurement.
package syncdecision

import (
	"fmt"
	"math"

	"github.com/shlokdhakrey/media-bot-sub002/internal/config"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// Engine evaluates SyncMeasurements against a fixed set of thresholds.
type Engine struct {
	thresholds config.SyncConfig
}

// New constructs an Engine bound to the given thresholds (§4.5 defaults live
// in config.DefaultConfig().Sync).
func New(thresholds config.SyncConfig) *Engine {
	return &Engine{thresholds: thresholds}
}

// Decide runs the deterministic decision procedure of §4.5 over m and
// returns the resulting SyncDecision for jobID.
func (e *Engine) Decide(jobID string, m models.SyncMeasurement) models.SyncDecision {
	t := e.thresholds

	decision := models.SyncDecision{
		JobID:       jobID,
		Confidence:  m.Confidence,
		Measurement: m,
	}

	// Rule 1: fewer than two independent methods agreeing within 50ms at the
	// start anchor, or overall confidence below the floor, is insufficient
	// evidence to act on.
	if m.IndependentMethods < 2 || m.MethodAgreementMs > 50 {
		decision.Decision = models.DecisionReject
		decision.Rationale = "low-confidence: fewer than two independent measurement methods agree within 50ms at the start anchor"
		return decision
	}
	if m.Confidence < t.ConfidenceFloor {
		decision.Decision = models.DecisionReject
		decision.Rationale = fmt.Sprintf("low-confidence: measured confidence %.2f is below the floor %.2f", m.Confidence, t.ConfidenceFloor)
		return decision
	}

	durationSec := m.VideoDurationSec
	if durationSec <= 0 {
		durationSec = m.AudioDurationSec
	}
	if durationSec <= 0 {
		decision.Decision = models.DecisionReject
		decision.Rationale = "low-confidence: no usable duration to evaluate drift against"
		return decision
	}

	offsets := []float64{m.StartOffsetMs, m.MiddleOffsetMs, m.EndOffsetMs}
	maxAbs := math.Max(math.Abs(m.StartOffsetMs), math.Max(math.Abs(m.MiddleOffsetMs), math.Abs(m.EndOffsetMs)))
	driftMetric := math.Abs(m.DriftPerSecond)
	driftSignificant := driftMetric >= t.DriftSignificantMsPs
	o := median(offsets)

	// Rule 2: same-duration-by-itself evidence is never admissible; only
	// multi-point agreement within threshold, with insignificant drift,
	// counts as in sync.
	if !driftSignificant && maxAbs <= t.InSyncThresholdMs {
		decision.Decision = models.DecisionNone
		decision.Rationale = "same-duration does not imply sync; multi-point agreement within the in-sync threshold and insignificant drift"
		return decision
	}

	signsAgree := sameSign(m.StartOffsetMs, m.EndOffsetMs)

	// Rule 3: significant, consistently-signed drift is corrected by
	// stretching, bounded to a narrow ratio clamp.
	if driftSignificant && signsAgree {
		ratio := 1.0
		if m.AudioDurationSec > 0 {
			ratio = (m.AudioDurationSec - m.DriftPerSecond*m.VideoDurationSec/1000) / m.AudioDurationSec
		}
		if ratio < t.StretchClampLow || ratio > t.StretchClampHigh {
			decision.Decision = models.DecisionReject
			decision.Rationale = fmt.Sprintf("stretch ratio %.4f falls outside the [%.2f, %.2f] clamp; refusing rather than compounding corrections", ratio, t.StretchClampLow, t.StretchClampHigh)
			return decision
		}
		decision.Decision = models.DecisionStretch
		decision.Params = models.SyncDecisionParams{StretchRatio: ratio}
		decision.Rationale = fmt.Sprintf("significant drift (%.2fms/s) with consistently-signed offsets corrected by stretch ratio %.4f", driftMetric, ratio)
		return decision
	}

	// Rule 7: drift significant but offsets don't agree in sign and the
	// constant component is large — the engine refuses to compound a
	// stretch and an offset correction.
	if driftSignificant && maxAbs > t.ModerateThresholdMs {
		decision.Decision = models.DecisionReject
		decision.Rationale = "mixed-symptoms: significant drift together with a large, inconsistently-signed constant offset; refusing to compound corrections"
		return decision
	}

	// Rules 4-6 correct a constant offset only; significant drift whose
	// offsets disagree in sign has no single correction.
	if driftSignificant {
		decision.Decision = models.DecisionReject
		decision.Rationale = "mixed-symptoms: significant drift with inconsistently-signed offsets; no single correction applies"
		return decision
	}

	// Rule 4: a positive, roughly-constant offset is corrected by delaying
	// (padding/shifting) the audio.
	if o > 0 {
		decision.Decision = models.DecisionDelay
		decision.Params = models.SyncDecisionParams{OffsetMs: o}
		decision.Rationale = "multi-point agreement; drift insignificant; positive constant offset corrected by delay"
		return decision
	}

	// Rules 5/6: a negative offset is trimmed if there is enough leading
	// silence to absorb it, otherwise the audio must be padded instead.
	if o < 0 {
		mag := math.Abs(o)
		if mag < m.StartSilenceMs {
			decision.Decision = models.DecisionTrim
			decision.Params = models.SyncDecisionParams{OffsetMs: mag}
			decision.Rationale = "multi-point agreement; drift insignificant; negative offset absorbed by trimming available leading silence"
			return decision
		}
		decision.Decision = models.DecisionPad
		decision.Params = models.SyncDecisionParams{OffsetMs: mag}
		decision.Rationale = "multi-point agreement; drift insignificant; negative offset exceeds available leading silence, padding instead"
		return decision
	}

	// A zero median with offsets outside the in-sync threshold is not in
	// sync (rule 2) and has no constant offset to correct.
	decision.Decision = models.DecisionReject
	decision.Rationale = "zero median offset with insignificant drift, but offsets exceed the in-sync threshold; no single correction applies"
	return decision
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return true
	}
	return (a > 0) == (b > 0)
}
