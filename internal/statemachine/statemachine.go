// Package statemachine enforces legal transitions over a job's lifecycle
// (C4, §4.3) and keeps its append-only transition history. It holds no
// external state of its own; the Pipeline Driver re-materializes one from a
// job's persisted history on restart via Deserialize.
package statemachine

import (
	"time"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// transitions is the legal arc table from §4.3.
var transitions = map[models.JobState][]models.JobState{
	models.StatePending: {
		models.StateDownloading, models.StateCancelled, models.StateFailed,
	},
	models.StateDownloading: {
		models.StateAnalyzing, models.StateCancelled, models.StateFailed,
	},
	models.StateAnalyzing: {
		models.StateSyncing, models.StateProcessing, models.StateCancelled, models.StateFailed,
	},
	models.StateSyncing: {
		models.StateProcessing, models.StateCancelled, models.StateFailed,
	},
	models.StateProcessing: {
		models.StateValidating, models.StateCancelled, models.StateFailed,
	},
	models.StateValidating: {
		models.StatePackaged, models.StateProcessing, models.StateCancelled, models.StateFailed,
	},
	models.StatePackaged: {
		models.StateUploaded, models.StateCancelled, models.StateFailed,
	},
	models.StateUploaded: {
		models.StateDone, models.StateCancelled, models.StateFailed,
	},
	models.StateDone:      {},
	models.StateFailed:    {models.StatePending},
	models.StateCancelled: {models.StatePending},
}

// Machine holds one job's current state and its transition history.
type Machine struct {
	jobID   string
	current models.JobState
	history []models.StateTransition
}

// New constructs a Machine for a freshly-created job, starting in PENDING.
func New(jobID string) *Machine {
	return &Machine{jobID: jobID, current: models.StatePending}
}

// Deserialize reconstructs a Machine from persisted state and history,
// without validating that history against the transition table — it is
// assumed to already be valid, having been produced by this package.
func Deserialize(jobID string, state models.JobState, history []models.StateTransition) *Machine {
	return &Machine{jobID: jobID, current: state, history: append([]models.StateTransition(nil), history...)}
}

// Current returns the job's current state.
func (m *Machine) Current() models.JobState { return m.current }

// History returns a copy of the transition history.
func (m *Machine) History() []models.StateTransition {
	return append([]models.StateTransition(nil), m.history...)
}

// CanTransitionTo reports whether target is a legal arc from the current
// state.
func (m *Machine) CanTransitionTo(target models.JobState) bool {
	for _, s := range transitions[m.current] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo appends a StateTransition and mutates the current state
// atomically, or fails with InvalidStateTransition if the arc is not legal.
func (m *Machine) TransitionTo(target models.JobState, reason string, metadata map[string]interface{}) error {
	if !m.CanTransitionTo(target) {
		return enginerr.New(enginerr.KindInvalidState, "invalid_state_transition",
			"illegal transition").WithDetails(map[string]interface{}{
			"jobId": m.jobID,
			"from":  string(m.current),
			"to":    string(target),
		})
	}

	from := m.current
	m.current = target
	m.history = append(m.history, models.StateTransition{
		From:     from,
		To:       target,
		At:       time.Now(),
		Reason:   reason,
		Metadata: metadata,
	})
	return nil
}

// IsTerminal reports whether the current state is DONE or FAILED. CANCELLED
// is deliberately excluded because it may re-enter PENDING (§4.3, §9).
func (m *Machine) IsTerminal() bool {
	return models.IsTerminalState(m.current)
}
