package statemachine

import (
	"errors"
	"testing"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

func TestTransitionToLegalArc(t *testing.T) {
	m := New("job-1")
	if err := m.TransitionTo(models.StateDownloading, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Current() != models.StateDownloading {
		t.Fatalf("current = %v, want DOWNLOADING", m.Current())
	}
	if len(m.History()) != 1 {
		t.Fatalf("history len = %d, want 1", len(m.History()))
	}
}

func TestTransitionToIllegalArc(t *testing.T) {
	m := New("job-1")
	err := m.TransitionTo(models.StateAnalyzing, "", nil)
	if err == nil {
		t.Fatal("expected InvalidStateTransition error")
	}
	var ee *enginerr.Error
	if !errors.As(err, &ee) {
		t.Fatalf("expected *enginerr.Error, got %T", err)
	}
	if ee.Kind != enginerr.KindInvalidState {
		t.Errorf("kind = %v, want InvalidStateTransition", ee.Kind)
	}
	if m.Current() != models.StatePending {
		t.Errorf("current should be unchanged after illegal transition, got %v", m.Current())
	}
}

func TestCancelledIsNotTerminalButFailedIs(t *testing.T) {
	m := New("job-1")
	_ = m.TransitionTo(models.StateDownloading, "", nil)
	_ = m.TransitionTo(models.StateCancelled, "user requested", nil)
	if m.IsTerminal() {
		t.Error("CANCELLED must not be terminal (§9)")
	}
	if !m.CanTransitionTo(models.StatePending) {
		t.Error("CANCELLED must be able to retry into PENDING")
	}

	m2 := New("job-2")
	_ = m2.TransitionTo(models.StateFailed, "boom", nil)
	if !m2.IsTerminal() {
		t.Error("FAILED must be terminal")
	}
}

func TestDeserializeRoundTrip(t *testing.T) {
	m := New("job-1")
	_ = m.TransitionTo(models.StateDownloading, "", nil)
	_ = m.TransitionTo(models.StateAnalyzing, "", map[string]interface{}{"bytes": 100})

	restored := Deserialize("job-1", m.Current(), m.History())
	if restored.Current() != m.Current() {
		t.Errorf("restored current = %v, want %v", restored.Current(), m.Current())
	}
	if len(restored.History()) != len(m.History()) {
		t.Errorf("restored history len = %d, want %d", len(restored.History()), len(m.History()))
	}
}

func TestDoneIsFullyTerminal(t *testing.T) {
	m := New("job-1")
	for _, s := range []models.JobState{
		models.StateDownloading, models.StateAnalyzing, models.StateProcessing,
		models.StateValidating, models.StatePackaged, models.StateUploaded, models.StateDone,
	} {
		if err := m.TransitionTo(s, "", nil); err != nil {
			t.Fatalf("transition to %v failed: %v", s, err)
		}
	}
	if !m.IsTerminal() {
		t.Fatal("DONE should be terminal")
	}
	if m.CanTransitionTo(models.StatePending) {
		t.Fatal("DONE must not be able to transition anywhere")
	}
}
