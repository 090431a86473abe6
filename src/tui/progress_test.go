package tui

import (
	"strings"
	"testing"
	"time"
)

func TestProgressModel_Waiting(t *testing.T) {
	model := NewProgressModel()

	if model.done {
		t.Error("expected not done initially")
	}
	if view := model.View(); !strings.Contains(view, "Waiting for snapshot") {
		t.Errorf("expected waiting text, got: %s", view)
	}
}

func TestProgressModel_UpdateWithProgress(t *testing.T) {
	model := NewProgressModel()

	model, _ = model.Update(ProgressMsg{Stage: "Fetching builds", Current: 3, Total: 5})

	view := model.View()
	if !strings.Contains(view, "Fetching builds") {
		t.Errorf("expected view to contain stage, got: %s", view)
	}
	if !strings.Contains(view, "3/5") || !strings.Contains(view, "60%") {
		t.Errorf("expected view to contain '3/5' and '60%%', got: %s", view)
	}
}

func TestProgressModel_SpinnerStopsWhenComplete(t *testing.T) {
	model := NewProgressModel()

	model, cmd := model.Update(SpinnerTickMsg(time.Now()))
	if cmd == nil {
		t.Error("expected spinner to schedule the next tick")
	}
	if model.spinnerFrame != 1 {
		t.Errorf("expected frame 1, got %d", model.spinnerFrame)
	}

	model, _ = model.Update(ProgressMsg{Stage: "complete"})
	if !model.done {
		t.Fatal("expected model to be done after 'complete' stage")
	}
	if _, cmd = model.Update(SpinnerTickMsg(time.Now())); cmd != nil {
		t.Error("expected no tick after completion")
	}
	if view := model.View(); !strings.Contains(view, "Snapshot loaded") {
		t.Errorf("expected completion text, got: %s", view)
	}
}
