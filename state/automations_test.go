package state

import "testing"

func newTestAutomationStore() *AutomationStore {
	return NewAutomationStore([]string{"auto-mine"})
}

func TestAutomationStore_InitialLastFiredStepIsNegativeOne(t *testing.T) {
	s := newTestAutomationStore()
	idx := s.RequireIndex("auto-mine")
	if got := s.LastFiredStep(idx); got != -1 {
		t.Fatalf("expected initial last fired step -1, got %d", got)
	}
}

func TestAutomationStore_RecordFiringSetsBothFields(t *testing.T) {
	s := newTestAutomationStore()
	idx := s.RequireIndex("auto-mine")
	s.RecordFiring(idx, 42, 50)
	if got := s.LastFiredStep(idx); got != 42 {
		t.Fatalf("expected last fired step 42, got %d", got)
	}
	if got := s.CooldownExpiresStep(idx); got != 50 {
		t.Fatalf("expected cooldown expires step 50, got %d", got)
	}
	if s.dirty.Count() != 1 {
		t.Fatal("expected RecordFiring to mark the row dirty")
	}
}

func TestAutomationStore_SetEnabledOnlyMarksDirtyOnChange(t *testing.T) {
	s := newTestAutomationStore()
	idx := s.RequireIndex("auto-mine")
	s.dirty.Drain()
	s.SetEnabled(idx, false) // already false
	if s.dirty.Count() != 0 {
		t.Fatal("expected no-op enable set to leave store clean")
	}
	s.SetEnabled(idx, true)
	if s.dirty.Count() != 1 {
		t.Fatal("expected real enable change to mark dirty")
	}
}

func TestAutomationStore_ExportImportRoundTrip(t *testing.T) {
	s := newTestAutomationStore()
	idx := s.RequireIndex("auto-mine")
	s.SetEnabled(idx, true)
	s.SetUnlocked(idx, true)
	s.RecordFiring(idx, 10, 20)
	s.SetLastThresholdSatisfied(idx, true)

	rows := s.ExportForSave()
	restored := newTestAutomationStore()
	restored.ImportFromSave(rows)

	ridx := restored.RequireIndex("auto-mine")
	if !restored.Enabled(ridx) {
		t.Fatal("expected enabled after round trip")
	}
	if got := restored.LastFiredStep(ridx); got != 10 {
		t.Fatalf("expected last fired step 10 after round trip, got %d", got)
	}
	if got := restored.CooldownExpiresStep(ridx); got != 20 {
		t.Fatalf("expected cooldown expires step 20 after round trip, got %d", got)
	}
	if !restored.LastThresholdSatisfied(ridx) {
		t.Fatal("expected last threshold satisfied after round trip")
	}
}
