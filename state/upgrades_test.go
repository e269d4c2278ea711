package state

import "testing"

func newTestUpgradeStore() *UpgradeStore {
	return NewUpgradeStore([]string{"pickaxe", "cart"})
}

func TestUpgradeStore_IncrementPurchasesMarksOwned(t *testing.T) {
	s := newTestUpgradeStore()
	pickaxe := s.RequireIndex("pickaxe")
	if s.Owned(pickaxe) {
		t.Fatal("expected upgrade to start unowned")
	}
	s.IncrementPurchases(pickaxe)
	if !s.Owned(pickaxe) {
		t.Fatal("expected owned after first purchase")
	}
	if got := s.Purchases(pickaxe); got != 1 {
		t.Fatalf("expected purchases 1, got %d", got)
	}
}

func TestUpgradeStore_SetPurchasesZeroClearsOwned(t *testing.T) {
	s := newTestUpgradeStore()
	pickaxe := s.RequireIndex("pickaxe")
	s.IncrementPurchases(pickaxe)
	s.SetPurchases(pickaxe, 0)
	if s.Owned(pickaxe) {
		t.Fatal("expected owned to clear when purchases reset to 0")
	}
}

func TestUpgradeStore_SetPurchasesNoopDoesNotMarkDirty(t *testing.T) {
	s := newTestUpgradeStore()
	pickaxe := s.RequireIndex("pickaxe")
	s.dirty.Drain()
	s.SetPurchases(pickaxe, 0) // already 0
	if s.dirty.Count() != 0 {
		t.Fatal("expected no-op set to leave store clean")
	}
}

func TestUpgradeStore_ExportImportRoundTrip(t *testing.T) {
	s := newTestUpgradeStore()
	cart := s.RequireIndex("cart")
	s.SetPurchases(cart, 3)

	rows := s.ExportForSave()
	restored := newTestUpgradeStore()
	restored.ImportFromSave(rows)

	if got := restored.Purchases(restored.RequireIndex("cart")); got != 3 {
		t.Fatalf("expected purchases 3 after round trip, got %d", got)
	}
	if !restored.Owned(restored.RequireIndex("cart")) {
		t.Fatal("expected owned after round trip")
	}
}
