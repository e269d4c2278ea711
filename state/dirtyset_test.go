package state

import "testing"

func TestDirtySet_MarkIsIdempotent(t *testing.T) {
	d := NewDirtySet(4)
	d.Mark(2)
	d.Mark(2)
	d.Mark(2)
	if got := d.Count(); got != 1 {
		t.Fatalf("expected count 1 after repeated marks, got %d", got)
	}
}

func TestDirtySet_IndicesInMarkOrder(t *testing.T) {
	d := NewDirtySet(4)
	d.Mark(3)
	d.Mark(0)
	d.Mark(1)
	want := []int32{3, 0, 1}
	got := d.Indices()
	if len(got) != len(want) {
		t.Fatalf("expected %d indices, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDirtySet_DrainClearsAndReturnsIndices(t *testing.T) {
	d := NewDirtySet(4)
	d.Mark(1)
	d.Mark(2)
	drained := d.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained indices, got %d", len(drained))
	}
	if got := d.Count(); got != 0 {
		t.Fatalf("expected count 0 after drain, got %d", got)
	}
	// marking the same index again after drain should work cleanly
	d.Mark(1)
	if got := d.Count(); got != 1 {
		t.Fatalf("expected count 1 after re-mark, got %d", got)
	}
}

func TestDirtySet_GrowPreservesExistingState(t *testing.T) {
	d := NewDirtySet(2)
	d.Mark(1)
	d.Grow(8)
	if got := d.Count(); got != 1 {
		t.Fatalf("expected count 1 after grow, got %d", got)
	}
	d.Mark(5)
	if got := d.Count(); got != 2 {
		t.Fatalf("expected count 2 after marking new slot, got %d", got)
	}
}

func TestDirtySet_GrowIsNoopWhenSmaller(t *testing.T) {
	d := NewDirtySet(8)
	d.Mark(5)
	d.Grow(4)
	if got := d.Count(); got != 1 {
		t.Fatalf("expected grow with smaller capacity to be a no-op, got count %d", got)
	}
}
