package state

import "github.com/forgelabs/ember/telemetry"

// ResourceColumns is the live, read-only view of a ResourceStore's columns
// at a point in time. Returned by View(); backed by the store's live
// arrays, so it must not be retained across a mutation.
type ResourceColumns struct {
	IDs      []string
	Amount   []float64
	Capacity []*float64
	Unlocked []uint8
	Visible  []uint8
	Flags    []uint32
}

// ResourceSnapshot is an immutable, read-only published view produced by
// copying only dirty columns into the store's fixed publish buffer.
type ResourceSnapshot struct {
	IDs        []string
	Amount     []float64
	Capacity   []*float64
	Unlocked   []uint8
	Visible    []uint8
	Flags      []uint32
	DirtyCount int
}

// ResourceStore is the columnar store for resources (spec.md §3/§4.A).
type ResourceStore struct {
	index *idIndex
	dirty *DirtySet

	amount   []float64
	capacity []*float64
	unlocked []uint8
	visible  []uint8
	flags    []uint32

	// publish is a fixed buffer overwritten column-by-column, for dirty
	// indices only, on every Snapshot call. Ownership of a returned
	// ResourceSnapshot is transient: the next Snapshot call clobbers any
	// column the snapshot still references.
	publish struct {
		amount   []float64
		capacity []*float64
		unlocked []uint8
		visible  []uint8
		flags    []uint32
	}
}

// NewResourceStore constructs a store from defs. Duplicate ids are a fatal
// construction error raised as a *FatalError panic.
func NewResourceStore(ids []string, start map[string]float64, cap_ map[string]*float64, startUnlocked, startVisible map[string]bool) *ResourceStore {
	n := len(ids)
	cap_n := nextPow2(max(n, 1))
	s := &ResourceStore{
		index:    newIDIndex(ids),
		dirty:    NewDirtySet(cap_n),
		amount:   make([]float64, n, cap_n),
		capacity: make([]*float64, n, cap_n),
		unlocked: make([]uint8, n, cap_n),
		visible:  make([]uint8, n, cap_n),
		flags:    make([]uint32, n, cap_n),
	}
	s.publish.amount = make([]float64, n, cap_n)
	s.publish.capacity = make([]*float64, n, cap_n)
	s.publish.unlocked = make([]uint8, n, cap_n)
	s.publish.visible = make([]uint8, n, cap_n)
	s.publish.flags = make([]uint32, n, cap_n)

	for i, id := range ids {
		s.amount[i] = normalizeFloat("amount", start[id])
		s.capacity[i] = cap_[id]
		if startUnlocked[id] {
			s.unlocked[i] = 1
		}
		if startVisible[id] {
			s.visible[i] = 1
		}
		s.publish.amount[i] = s.amount[i]
		s.publish.capacity[i] = s.capacity[i]
		s.publish.unlocked[i] = s.unlocked[i]
		s.publish.visible[i] = s.visible[i]
	}
	return s
}

func normalizeFloat(op string, v float64) float64 {
	if !finite(v) {
		telemetry.Default().RecordError("ResourceInvalid", map[string]any{"op": op, "value": v})
		panic(&FatalError{Op: op, Detail: "non-finite value"})
	}
	if v == 0 {
		return 0 // normalize -0 to 0
	}
	return v
}

// IndexOf returns the column position for id.
func (s *ResourceStore) IndexOf(id string) (int, bool) { return s.index.IndexOf(id) }

// RequireIndex returns the column position for id, fatal if unknown.
func (s *ResourceStore) RequireIndex(id string) int { return s.index.RequireIndex(id) }

// Len returns the number of resources.
func (s *ResourceStore) Len() int { return s.index.Len() }

// Amount returns the live amount at index.
func (s *ResourceStore) Amount(index int) float64 {
	requireBounds("amount", index, len(s.amount))
	return s.amount[index]
}

// Capacity returns the live capacity at index, or nil if uncapped.
func (s *ResourceStore) Capacity(index int) *float64 {
	requireBounds("capacity", index, len(s.capacity))
	return s.capacity[index]
}

// SetAmount sets the amount at index, clamping to [0, capacity] when capped,
// and marks the row dirty. Non-finite input is a fatal error.
func (s *ResourceStore) SetAmount(index int, v float64) {
	requireBounds("set_amount", index, len(s.amount))
	v = normalizeFloat("set_amount", v)
	if v < 0 {
		v = 0
	}
	if c := s.capacity[index]; c != nil && v > *c {
		v = *c
	}
	if s.amount[index] == v {
		return
	}
	s.amount[index] = v
	s.dirty.Mark(index)
}

// AddAmount adds delta to the amount at index (clamped as SetAmount).
func (s *ResourceStore) AddAmount(index int, delta float64) {
	s.SetAmount(index, s.Amount(index)+delta)
}

// SetCapacity sets the capacity at index (nil means uncapped) and marks
// dirty. Re-clamps the live amount if it now exceeds the new capacity.
func (s *ResourceStore) SetCapacity(index int, c *float64) {
	requireBounds("set_capacity", index, len(s.capacity))
	if c != nil {
		normalizeFloat("set_capacity", *c)
	}
	s.capacity[index] = c
	if c != nil && s.amount[index] > *c {
		s.amount[index] = *c
	}
	s.dirty.Mark(index)
}

// SetUnlocked sets the unlocked flag at index and marks dirty on change.
func (s *ResourceStore) SetUnlocked(index int, v bool) {
	requireBounds("set_unlocked", index, len(s.unlocked))
	nv := boolToU8(v)
	if s.unlocked[index] == nv {
		return
	}
	s.unlocked[index] = nv
	s.dirty.Mark(index)
}

// Unlocked returns the live unlocked flag at index.
func (s *ResourceStore) Unlocked(index int) bool {
	requireBounds("unlocked", index, len(s.unlocked))
	return s.unlocked[index] != 0
}

// SetVisible sets the visible flag at index and marks dirty on change.
func (s *ResourceStore) SetVisible(index int, v bool) {
	requireBounds("set_visible", index, len(s.visible))
	nv := boolToU8(v)
	if s.visible[index] == nv {
		return
	}
	s.visible[index] = nv
	s.dirty.Mark(index)
}

// Visible returns the live visible flag at index.
func (s *ResourceStore) Visible(index int) bool {
	requireBounds("visible", index, len(s.visible))
	return s.visible[index] != 0
}

// MarkDirty force-marks index dirty, for callers that mutated flags
// directly (e.g. flag bits via SetFlag).
func (s *ResourceStore) MarkDirty(index int) {
	requireBounds("mark_dirty", index, len(s.amount))
	s.dirty.Mark(index)
}

// SetFlag sets or clears bit within the flags column at index.
func (s *ResourceStore) SetFlag(index int, bit uint32, set bool) {
	requireBounds("set_flag", index, len(s.flags))
	prev := s.flags[index]
	if set {
		s.flags[index] |= bit
	} else {
		s.flags[index] &^= bit
	}
	if s.flags[index] != prev {
		s.dirty.Mark(index)
	}
}

func boolToU8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// View returns a read-only view of the live columns. Valid only until the
// next mutation.
func (s *ResourceStore) View() ResourceColumns {
	return ResourceColumns{
		IDs:      s.index.ids,
		Amount:   s.amount,
		Capacity: s.capacity,
		Unlocked: s.unlocked,
		Visible:  s.visible,
		Flags:    s.flags,
	}
}

// Snapshot copies dirty columns into the fixed publish buffer and returns
// an immutable view over it. Clears the dirty set on return. The returned
// snapshot is only valid until the next Snapshot call overwrites the same
// buffer in place.
func (s *ResourceStore) Snapshot() ResourceSnapshot {
	dirty := s.dirty.Indices()
	dirtyCount := len(dirty)
	for _, i32 := range dirty {
		i := int(i32)
		s.publish.amount[i] = s.amount[i]
		s.publish.capacity[i] = s.capacity[i]
		s.publish.unlocked[i] = s.unlocked[i]
		s.publish.visible[i] = s.visible[i]
		s.publish.flags[i] = s.flags[i]
	}
	s.dirty.Drain()
	return ResourceSnapshot{
		IDs:        s.index.ids,
		Amount:     s.publish.amount,
		Capacity:   s.publish.capacity,
		Unlocked:   s.publish.unlocked,
		Visible:    s.publish.visible,
		Flags:      s.publish.flags,
		DirtyCount: dirtyCount,
	}
}

// ClearDirty drops the dirty set without publishing, for callers that
// export_for_save instead of snapshotting.
func (s *ResourceStore) ClearDirty() {
	s.dirty.Drain()
}

// ResourceSave is the exported, serialization-ready shape of one resource
// row.
type ResourceSave struct {
	ID       string   `json:"id"`
	Amount   float64  `json:"amount"`
	Capacity *float64 `json:"capacity"`
	Unlocked bool     `json:"unlocked"`
	Visible  bool     `json:"visible"`
	Flags    uint32   `json:"flags"`
}

// ExportForSave returns every row as an ordered list, id-column order.
func (s *ResourceStore) ExportForSave() []ResourceSave {
	out := make([]ResourceSave, s.index.Len())
	for i, id := range s.index.ids {
		out[i] = ResourceSave{
			ID:       id,
			Amount:   s.amount[i],
			Capacity: s.capacity[i],
			Unlocked: s.unlocked[i] != 0,
			Visible:  s.visible[i] != 0,
			Flags:    s.flags[i],
		}
	}
	return out
}

// ImportFromSave restores columns from previously-exported rows. Unknown
// ids are a fatal error (content digest mismatch should have caught this
// earlier; this is a defense-in-depth bounds check).
func (s *ResourceStore) ImportFromSave(rows []ResourceSave) {
	for _, row := range rows {
		i := s.RequireIndex(row.ID)
		s.amount[i] = normalizeFloat("import", row.Amount)
		s.capacity[i] = row.Capacity
		s.unlocked[i] = boolToU8(row.Unlocked)
		s.visible[i] = boolToU8(row.Visible)
		s.flags[i] = row.Flags
		s.publish.amount[i] = s.amount[i]
		s.publish.capacity[i] = s.capacity[i]
		s.publish.unlocked[i] = s.unlocked[i]
		s.publish.visible[i] = s.visible[i]
		s.publish.flags[i] = s.flags[i]
	}
	s.dirty.Drain()
}
