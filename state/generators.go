package state

// GeneratorSnapshot is the published, read-only view of generator columns.
type GeneratorSnapshot struct {
	IDs        []string
	Level      []uint32
	LevelDelta []int32
	Unlocked   []uint8
	Visible    []uint8
	Enabled    []uint8
	DirtyCount int
}

// GeneratorStore is the columnar store for generators (spec.md §3/§4.A).
// LevelDelta accumulates the signed change applied since the last snapshot
// drain and resets to zero on drain, so consumers can diff production
// deltas without re-deriving them from absolute levels.
type GeneratorStore struct {
	index *idIndex
	dirty *DirtySet

	level      []uint32
	levelDelta []int32
	unlocked   []uint8
	visible    []uint8
	enabled    []uint8
	maxLevel   []uint32

	publish struct {
		level      []uint32
		levelDelta []int32
		unlocked   []uint8
		visible    []uint8
		enabled    []uint8
	}
}

// NewGeneratorStore constructs a store from ids and per-id max levels (0 =
// uncapped).
func NewGeneratorStore(ids []string, maxLevel map[string]uint32) *GeneratorStore {
	n := len(ids)
	capN := nextPow2(max(n, 1))
	s := &GeneratorStore{
		index:      newIDIndex(ids),
		dirty:      NewDirtySet(capN),
		level:      make([]uint32, n, capN),
		levelDelta: make([]int32, n, capN),
		unlocked:   make([]uint8, n, capN),
		visible:    make([]uint8, n, capN),
		enabled:    make([]uint8, n, capN),
		maxLevel:   make([]uint32, n, capN),
	}
	s.publish.level = make([]uint32, n, capN)
	s.publish.levelDelta = make([]int32, n, capN)
	s.publish.unlocked = make([]uint8, n, capN)
	s.publish.visible = make([]uint8, n, capN)
	s.publish.enabled = make([]uint8, n, capN)
	for i, id := range ids {
		s.maxLevel[i] = maxLevel[id]
	}
	return s
}

func (s *GeneratorStore) IndexOf(id string) (int, bool) { return s.index.IndexOf(id) }
func (s *GeneratorStore) RequireIndex(id string) int    { return s.index.RequireIndex(id) }
func (s *GeneratorStore) Len() int                      { return s.index.Len() }

func (s *GeneratorStore) Level(index int) uint32 {
	requireBounds("level", index, len(s.level))
	return s.level[index]
}

func (s *GeneratorStore) MaxLevel(index int) uint32 {
	requireBounds("max_level", index, len(s.maxLevel))
	return s.maxLevel[index]
}

// AddLevels increments the level at index by delta (may be negative for a
// prestige reset), clamped to [0, maxLevel] when maxLevel > 0, accumulating
// the applied (post-clamp) delta into levelDelta. Marks dirty on change.
func (s *GeneratorStore) AddLevels(index int, delta int32) {
	requireBounds("add_levels", index, len(s.level))
	cur := int64(s.level[index])
	next := cur + int64(delta)
	if next < 0 {
		next = 0
	}
	if ml := s.maxLevel[index]; ml > 0 && next > int64(ml) {
		next = int64(ml)
	}
	applied := int32(next - cur)
	if applied == 0 {
		return
	}
	s.level[index] = uint32(next)
	s.levelDelta[index] += applied
	s.dirty.Mark(index)
}

// ResetLevel sets the level at index to 0 without affecting levelDelta
// bookkeeping semantics beyond recording the delta applied.
func (s *GeneratorStore) ResetLevel(index int) {
	requireBounds("reset_level", index, len(s.level))
	if s.level[index] == 0 {
		return
	}
	s.levelDelta[index] -= int32(s.level[index])
	s.level[index] = 0
	s.dirty.Mark(index)
}

func (s *GeneratorStore) Unlocked(index int) bool {
	requireBounds("unlocked", index, len(s.unlocked))
	return s.unlocked[index] != 0
}

func (s *GeneratorStore) SetUnlocked(index int, v bool) {
	requireBounds("set_unlocked", index, len(s.unlocked))
	nv := boolToU8(v)
	if s.unlocked[index] == nv {
		return
	}
	s.unlocked[index] = nv
	s.dirty.Mark(index)
}

func (s *GeneratorStore) Visible(index int) bool {
	requireBounds("visible", index, len(s.visible))
	return s.visible[index] != 0
}

func (s *GeneratorStore) SetVisible(index int, v bool) {
	requireBounds("set_visible", index, len(s.visible))
	nv := boolToU8(v)
	if s.visible[index] == nv {
		return
	}
	s.visible[index] = nv
	s.dirty.Mark(index)
}

func (s *GeneratorStore) Enabled(index int) bool {
	requireBounds("enabled", index, len(s.enabled))
	return s.enabled[index] != 0
}

func (s *GeneratorStore) SetEnabled(index int, v bool) {
	requireBounds("set_enabled", index, len(s.enabled))
	nv := boolToU8(v)
	if s.enabled[index] == nv {
		return
	}
	s.enabled[index] = nv
	s.dirty.Mark(index)
}

// Snapshot copies dirty columns into the fixed publish buffer, resets
// levelDelta to zero for every drained row, and clears the dirty set. The
// returned snapshot is only valid until the next Snapshot call overwrites
// the same buffer in place.
func (s *GeneratorStore) Snapshot() GeneratorSnapshot {
	dirty := s.dirty.Indices()
	dirtyCount := len(dirty)
	for _, i32 := range dirty {
		i := int(i32)
		s.publish.level[i] = s.level[i]
		s.publish.levelDelta[i] = s.levelDelta[i]
		s.publish.unlocked[i] = s.unlocked[i]
		s.publish.visible[i] = s.visible[i]
		s.publish.enabled[i] = s.enabled[i]
		s.levelDelta[i] = 0
	}
	s.dirty.Drain()
	return GeneratorSnapshot{
		IDs:        s.index.ids,
		Level:      s.publish.level,
		LevelDelta: s.publish.levelDelta,
		Unlocked:   s.publish.unlocked,
		Visible:    s.publish.visible,
		Enabled:    s.publish.enabled,
		DirtyCount: dirtyCount,
	}
}

// GeneratorSave is the exported, serialization-ready shape of one row.
type GeneratorSave struct {
	ID       string `json:"id"`
	Level    uint32 `json:"level"`
	Unlocked bool   `json:"unlocked"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
}

func (s *GeneratorStore) ExportForSave() []GeneratorSave {
	out := make([]GeneratorSave, s.index.Len())
	for i, id := range s.index.ids {
		out[i] = GeneratorSave{
			ID:       id,
			Level:    s.level[i],
			Unlocked: s.unlocked[i] != 0,
			Visible:  s.visible[i] != 0,
			Enabled:  s.enabled[i] != 0,
		}
	}
	return out
}

func (s *GeneratorStore) ImportFromSave(rows []GeneratorSave) {
	for _, row := range rows {
		i := s.RequireIndex(row.ID)
		s.level[i] = row.Level
		s.levelDelta[i] = 0
		s.unlocked[i] = boolToU8(row.Unlocked)
		s.visible[i] = boolToU8(row.Visible)
		s.enabled[i] = boolToU8(row.Enabled)
		s.publish.level[i] = s.level[i]
		s.publish.levelDelta[i] = 0
		s.publish.unlocked[i] = s.unlocked[i]
		s.publish.visible[i] = s.visible[i]
		s.publish.enabled[i] = s.enabled[i]
	}
	s.dirty.Drain()
}
