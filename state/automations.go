package state

// AutomationSnapshot is the published, read-only view of automation
// columns.
type AutomationSnapshot struct {
	IDs                    []string
	Enabled                []uint8
	LastFiredStep          []int64
	CooldownExpiresStep    []int64
	Unlocked               []uint8
	LastThresholdSatisfied []uint8
	DirtyCount             int
}

// AutomationStore is the columnar store for automations (spec.md §3/§4.A).
type AutomationStore struct {
	index *idIndex
	dirty *DirtySet

	enabled                []uint8
	lastFiredStep          []int64
	cooldownExpiresStep    []int64
	unlocked               []uint8
	lastThresholdSatisfied []uint8

	publish struct {
		enabled                []uint8
		lastFiredStep          []int64
		cooldownExpiresStep    []int64
		unlocked               []uint8
		lastThresholdSatisfied []uint8
	}
}

// NewAutomationStore constructs a store from ids.
func NewAutomationStore(ids []string) *AutomationStore {
	n := len(ids)
	capN := nextPow2(max(n, 1))
	s := &AutomationStore{
		index:                  newIDIndex(ids),
		dirty:                  NewDirtySet(capN),
		enabled:                make([]uint8, n, capN),
		lastFiredStep:          make([]int64, n, capN),
		cooldownExpiresStep:    make([]int64, n, capN),
		unlocked:               make([]uint8, n, capN),
		lastThresholdSatisfied: make([]uint8, n, capN),
	}
	for i := range s.lastFiredStep {
		s.lastFiredStep[i] = -1
	}
	s.publish.enabled = make([]uint8, n, capN)
	s.publish.lastFiredStep = make([]int64, n, capN)
	copy(s.publish.lastFiredStep, s.lastFiredStep)
	s.publish.cooldownExpiresStep = make([]int64, n, capN)
	s.publish.unlocked = make([]uint8, n, capN)
	s.publish.lastThresholdSatisfied = make([]uint8, n, capN)
	return s
}

func (s *AutomationStore) IndexOf(id string) (int, bool) { return s.index.IndexOf(id) }
func (s *AutomationStore) RequireIndex(id string) int    { return s.index.RequireIndex(id) }
func (s *AutomationStore) Len() int                      { return s.index.Len() }

func (s *AutomationStore) Enabled(index int) bool {
	requireBounds("enabled", index, len(s.enabled))
	return s.enabled[index] != 0
}

func (s *AutomationStore) SetEnabled(index int, v bool) {
	requireBounds("set_enabled", index, len(s.enabled))
	nv := boolToU8(v)
	if s.enabled[index] == nv {
		return
	}
	s.enabled[index] = nv
	s.dirty.Mark(index)
}

func (s *AutomationStore) Unlocked(index int) bool {
	requireBounds("unlocked", index, len(s.unlocked))
	return s.unlocked[index] != 0
}

func (s *AutomationStore) SetUnlocked(index int, v bool) {
	requireBounds("set_unlocked", index, len(s.unlocked))
	nv := boolToU8(v)
	if s.unlocked[index] == nv {
		return
	}
	s.unlocked[index] = nv
	s.dirty.Mark(index)
}

func (s *AutomationStore) LastFiredStep(index int) int64 {
	requireBounds("last_fired_step", index, len(s.lastFiredStep))
	return s.lastFiredStep[index]
}

func (s *AutomationStore) CooldownExpiresStep(index int) int64 {
	requireBounds("cooldown_expires_step", index, len(s.cooldownExpiresStep))
	return s.cooldownExpiresStep[index]
}

// RecordFiring sets lastFiredStep and cooldownExpiresStep together, marking
// dirty. Called by the automation handler when a fire condition is met.
func (s *AutomationStore) RecordFiring(index int, step, cooldownExpiresStep int64) {
	requireBounds("record_firing", index, len(s.lastFiredStep))
	s.lastFiredStep[index] = step
	s.cooldownExpiresStep[index] = cooldownExpiresStep
	s.dirty.Mark(index)
}

func (s *AutomationStore) LastThresholdSatisfied(index int) bool {
	requireBounds("last_threshold_satisfied", index, len(s.lastThresholdSatisfied))
	return s.lastThresholdSatisfied[index] != 0
}

func (s *AutomationStore) SetLastThresholdSatisfied(index int, v bool) {
	requireBounds("set_last_threshold_satisfied", index, len(s.lastThresholdSatisfied))
	nv := boolToU8(v)
	if s.lastThresholdSatisfied[index] == nv {
		return
	}
	s.lastThresholdSatisfied[index] = nv
	s.dirty.Mark(index)
}

func (s *AutomationStore) Snapshot() AutomationSnapshot {
	dirty := s.dirty.Indices()
	dirtyCount := len(dirty)
	for _, i32 := range dirty {
		i := int(i32)
		s.publish.enabled[i] = s.enabled[i]
		s.publish.lastFiredStep[i] = s.lastFiredStep[i]
		s.publish.cooldownExpiresStep[i] = s.cooldownExpiresStep[i]
		s.publish.unlocked[i] = s.unlocked[i]
		s.publish.lastThresholdSatisfied[i] = s.lastThresholdSatisfied[i]
	}
	s.dirty.Drain()
	return AutomationSnapshot{
		IDs:                    s.index.ids,
		Enabled:                s.publish.enabled,
		LastFiredStep:          s.publish.lastFiredStep,
		CooldownExpiresStep:    s.publish.cooldownExpiresStep,
		Unlocked:               s.publish.unlocked,
		LastThresholdSatisfied: s.publish.lastThresholdSatisfied,
		DirtyCount:             dirtyCount,
	}
}

// AutomationSave is the exported, serialization-ready shape of one row.
type AutomationSave struct {
	ID                     string `json:"id"`
	Enabled                bool   `json:"enabled"`
	LastFiredStep          int64  `json:"lastFiredStep"`
	CooldownExpiresStep    int64  `json:"cooldownExpiresStep"`
	Unlocked               bool   `json:"unlocked"`
	LastThresholdSatisfied bool   `json:"lastThresholdSatisfied"`
}

func (s *AutomationStore) ExportForSave() []AutomationSave {
	out := make([]AutomationSave, s.index.Len())
	for i, id := range s.index.ids {
		out[i] = AutomationSave{
			ID:                     id,
			Enabled:                s.enabled[i] != 0,
			LastFiredStep:          s.lastFiredStep[i],
			CooldownExpiresStep:    s.cooldownExpiresStep[i],
			Unlocked:               s.unlocked[i] != 0,
			LastThresholdSatisfied: s.lastThresholdSatisfied[i] != 0,
		}
	}
	return out
}

func (s *AutomationStore) ImportFromSave(rows []AutomationSave) {
	for _, row := range rows {
		i := s.RequireIndex(row.ID)
		s.enabled[i] = boolToU8(row.Enabled)
		s.lastFiredStep[i] = row.LastFiredStep
		s.cooldownExpiresStep[i] = row.CooldownExpiresStep
		s.unlocked[i] = boolToU8(row.Unlocked)
		s.lastThresholdSatisfied[i] = boolToU8(row.LastThresholdSatisfied)
		s.publish.enabled[i] = s.enabled[i]
		s.publish.lastFiredStep[i] = s.lastFiredStep[i]
		s.publish.cooldownExpiresStep[i] = s.cooldownExpiresStep[i]
		s.publish.unlocked[i] = s.unlocked[i]
		s.publish.lastThresholdSatisfied[i] = s.lastThresholdSatisfied[i]
	}
	s.dirty.Drain()
}
