package state

// UpgradeSnapshot is the published, read-only view of upgrade columns.
type UpgradeSnapshot struct {
	IDs        []string
	Purchases  []uint32
	Owned      []uint8
	DirtyCount int
}

// UpgradeStore is the columnar store for upgrades (spec.md §3/§4.A).
type UpgradeStore struct {
	index *idIndex
	dirty *DirtySet

	purchases []uint32
	owned     []uint8

	publish struct {
		purchases []uint32
		owned     []uint8
	}
}

// NewUpgradeStore constructs a store from ids.
func NewUpgradeStore(ids []string) *UpgradeStore {
	n := len(ids)
	capN := nextPow2(max(n, 1))
	s := &UpgradeStore{
		index:     newIDIndex(ids),
		dirty:     NewDirtySet(capN),
		purchases: make([]uint32, n, capN),
		owned:     make([]uint8, n, capN),
	}
	s.publish.purchases = make([]uint32, n, capN)
	s.publish.owned = make([]uint8, n, capN)
	return s
}

func (s *UpgradeStore) IndexOf(id string) (int, bool) { return s.index.IndexOf(id) }
func (s *UpgradeStore) RequireIndex(id string) int    { return s.index.RequireIndex(id) }
func (s *UpgradeStore) Len() int                      { return s.index.Len() }

func (s *UpgradeStore) Purchases(index int) uint32 {
	requireBounds("purchases", index, len(s.purchases))
	return s.purchases[index]
}

func (s *UpgradeStore) Owned(index int) bool {
	requireBounds("owned", index, len(s.owned))
	return s.owned[index] != 0
}

// SetPurchases sets the purchase count directly (used by hydrate and by
// the progression coordinator's sanctioned setter), marking owned when
// purchases > 0.
func (s *UpgradeStore) SetPurchases(index int, n uint32) {
	requireBounds("set_purchases", index, len(s.purchases))
	if s.purchases[index] == n {
		return
	}
	s.purchases[index] = n
	nowOwned := boolToU8(n > 0)
	if s.owned[index] != nowOwned {
		s.owned[index] = nowOwned
	}
	s.dirty.Mark(index)
}

// IncrementPurchases adds 1 to the purchase count and marks owned.
func (s *UpgradeStore) IncrementPurchases(index int) {
	s.SetPurchases(index, s.Purchases(index)+1)
}

func (s *UpgradeStore) Snapshot() UpgradeSnapshot {
	dirty := s.dirty.Indices()
	dirtyCount := len(dirty)
	for _, i32 := range dirty {
		i := int(i32)
		s.publish.purchases[i] = s.purchases[i]
		s.publish.owned[i] = s.owned[i]
	}
	s.dirty.Drain()
	return UpgradeSnapshot{
		IDs:        s.index.ids,
		Purchases:  s.publish.purchases,
		Owned:      s.publish.owned,
		DirtyCount: dirtyCount,
	}
}

// UpgradeSave is the exported, serialization-ready shape of one row.
type UpgradeSave struct {
	ID        string `json:"id"`
	Purchases uint32 `json:"purchases"`
	Owned     bool   `json:"owned"`
}

func (s *UpgradeStore) ExportForSave() []UpgradeSave {
	out := make([]UpgradeSave, s.index.Len())
	for i, id := range s.index.ids {
		out[i] = UpgradeSave{ID: id, Purchases: s.purchases[i], Owned: s.owned[i] != 0}
	}
	return out
}

func (s *UpgradeStore) ImportFromSave(rows []UpgradeSave) {
	for _, row := range rows {
		i := s.RequireIndex(row.ID)
		s.purchases[i] = row.Purchases
		s.owned[i] = boolToU8(row.Owned)
		s.publish.purchases[i] = s.purchases[i]
		s.publish.owned[i] = s.owned[i]
	}
	s.dirty.Drain()
}
