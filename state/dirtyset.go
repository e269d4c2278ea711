package state

// DirtySet tracks which column positions changed since the last snapshot
// drain. Marking is O(1) and allocation-free; draining is O(dirty count).
type DirtySet struct {
	positions []int32 // positions[i] == -1 when i is not dirty, else its slot in indices
	indices   []int32
}

// NewDirtySet creates a DirtySet sized for capacity rows, all clean.
func NewDirtySet(capacity int) *DirtySet {
	d := &DirtySet{
		positions: make([]int32, capacity),
		indices:   make([]int32, 0, capacity),
	}
	for i := range d.positions {
		d.positions[i] = -1
	}
	return d
}

// Grow extends the set to newCapacity, marking new rows clean. No-op if
// newCapacity <= current capacity.
func (d *DirtySet) Grow(newCapacity int) {
	if newCapacity <= len(d.positions) {
		return
	}
	grown := make([]int32, newCapacity)
	copy(grown, d.positions)
	for i := len(d.positions); i < newCapacity; i++ {
		grown[i] = -1
	}
	d.positions = grown
}

// Mark flags index as dirty. Safe to call repeatedly on the same index.
func (d *DirtySet) Mark(index int) {
	if d.positions[index] != -1 {
		return
	}
	d.positions[index] = int32(len(d.indices))
	d.indices = append(d.indices, int32(index))
}

// Count returns the number of currently-dirty indices.
func (d *DirtySet) Count() int {
	return len(d.indices)
}

// Indices returns the packed list of dirty indices in mark order. The slice
// is owned by the DirtySet; callers must not retain it across a Drain.
func (d *DirtySet) Indices() []int32 {
	return d.indices
}

// Drain clears every dirty flag and returns the set to empty. Returns the
// indices that were dirty, valid only until the next Mark call.
func (d *DirtySet) Drain() []int32 {
	drained := d.indices
	for _, idx := range drained {
		d.positions[idx] = -1
	}
	d.indices = d.indices[:0]
	return drained
}
