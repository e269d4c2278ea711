// Package bufferpool implements the transport buffer pool (spec.md §4.N):
// typed byte buffers leased to a {component, owner} pair for carrying one
// tick's worth of dirty-set snapshot data out to the host/worker boundary.
// Grounded on the teacher's proxy.Selector registry-of-leases style
// (mutex-guarded map, per-entry state struct, stats snapshot method).
package bufferpool

import (
	"fmt"

	"github.com/forgelabs/ember/telemetry"
)

// FatalError is thrown when a lease's dirty count exceeds its configured
// ceiling. Satisfies the shared ember.Fatal marker interface.
type FatalError struct {
	Op     string
	Detail string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("bufferpool: %s: %s", e.Op, e.Detail)
}

func (e *FatalError) FatalError() bool { return true }

const (
	eventPoolUpsized   = "ResourceTransportPoolUpsized"
	eventPoolExhausted = "ResourceTransportPoolExhausted"
	eventDoubleRelease = "ResourceTransportDoubleRelease"

	defaultInitialCapacity = 64
)

// Lease is a typed buffer checked out of a Pool. Data is owned exclusively
// by the lease holder until Release.
type Lease struct {
	Component string
	Owner     string
	Data      []byte

	dirtyCount int
	released   bool
}

// DirtyCount returns the number of dirty rows currently accounted for in
// this lease's buffer.
func (l *Lease) DirtyCount() int {
	return l.dirtyCount
}

// Pool hands out and reclaims typed buffers. maxDirtyCount bounds how far a
// single lease may grow before Grow throws ResourceTransportPoolExhausted.
type Pool struct {
	maxDirtyCount   int
	initialCapacity int

	free map[string][][]byte // free buffers keyed by component, for reuse

	doubleReleases int64
	upsizes        int64
}

// Config configures a Pool.
type Config struct {
	MaxDirtyCount   int
	InitialCapacity int // buffer capacity (bytes) for a freshly allocated lease
}

// New constructs a Pool from cfg, applying defaults for zero fields.
func New(cfg Config) *Pool {
	if cfg.InitialCapacity <= 0 {
		cfg.InitialCapacity = defaultInitialCapacity
	}
	return &Pool{
		maxDirtyCount:   cfg.MaxDirtyCount,
		initialCapacity: cfg.InitialCapacity,
		free:            make(map[string][][]byte),
	}
}

// Lease checks out a buffer for component/owner, reusing a freed buffer
// from the same component if one is available.
func (p *Pool) Lease(component, owner string) *Lease {
	var buf []byte
	if pending := p.free[component]; len(pending) > 0 {
		buf = pending[len(pending)-1]
		p.free[component] = pending[:len(pending)-1]
	} else {
		buf = make([]byte, 0, p.initialCapacity)
	}
	return &Lease{Component: component, Owner: owner, Data: buf}
}

// Grow records n additional dirty rows against lease, upsizing its backing
// buffer (capacity doubling) if needed. Panics *FatalError wrapping
// ResourceTransportPoolExhausted when the post-grow dirty count would
// exceed the pool's configured maximum.
func (p *Pool) Grow(lease *Lease, n int, rowSize int) {
	next := lease.dirtyCount + n
	if p.maxDirtyCount > 0 && next > p.maxDirtyCount {
		telemetry.Default().RecordError(eventPoolExhausted, map[string]any{
			"component":     lease.Component,
			"owner":         lease.Owner,
			"dirtyCount":    next,
			"maxDirtyCount": p.maxDirtyCount,
		})
		panic(&FatalError{
			Op:     "Grow",
			Detail: fmt.Sprintf("lease %s/%s dirty count %d exceeds max %d", lease.Component, lease.Owner, next, p.maxDirtyCount),
		})
	}

	needed := next * rowSize
	if cap(lease.Data) < needed {
		grown := make([]byte, len(lease.Data), nextPow2(needed))
		copy(grown, lease.Data)
		lease.Data = grown
		telemetry.Default().RecordWarning(eventPoolUpsized, map[string]any{
			"component":   lease.Component,
			"owner":       lease.Owner,
			"newCapacity": cap(lease.Data),
		})
		p.upsizes++
	}

	lease.dirtyCount = next
}

// Release returns lease's buffer to the pool for next-cycle reuse. If
// replacement is non-nil, it is accepted in place of the lease's own
// buffer (the consumer thread transferred a different buffer back after
// a double-buffer swap). Calling Release twice on the same lease logs
// ResourceTransportDoubleRelease and is otherwise a no-op.
func (p *Pool) Release(lease *Lease, replacement []byte) {
	if lease.released {
		telemetry.Default().RecordWarning(eventDoubleRelease, map[string]any{
			"component": lease.Component,
			"owner":     lease.Owner,
		})
		p.doubleReleases++
		return
	}
	lease.released = true

	buf := lease.Data
	if replacement != nil {
		buf = replacement
	}
	p.free[lease.Component] = append(p.free[lease.Component], buf[:0])
}

// Stats is a snapshot of pool-wide counters.
type Stats struct {
	Upsizes        int64
	DoubleReleases int64
}

// Stats returns a snapshot of the pool's lifetime counters.
func (p *Pool) Stats() Stats {
	return Stats{Upsizes: p.upsizes, DoubleReleases: p.doubleReleases}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
