// Package queue implements the priority-ordered deferred command queue
// (spec.md §4.E). Ordering key is (priority desc, step asc, insertionSeq
// asc); duplicate requestId rejection is the transport's job, not this
// package's.
package queue

import (
	"container/heap"

	"github.com/forgelabs/ember/command"
)

// RejectCode is returned when enqueue refuses an entry.
const RejectCode = "COMMAND_REJECTED"

// EnqueueResult mirrors the Result surface other components expose: Ok on
// success, or a rejection code/message on failure.
type EnqueueResult struct {
	Success bool
	Code    string
	Message string
}

func ok() EnqueueResult { return EnqueueResult{Success: true} }

func rejected(message string) EnqueueResult {
	return EnqueueResult{Success: false, Code: RejectCode, Message: message}
}

type entry struct {
	cmd *command.Command
	seq uint64
}

// heapData implements container/heap.Interface as a max-heap ordered by
// (priority desc, step asc, seq asc) — i.e. Less reports which entry
// should drain first.
type heapData []entry

func (h heapData) Len() int { return len(h) }

func (h heapData) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.cmd.Priority() != b.cmd.Priority() {
		return a.cmd.Priority() > b.cmd.Priority()
	}
	if a.cmd.Step() != b.cmd.Step() {
		return a.cmd.Step() < b.cmd.Step()
	}
	return a.seq < b.seq
}

func (h heapData) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapData) Push(x any) { *h = append(*h, x.(entry)) }

func (h *heapData) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is the bounded, priority-ordered deferred command queue.
type Queue struct {
	maxSize int
	nextSeq uint64
	data    heapData
}

// New constructs a Queue bounded to maxSize entries.
func New(maxSize int) *Queue {
	return &Queue{maxSize: maxSize, data: make(heapData, 0)}
}

// Size reports the number of queued entries.
func (q *Queue) Size() int { return len(q.data) }

// Enqueue adds c to the queue, rejecting when the queue is already at
// capacity.
func (q *Queue) Enqueue(c *command.Command) EnqueueResult {
	if len(q.data) >= q.maxSize {
		return rejected("queue at capacity")
	}
	heap.Push(&q.data, entry{cmd: c, seq: q.nextSeq})
	q.nextSeq++
	return ok()
}

// DrainDue removes and returns every entry whose step is <= currentStep,
// ordered by (priority desc, step asc, insertionSeq asc).
func (q *Queue) DrainDue(currentStep int64) []*command.Command {
	var due []entry
	var keep heapData
	for _, e := range q.data {
		if e.cmd.Step() <= currentStep {
			due = append(due, e)
		} else {
			keep = append(keep, e)
		}
	}
	q.data = keep
	heap.Init(&q.data)

	// Sort due entries by the same ordering key; stdlib heap order isn't
	// guaranteed to be fully sorted across pops without re-heapifying, so
	// we sort the extracted slice directly instead of popping one at a
	// time from a throwaway heap.
	sortEntries(due)

	out := make([]*command.Command, len(due))
	for i, e := range due {
		out[i] = e.cmd
	}
	return out
}

func sortEntries(es []entry) {
	// insertion sort is fine here: due-entry counts per tick are small
	// and bounded by maxCommandQueueSize, never the whole history.
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && less(es[j], es[j-1]); j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

func less(a, b entry) bool {
	if a.cmd.Priority() != b.cmd.Priority() {
		return a.cmd.Priority() > b.cmd.Priority()
	}
	if a.cmd.Step() != b.cmd.Step() {
		return a.cmd.Step() < b.cmd.Step()
	}
	return a.seq < b.seq
}

// Clear removes every entry.
func (q *Queue) Clear() {
	q.data = q.data[:0]
}

// SavedEntry is the serialization-ready shape of one queued command.
type SavedEntry struct {
	Type      string `json:"type"`
	Priority  int    `json:"priority"`
	Timestamp int64  `json:"timestamp"`
	Step      int64  `json:"step"`
	Payload   any    `json:"payload"`
	RequestID string `json:"requestId"`
	Seq       uint64 `json:"seq"`
}

// ExportForSave returns every queued entry in an arbitrary but stable
// order, preserving insertion sequence so ImportFromSave can restore
// relative ordering exactly.
func (q *Queue) ExportForSave() []SavedEntry {
	out := make([]SavedEntry, len(q.data))
	for i, e := range q.data {
		out[i] = SavedEntry{
			Type:      e.cmd.Type(),
			Priority:  int(e.cmd.Priority()),
			Timestamp: e.cmd.Timestamp(),
			Step:      e.cmd.Step(),
			Payload:   e.cmd.Payload(),
			RequestID: e.cmd.RequestID(),
			Seq:       e.seq,
		}
	}
	return out
}

// ImportFromSave rebuilds the queue from saved entries, validating each
// one (spec.md §4.E invariant: step >= 0, timestamp >= 0) and preserving
// insertion-sequence ordering. Invalid entries are skipped rather than
// aborting the whole restore, mirroring the hydrate-is-best-effort-per-row
// convention used elsewhere in save handling.
func (q *Queue) ImportFromSave(rows []SavedEntry) {
	q.Clear()
	maxSeq := q.nextSeq
	for _, row := range rows {
		if row.Step < 0 || row.Timestamp < 0 {
			continue
		}
		c, err := command.New(row.Type, command.Priority(row.Priority), row.Timestamp, row.Step, row.Payload, row.RequestID)
		if err != nil {
			continue
		}
		heap.Push(&q.data, entry{cmd: c, seq: row.Seq})
		if row.Seq >= maxSeq {
			maxSeq = row.Seq + 1
		}
	}
	q.nextSeq = maxSeq
}
