package queue

import (
	"testing"

	"github.com/forgelabs/ember/command"
)

func mustCmd(t *testing.T, typ string, priority command.Priority, step int64) *command.Command {
	t.Helper()
	c, err := command.New(typ, priority, 0, step, nil, "req-"+typ)
	if err != nil {
		t.Fatalf("unexpected error constructing command: %v", err)
	}
	return c
}

func TestQueue_EnqueueRejectsAtCapacity(t *testing.T) {
	q := New(1)
	if res := q.Enqueue(mustCmd(t, "a", command.PriorityPlayer, 0)); !res.Success {
		t.Fatal("expected first enqueue to succeed")
	}
	res := q.Enqueue(mustCmd(t, "b", command.PriorityPlayer, 0))
	if res.Success {
		t.Fatal("expected enqueue at capacity to be rejected")
	}
	if res.Code != RejectCode {
		t.Fatalf("expected code %q, got %q", RejectCode, res.Code)
	}
}

func TestQueue_DrainDue_OrdersByPriorityThenStepThenSeq(t *testing.T) {
	q := New(10)
	q.Enqueue(mustCmd(t, "player-step0", command.PriorityPlayer, 0))
	q.Enqueue(mustCmd(t, "system-step0", command.PrioritySystem, 0))
	q.Enqueue(mustCmd(t, "automation-step0", command.PriorityAutomation, 0))
	q.Enqueue(mustCmd(t, "system-step-negative-no", command.PrioritySystem, 1)) // later step, same priority

	due := q.DrainDue(1)
	if len(due) != 4 {
		t.Fatalf("expected 4 due commands, got %d", len(due))
	}
	want := []string{"system-step0", "system-step-negative-no", "automation-step0", "player-step0"}
	for i, w := range want {
		if due[i].Type() != w {
			t.Fatalf("position %d: expected %q, got %q", i, w, due[i].Type())
		}
	}
}

func TestQueue_DrainDue_LeavesFutureStepsQueued(t *testing.T) {
	q := New(10)
	q.Enqueue(mustCmd(t, "now", command.PriorityPlayer, 0))
	q.Enqueue(mustCmd(t, "later", command.PriorityPlayer, 10))

	due := q.DrainDue(0)
	if len(due) != 1 || due[0].Type() != "now" {
		t.Fatalf("expected only 'now' to be due, got %v", due)
	}
	if got := q.Size(); got != 1 {
		t.Fatalf("expected 1 entry left queued, got %d", got)
	}
	due2 := q.DrainDue(10)
	if len(due2) != 1 || due2[0].Type() != "later" {
		t.Fatalf("expected 'later' due at step 10, got %v", due2)
	}
}

func TestQueue_ClearEmptiesQueue(t *testing.T) {
	q := New(10)
	q.Enqueue(mustCmd(t, "a", command.PriorityPlayer, 0))
	q.Clear()
	if got := q.Size(); got != 0 {
		t.Fatalf("expected size 0 after clear, got %d", got)
	}
}

func TestQueue_ExportImportRoundTrip(t *testing.T) {
	q := New(10)
	q.Enqueue(mustCmd(t, "first", command.PriorityPlayer, 5))
	q.Enqueue(mustCmd(t, "second", command.PrioritySystem, 2))

	rows := q.ExportForSave()
	if len(rows) != 2 {
		t.Fatalf("expected 2 exported rows, got %d", len(rows))
	}

	restored := New(10)
	restored.ImportFromSave(rows)
	if got := restored.Size(); got != 2 {
		t.Fatalf("expected 2 entries after import, got %d", got)
	}
	due := restored.DrainDue(5)
	if len(due) != 2 {
		t.Fatalf("expected both entries due by step 5, got %d", len(due))
	}
	if due[0].Type() != "second" {
		t.Fatalf("expected system-priority 'second' to drain first, got %q", due[0].Type())
	}
}

func TestQueue_ImportFromSave_SkipsInvalidEntries(t *testing.T) {
	q := New(10)
	rows := []SavedEntry{
		{Type: "bad-step", Priority: int(command.PriorityPlayer), Step: -1, Timestamp: 0},
		{Type: "bad-timestamp", Priority: int(command.PriorityPlayer), Step: 0, Timestamp: -1},
		{Type: "good", Priority: int(command.PriorityPlayer), Step: 0, Timestamp: 0},
	}
	q.ImportFromSave(rows)
	if got := q.Size(); got != 1 {
		t.Fatalf("expected only the valid entry to survive import, got size %d", got)
	}
	due := q.DrainDue(0)
	if len(due) != 1 || due[0].Type() != "good" {
		t.Fatalf("expected surviving entry to be 'good', got %v", due)
	}
}
