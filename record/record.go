// Package record implements the command recorder: an append-only log of
// every executed command plus the start-state snapshot it replays from
// (spec.md §4.G). Recording and replay are the basis for deterministic
// save-file fidelity and for reproducing a run from a bug report.
package record

import (
	"encoding/json"
	"fmt"

	"github.com/forgelabs/ember/command"
	"github.com/forgelabs/ember/dispatch"
	"github.com/forgelabs/ember/queue"
	"github.com/forgelabs/ember/rng"
	"github.com/forgelabs/ember/telemetry"
)

// FatalError signals a replay integrity violation: a non-empty sandbox
// queue, or a log whose recorded commands don't match what handlers
// actually enqueued.
type FatalError struct {
	Op     string
	Detail string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("record: %s: %s", e.Op, e.Detail)
}

func (e *FatalError) FatalError() bool { return true }

// Entry is one recorded command, dual-tagged the way the rest of the
// runtime's wire types are so the log can round-trip through either JSON
// (canonical save export) or msgpack (compact binary log export).
type Entry struct {
	Type      string `json:"type" msgpack:"type"`
	Priority  int    `json:"priority" msgpack:"priority"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"`
	Step      int64  `json:"step" msgpack:"step"`
	Payload   any    `json:"payload" msgpack:"payload"`
	RequestID string `json:"requestId" msgpack:"requestId"`
}

// Metadata tracks recorder bookkeeping that travels with an exported log.
type Metadata struct {
	LastStep int64 `json:"lastStep" msgpack:"lastStep"`
	Seed     int64 `json:"seed" msgpack:"seed"`
}

// Log is a frozen export: a start-state snapshot plus every command
// recorded since the last clear.
type Log struct {
	StartState json.RawMessage `json:"startState" msgpack:"startState"`
	Commands   []Entry         `json:"commands" msgpack:"commands"`
	Metadata   Metadata        `json:"metadata" msgpack:"metadata"`
}

// Recorder accumulates commands against a start-state snapshot. It holds
// no reference to live runtime state — StartState is an opaque, already-
// serialized blob the caller supplies (typically save.Serialize's output)
// so record/replay never touch world internals directly.
type Recorder struct {
	startState   json.RawMessage
	commands     []Entry
	lastStep     int64
	seed         int64
	seedCaptured bool
	rngSource    *rng.Source
}

// New constructs a Recorder against startState, capturing its seed lazily
// on the first Record call.
func New(startState json.RawMessage, rngSource *rng.Source) *Recorder {
	return &Recorder{
		startState: startState,
		commands:   nil,
		lastStep:   -1,
		rngSource:  rngSource,
	}
}

// Record appends a deep-immutable clone of cmd to the log, advances
// lastStep to max(lastStep, cmd.Step()), and captures the current RNG
// seed on the first call since construction or the last Clear.
func (r *Recorder) Record(cmd *command.Command) {
	if !r.seedCaptured && r.rngSource != nil {
		r.seed = r.rngSource.Seed()
		r.seedCaptured = true
	}
	if cmd.Step() > r.lastStep {
		r.lastStep = cmd.Step()
	}
	r.commands = append(r.commands, Entry{
		Type:      cmd.Type(),
		Priority:  int(cmd.Priority()),
		Timestamp: cmd.Timestamp(),
		Step:      cmd.Step(),
		Payload:   deepClone(cmd.Payload()),
		RequestID: cmd.RequestID(),
	})
}

// Clear replaces the start-state snapshot with newState, drops every
// recorded command, resets lastStep to -1, and re-arms seed capture for
// the next Record call.
func (r *Recorder) Clear(newState json.RawMessage) {
	r.startState = newState
	r.commands = nil
	r.lastStep = -1
	r.seedCaptured = false
}

// Export returns a fresh, independent copy of the current log — never the
// same backing arrays as a previous Export call, even for identical
// content.
func (r *Recorder) Export() Log {
	commands := make([]Entry, len(r.commands))
	for i, e := range r.commands {
		commands[i] = Entry{
			Type:      e.Type,
			Priority:  e.Priority,
			Timestamp: e.Timestamp,
			Step:      e.Step,
			Payload:   deepClone(e.Payload),
			RequestID: e.RequestID,
		}
	}
	startState := append(json.RawMessage(nil), r.startState...)
	return Log{
		StartState: startState,
		Commands:   commands,
		Metadata:   Metadata{LastStep: r.lastStep, Seed: r.seed},
	}
}

// RestoreStateFunc reconciles live state in place against a start-state
// snapshot, matching spec.md §4.G's restore_state contract: same top-level
// container instances are kept; only their contents are overwritten.
type RestoreStateFunc func(startState json.RawMessage) error

// ReplayOptions customizes Replay's handler-failure telemetry event name,
// defaulting to the spec-named ReplayExecutionFailed when zero-valued.
type ReplayOptions struct {
	FailureEventName string
}

// Replay restores log's start state into live state via restoreState,
// then re-executes every recorded command against dispatcher, enqueuing
// follow-ups into q. Per spec.md §4.G:
//   - q must be empty on entry, else a fatal error.
//   - every command a handler enqueues during replay must appear next in
//     log.Commands, else a fatal error — replay is not allowed to diverge
//     from what was recorded.
//   - a handler execution failure is non-fatal: it is recorded as
//     telemetry and replay continues with the next command.
//
// On success the caller-supplied setCurrentStep is invoked with
// lastStep+1, matching "currentStep = nextExecutableStep = lastStep + 1".
func Replay(log Log, dispatcher *dispatch.Dispatcher, q *queue.Queue, restoreState RestoreStateFunc, rngSource *rng.Source, setCurrentStep func(int64), opts ReplayOptions) error {
	if q.Size() != 0 {
		panic(&FatalError{Op: "replay", Detail: "command queue must be empty"})
	}
	if rngSource != nil {
		rngSource.SetSeed(log.Metadata.Seed)
	}
	if err := restoreState(log.StartState); err != nil {
		return fmt.Errorf("record: replay: restore_state: %w", err)
	}

	failureEvent := opts.FailureEventName
	if failureEvent == "" {
		failureEvent = "ReplayExecutionFailed"
	}

	cursor := 0
	for cursor < len(log.Commands) {
		entry := log.Commands[cursor]
		cursor++

		cmd, err := command.New(entry.Type, command.Priority(entry.Priority), entry.Timestamp, entry.Step, entry.Payload, entry.RequestID)
		if err != nil {
			telemetry.Default().RecordError(failureEvent, map[string]any{"type": entry.Type, "reason": err.Error()})
			continue
		}

		var enqueued []*command.Command
		ctx := &dispatch.Context{
			CurrentStep: entry.Step,
			Phase:       command.PhaseReplay,
			Enqueue: func(follow *command.Command) {
				enqueued = append(enqueued, follow)
			},
		}

		result := func() (res dispatch.Result) {
			defer func() {
				if r := recover(); r != nil {
					res = dispatch.Fail("REPLAY_PANIC", fmt.Sprintf("%v", r), nil)
				}
			}()
			return dispatcher.Execute(cmd, ctx)
		}()

		if !result.Success {
			telemetry.Default().RecordError(failureEvent, map[string]any{"type": entry.Type})
		}

		for _, follow := range enqueued {
			if cursor >= len(log.Commands) {
				panic(&FatalError{Op: "replay", Detail: "replay log is missing a command that was enqueued"})
			}
			next := log.Commands[cursor]
			if next.Type != follow.Type() || next.Step != follow.Step() {
				panic(&FatalError{Op: "replay", Detail: "replay log is missing a command that was enqueued"})
			}
			q.Enqueue(follow)
			cursor++
		}
	}

	if setCurrentStep != nil {
		setCurrentStep(log.Metadata.LastStep + 1)
	}
	return nil
}

// deepClone freezes a JSON-safe payload by round-tripping it through
// encoding/json, the cheapest way to get an independent copy of arbitrarily
// nested map[string]any/[]any/scalar data without writing a bespoke
// recursive copier.
func deepClone(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
