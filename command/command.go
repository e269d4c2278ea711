// Package command defines the command record, the priority enum, and the
// authorization policy table (spec.md §4.D). A Command is immutable once
// constructed; nothing in this package mutates a Command after New returns
// it.
package command

import (
	"fmt"
	"math"
	"reflect"
)

// Priority is the queue-ordering class. Higher values drain first.
type Priority int

const (
	PriorityPlayer Priority = iota
	PriorityAutomation
	PrioritySystem
)

// String renders the priority the way telemetry payloads expect it.
func (p Priority) String() string {
	switch p {
	case PrioritySystem:
		return "SYSTEM"
	case PriorityAutomation:
		return "AUTOMATION"
	case PriorityPlayer:
		return "PLAYER"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// Valid reports whether p is one of the three defined priorities.
func (p Priority) Valid() bool {
	return p == PrioritySystem || p == PriorityAutomation || p == PriorityPlayer
}

// Command is a validated intent submitted to the runtime; never executed
// immediately. Immutable after New returns it — nothing in this module
// exposes a setter.
type Command struct {
	typ       string
	priority  Priority
	timestamp int64
	step      int64
	payload   any
	requestID string
}

// New constructs a Command, validating every invariant from spec.md §3:
// non-empty type, valid priority, finite non-negative timestamp, finite
// non-negative step, a JSON-safe payload (no cycles/functions/NaN/Inf).
func New(typ string, priority Priority, timestamp, step int64, payload any, requestID string) (*Command, error) {
	if typ == "" {
		return nil, fmt.Errorf("command: type must be non-empty")
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("command: invalid priority %d", int(priority))
	}
	if timestamp < 0 {
		return nil, fmt.Errorf("command: timestamp must be >= 0")
	}
	if step < 0 {
		return nil, fmt.Errorf("command: step must be >= 0")
	}
	if !isJSONSafe(payload, make(map[uintptr]bool)) {
		return nil, fmt.Errorf("command: payload is not JSON-safe")
	}
	return &Command{
		typ:       typ,
		priority:  priority,
		timestamp: timestamp,
		step:      step,
		payload:   payload,
		requestID: requestID,
	}, nil
}

// IsJSONSafePayload reports whether payload would pass the same check
// New applies — exported so callers that must report a dedicated
// payload-specific error code (e.g. transport's INVALID_COMMAND_PAYLOAD)
// can check it ahead of construction.
func IsJSONSafePayload(payload any) bool {
	return isJSONSafe(payload, make(map[uintptr]bool))
}

func (c *Command) Type() string       { return c.typ }
func (c *Command) Priority() Priority { return c.priority }
func (c *Command) Timestamp() int64   { return c.timestamp }
func (c *Command) Step() int64        { return c.step }
func (c *Command) Payload() any       { return c.payload }
func (c *Command) RequestID() string  { return c.requestID }

// Phase distinguishes a live authorization check from one performed during
// command-log replay, carried in the warning payload (spec.md §4.D).
type Phase string

const (
	PhaseLive   Phase = "live"
	PhaseReplay Phase = "replay"
)

// Policy is one command type's authorization rule: the set of priorities
// permitted to submit it, and an optional reason surfaced in the warning
// payload on rejection.
type Policy struct {
	AllowedPriorities []Priority
	Reason            string
}

// AUTHORIZATIONS maps command type to its Policy. A type with no entry is
// permitted at every priority.
var AUTHORIZATIONS = map[string]Policy{}

// UnauthorizedEvent is the warning payload recorded when Authorize rejects
// a command.
type UnauthorizedEvent struct {
	Type              string
	AttemptedPriority Priority
	Phase             Phase
	Reason            string
}

// Authorize reports whether cmd's priority is permitted by its type's
// policy. A type absent from AUTHORIZATIONS is permitted at every priority.
// On rejection it also returns the UnauthorizedEvent the caller should
// route to telemetry as a warning.
func Authorize(c *Command, phase Phase) (bool, *UnauthorizedEvent) {
	policy, ok := AUTHORIZATIONS[c.typ]
	if !ok {
		return true, nil
	}
	for _, p := range policy.AllowedPriorities {
		if p == c.priority {
			return true, nil
		}
	}
	return false, &UnauthorizedEvent{
		Type:              c.typ,
		AttemptedPriority: c.priority,
		Phase:             phase,
		Reason:            policy.Reason,
	}
}

// isJSONSafe walks payload rejecting cycles, functions, channels, and
// non-finite numbers. Maps/slices of JSON-safe scalars are safe; anything
// else (including non-plain-map/slice container types) is not. Cycle
// detection tracks the underlying data pointer of each map/slice visited,
// the same granularity encoding/json itself uses to reject cyclic values.
func isJSONSafe(v any, seen map[uintptr]bool) bool {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return !math.IsNaN(float64(val)) && !math.IsInf(float64(val), 0)
	case float64:
		return !math.IsNaN(val) && !math.IsInf(val, 0)
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return false
		}
		seen[ptr] = true
		for _, e := range val {
			if !isJSONSafe(e, seen) {
				return false
			}
		}
		delete(seen, ptr)
		return true
	case []any:
		ptr := reflect.ValueOf(val).Pointer()
		if seen[ptr] {
			return false
		}
		seen[ptr] = true
		for _, e := range val {
			if !isJSONSafe(e, seen) {
				return false
			}
		}
		delete(seen, ptr)
		return true
	default:
		return false
	}
}
