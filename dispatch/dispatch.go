// Package dispatch implements the command dispatcher: a type→handler
// registry and an execute surface that never lets a handler throw across
// the boundary (spec.md §4.F). Handlers return a Result; the runtime
// itself only panics on integrity violations, never on handler failure.
package dispatch

import (
	"github.com/forgelabs/ember/command"
	"github.com/forgelabs/ember/telemetry"
)

// Error is the structured failure shape a handler returns instead of an
// error value, matching the wire Result surface elsewhere in the runtime.
type Error struct {
	Code    string
	Message string
	Details any
}

// Result is the outcome of executing one command. Ok() constructs a
// success; Fail() constructs a failure carrying a code clients can branch
// on.
type Result struct {
	Success bool
	Err     *Error
}

// Ok returns a successful Result.
func Ok() Result { return Result{Success: true} }

// Fail returns a failed Result carrying code/message/details.
func Fail(code, message string, details any) Result {
	return Result{Success: false, Err: &Error{Code: code, Message: message, Details: details}}
}

const (
	// CodeUnsupported is returned by Execute when no handler is wired for
	// a command's type.
	CodeUnsupported = "COMMAND_UNSUPPORTED"
)

// Context is passed to every handler. Enqueue lets a handler schedule
// follow-up commands; a follow-up whose Step is <= the tick's current
// step executes within the same tick (spec.md §4.F).
type Context struct {
	CurrentStep int64
	Enqueue     func(*command.Command)

	// Phase distinguishes live execution from log replay for the
	// authorization warning payload (spec.md §4.D). Zero value is treated
	// as PhaseLive.
	Phase command.Phase
}

const (
	// CodeUnauthorized is returned by Execute when cmd.Priority() is not
	// permitted by its type's command.AUTHORIZATIONS policy.
	CodeUnauthorized = "COMMAND_UNAUTHORIZED"
)

// Handler processes one command's payload under ctx, returning a Result.
// Handlers must never panic for an ordinary failure — only a genuine
// integrity violation elsewhere in the runtime panics.
type Handler func(payload any, ctx *Context) Result

// Dispatcher is the type→handler registry.
type Dispatcher struct {
	handlers map[string]Handler
}

// New constructs an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register wires handler for typ, overwriting any existing registration.
func (d *Dispatcher) Register(typ string, handler Handler) {
	d.handlers[typ] = handler
}

// GetHandler reports whether typ has a wired handler, used by callers that
// want to short-circuit to COMMAND_UNSUPPORTED before full execution.
func (d *Dispatcher) GetHandler(typ string) (Handler, bool) {
	h, ok := d.handlers[typ]
	return h, ok
}

// Execute authorizes cmd against command.AUTHORIZATIONS, then looks up its
// handler and invokes it with ctx. Returns CodeUnauthorized when the
// command's priority is not permitted for its type, or CodeUnsupported
// when no handler is wired for the command's type.
func (d *Dispatcher) Execute(cmd *command.Command, ctx *Context) Result {
	phase := ctx.Phase
	if phase == "" {
		phase = command.PhaseLive
	}
	if ok, event := command.Authorize(cmd, phase); !ok {
		telemetry.Default().RecordWarning("CommandUnauthorized", map[string]any{
			"type":              event.Type,
			"attemptedPriority": event.AttemptedPriority.String(),
			"phase":             string(event.Phase),
			"reason":            event.Reason,
		})
		return Fail(CodeUnauthorized, "command type "+cmd.Type()+" is not authorized at priority "+cmd.Priority().String(), nil)
	}
	handler, ok := d.handlers[cmd.Type()]
	if !ok {
		return Fail(CodeUnsupported, "no handler registered for command type "+cmd.Type(), nil)
	}
	return handler(cmd.Payload(), ctx)
}
