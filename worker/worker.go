// Package worker implements the compute worker message protocol (spec.md
// §4.O): a message-passing bridge between a host and a core instance
// running on a dedicated thread, with no shared mutable state. Grounded on
// the teacher's ipc.DecodeFrame type-discriminated decode, adapted from
// length-prefixed msgpack framing to bare JSON messages (the host here is a
// message-passing bridge, not a byte stream).
package worker

import (
	"encoding/json"
	"fmt"

	"github.com/forgelabs/ember/command"
	"github.com/forgelabs/ember/queue"
	"github.com/forgelabs/ember/tick"
	"github.com/forgelabs/ember/transport"
)

// ProtocolVersion is the worker protocol version this package implements.
const ProtocolVersion = 2

// Inbound message kinds.
const (
	KindInit            = "init"
	KindTick            = "tick"
	KindEnqueueCommands = "enqueueCommands"
	KindShutdown        = "shutdown"
	KindSerialize       = "serialize"
	KindHydrate         = "hydrate"
)

// Outbound message kinds.
const (
	KindReady         = "ready"
	KindFrame         = "frame"
	KindSaveData      = "saveData"
	KindHydrateResult = "hydrateResult"
	KindError         = "error"
)

// Error codes.
const (
	ErrInvalidSaveData       = "INVALID_SAVE_DATA"
	ErrCapabilityUnavailable = "CAPABILITY_UNAVAILABLE"
	ErrProtocol              = "PROTOCOL_ERROR"
)

// Capabilities the reference worker implementation supports. A host asking
// for serialize/hydrate against a Server missing the corresponding
// dependency gets CAPABILITY_UNAVAILABLE rather than a panic.
var Capabilities = []string{"serialize", "hydrate", "enqueueCommands"}

// InboundEnvelope is the JSON shape of every inbound message. Fields not
// relevant to Kind are simply left zero.
type InboundEnvelope struct {
	Kind             string                     `json:"kind"`
	RequestID        string                     `json:"requestId,omitempty"`
	StepSizeMs       *int64                     `json:"stepSizeMs,omitempty"`
	MaxStepsPerFrame *int                       `json:"maxStepsPerFrame,omitempty"`
	DeltaMs          int64                      `json:"deltaMs,omitempty"`
	Commands         []transport.CommandPayload `json:"commands,omitempty"`
	Save             json.RawMessage            `json:"save,omitempty"`
}

// OutboundEnvelope is the JSON shape of every outbound message. Fields not
// relevant to Kind are omitted by the `omitempty` tags.
type OutboundEnvelope struct {
	Kind            string      `json:"kind"`
	RequestID       string      `json:"requestId,omitempty"`
	ProtocolVersion int         `json:"protocolVersion,omitempty"`
	StepSizeMs      int64       `json:"stepSizeMs,omitempty"`
	NextStep        int64       `json:"nextStep,omitempty"`
	Capabilities    []string    `json:"capabilities,omitempty"`
	Frame           *tick.Frame `json:"frame,omitempty"`
	DroppedFrames   int         `json:"droppedFrames,omitempty"`
	OK              *bool       `json:"ok,omitempty"`
	Data            string      `json:"data,omitempty"`
	Error           *WireError  `json:"error,omitempty"`
}

// WireError is the {code,message} shape carried by error responses.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok() *bool   { v := true; return &v }
func fail() *bool { v := false; return &v }

// Dependencies wires a Server to the collaborators it bridges messages to.
// Serialize/Hydrate/SetSeed are optional; a nil Serialize or Hydrate makes
// the corresponding message kind respond with CAPABILITY_UNAVAILABLE.
type Dependencies struct {
	Loop      *tick.Loop
	Queue     *queue.Queue
	Serialize func() ([]byte, error)
	Hydrate   func(data []byte) (step, rngSeed int64, err error)
	SetSeed   func(int64)
}

// Server bridges inbound worker protocol messages to a tick.Loop, command
// queue, and save/hydrate. Not safe for concurrent use — the protocol's
// single message-passing channel already serializes calls, per spec.md
// §5's single-threaded cooperative scheduling model.
type Server struct {
	loop      *tick.Loop
	queue     *queue.Queue
	serialize func() ([]byte, error)
	hydrate   func(data []byte) (step, rngSeed int64, err error)
	setSeed   func(int64)
	shutdown  bool
}

// New constructs a Server from deps.
func New(deps Dependencies) *Server {
	return &Server{
		loop:      deps.Loop,
		queue:     deps.Queue,
		serialize: deps.Serialize,
		hydrate:   deps.Hydrate,
		setSeed:   deps.SetSeed,
	}
}

// ShutdownRequested reports whether a shutdown message has been handled.
func (s *Server) ShutdownRequested() bool { return s.shutdown }

// Handle decodes one inbound JSON message and returns the response to send
// back, or nil when the message kind has no response (enqueueCommands,
// shutdown, on success).
func (s *Server) Handle(raw []byte) *OutboundEnvelope {
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return protocolError("", fmt.Sprintf("protocol: invalid message: %v", err))
	}

	switch env.Kind {
	case KindInit:
		return s.handleInit(env)
	case KindTick:
		return s.handleTick(env)
	case KindEnqueueCommands:
		return s.handleEnqueueCommands(env)
	case KindShutdown:
		return s.handleShutdown()
	case KindSerialize:
		return s.handleSerialize(env)
	case KindHydrate:
		return s.handleHydrate(env)
	default:
		return protocolError(env.RequestID, fmt.Sprintf("protocol: unknown kind %q", env.Kind))
	}
}

// Encode marshals env for transmission.
func Encode(env *OutboundEnvelope) ([]byte, error) {
	return json.Marshal(env)
}

func protocolError(requestID, message string) *OutboundEnvelope {
	return &OutboundEnvelope{Kind: KindError, RequestID: requestID, Error: &WireError{Code: ErrProtocol, Message: message}}
}

func (s *Server) handleInit(env InboundEnvelope) *OutboundEnvelope {
	if env.StepSizeMs == nil || *env.StepSizeMs <= 0 {
		return protocolError(env.RequestID, "protocol:init invalid stepSizeMs")
	}
	if env.MaxStepsPerFrame == nil || *env.MaxStepsPerFrame <= 0 {
		return protocolError(env.RequestID, "protocol:init invalid maxStepsPerFrame")
	}
	return &OutboundEnvelope{
		Kind:            KindReady,
		ProtocolVersion: ProtocolVersion,
		StepSizeMs:      s.loop.StepSizeMs(),
		NextStep:        s.loop.CurrentStep() + 1,
		Capabilities:    Capabilities,
	}
}

func (s *Server) handleTick(env InboundEnvelope) *OutboundEnvelope {
	result := s.loop.Tick(env.DeltaMs)
	var frame *tick.Frame
	if len(result.Frames) > 0 {
		last := result.Frames[len(result.Frames)-1]
		frame = &last
	}
	return &OutboundEnvelope{Kind: KindFrame, Frame: frame, DroppedFrames: result.DroppedFrames, NextStep: result.NextStep}
}

func (s *Server) handleEnqueueCommands(env InboundEnvelope) *OutboundEnvelope {
	for _, cp := range env.Commands {
		cmd, err := command.New(cp.Type, command.Priority(cp.Priority), cp.Timestamp, cp.Step, cp.Payload, cp.RequestID)
		if err != nil {
			return protocolError(env.RequestID, fmt.Sprintf("protocol:enqueueCommands %v", err))
		}
		s.queue.Enqueue(cmd)
	}
	return nil
}

func (s *Server) handleShutdown() *OutboundEnvelope {
	s.shutdown = true
	s.loop.Stop()
	return nil
}

func (s *Server) handleSerialize(env InboundEnvelope) *OutboundEnvelope {
	if s.serialize == nil {
		return &OutboundEnvelope{Kind: KindSaveData, RequestID: env.RequestID, OK: fail(), Error: &WireError{Code: ErrCapabilityUnavailable, Message: "serialize capability unavailable"}}
	}
	data, err := s.serialize()
	if err != nil {
		return &OutboundEnvelope{Kind: KindSaveData, RequestID: env.RequestID, OK: fail(), Error: &WireError{Code: ErrInvalidSaveData, Message: err.Error()}}
	}
	return &OutboundEnvelope{Kind: KindSaveData, RequestID: env.RequestID, OK: ok(), Data: string(data)}
}

func (s *Server) handleHydrate(env InboundEnvelope) *OutboundEnvelope {
	if s.hydrate == nil {
		return &OutboundEnvelope{Kind: KindHydrateResult, RequestID: env.RequestID, OK: fail(), Error: &WireError{Code: ErrCapabilityUnavailable, Message: "hydrate capability unavailable"}}
	}
	if len(env.Save) == 0 {
		return &OutboundEnvelope{Kind: KindHydrateResult, RequestID: env.RequestID, OK: fail(), Error: &WireError{Code: ErrInvalidSaveData, Message: "save is required"}}
	}
	step, seed, err := s.hydrate(env.Save)
	if err != nil {
		return &OutboundEnvelope{Kind: KindHydrateResult, RequestID: env.RequestID, OK: fail(), Error: &WireError{Code: ErrInvalidSaveData, Message: err.Error()}}
	}
	if s.setSeed != nil {
		s.setSeed(seed)
	}
	return &OutboundEnvelope{Kind: KindHydrateResult, RequestID: env.RequestID, OK: ok(), NextStep: step + 1}
}
