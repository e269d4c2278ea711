// Package transport implements the command transport server: envelope
// validation, idempotent response caching, and the bridge from an inbound
// envelope to the command queue (spec.md §4.H).
package transport

import (
	"math"
	"regexp"
	"sync"
	"unicode"

	"github.com/forgelabs/ember/command"
	"github.com/forgelabs/ember/queue"
)

// Validation failure codes, in the order §4.H requires them checked —
// first failure wins.
const (
	CodeInvalidIdentifier       = "INVALID_IDENTIFIER"
	CodeInvalidIdentifierFormat = "INVALID_IDENTIFIER_FORMAT"
	CodeIdentifierTooLong       = "IDENTIFIER_TOO_LONG"
	CodeInvalidSentAt           = "INVALID_SENT_AT"
	CodeInvalidCommand          = "INVALID_COMMAND"
	CodeInvalidCommandType      = "INVALID_COMMAND_TYPE"
	CodeInvalidCommandPriority  = "INVALID_COMMAND_PRIORITY"
	CodeInvalidCommandTimestamp = "INVALID_COMMAND_TIMESTAMP"
	CodeInvalidCommandStep      = "INVALID_COMMAND_STEP"
	CodeInvalidCommandRequestID = "INVALID_COMMAND_REQUEST_ID"
	CodeRequestIDMismatch       = "REQUEST_ID_MISMATCH"
	CodeInvalidCommandPayload   = "INVALID_COMMAND_PAYLOAD"
	CodeRequestIDInUse          = "REQUEST_ID_IN_USE"
	CodeCommandRejected         = "COMMAND_REJECTED"
)

// maxIdentifierLength bounds clientId/requestId length.
const maxIdentifierLength = 128

// identifierPattern matches the identifier format both clientId and
// requestId (envelope- and command-level) must satisfy.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// CommandPayload is the wire shape of the command field inside an
// envelope, prior to construction into a validated command.Command.
type CommandPayload struct {
	Type      string
	Priority  int
	Timestamp int64
	Step      int64
	Payload   any
	RequestID string
	set       bool // distinguishes an absent command from a zero-valued one
}

// NewCommandPayload marks a CommandPayload as present, since the zero
// value must read as "missing" per the INVALID_COMMAND check.
func NewCommandPayload(typ string, priority int, timestamp, step int64, payload any, requestID string) CommandPayload {
	return CommandPayload{Type: typ, Priority: priority, Timestamp: timestamp, Step: step, Payload: payload, RequestID: requestID, set: true}
}

// Envelope is one inbound transport request.
type Envelope struct {
	RequestID string
	ClientID  string
	SentAt    float64
	Command   CommandPayload
}

// Status is the outcome classification in a Response.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusDuplicate Status = "duplicate"
)

// ResponseError carries a failed response's code/message.
type ResponseError struct {
	Code    string
	Message string
}

// Response is the cached, idempotent result of handling one envelope.
type Response struct {
	RequestID  string
	Status     Status
	ServerStep int64
	Error      *ResponseError
}

type idempotencyKey struct {
	clientID  string
	requestID string
}

// Server validates, deduplicates, and enqueues inbound command envelopes.
type Server struct {
	mu        sync.Mutex
	queue     *queue.Queue
	responses map[idempotencyKey]Response
	owners    map[string]string // requestId -> clientId, to detect REQUEST_ID_IN_USE
	outcomes  []Response
}

// New constructs a Server over q.
func New(q *queue.Queue) *Server {
	return &Server{
		queue:     q,
		responses: make(map[idempotencyKey]Response),
		owners:    make(map[string]string),
	}
}

// ValidIdentifier reports whether s satisfies the identifier format shared
// by clientId and requestId (envelope- and command-level), and by the
// worker protocol's requestId field.
func ValidIdentifier(s string) bool {
	_, ok := validIdentifier(s)
	return ok
}

func validIdentifier(s string) (code string, ok bool) {
	trimmed := trimSpace(s)
	if trimmed == "" {
		return CodeInvalidIdentifier, false
	}
	if !identifierPattern.MatchString(s) {
		return CodeInvalidIdentifierFormat, false
	}
	if len(s) > maxIdentifierLength {
		return CodeIdentifierTooLong, false
	}
	return "", true
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && unicode.IsSpace(rune(s[start])) {
		start++
	}
	for end > start && unicode.IsSpace(rune(s[end-1])) {
		end--
	}
	return s[start:end]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HandleEnvelope validates env, enqueues its command on success, and
// returns the Response — cached by (clientId, requestId) so a resubmitted
// envelope gets status duplicate with the original serverStep and error.
func (s *Server) HandleEnvelope(env Envelope, currentServerStep int64) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := idempotencyKey{clientID: env.ClientID, requestID: env.RequestID}
	if cached, ok := s.responses[key]; ok {
		return Response{RequestID: env.RequestID, Status: StatusDuplicate, ServerStep: cached.ServerStep, Error: cached.Error}
	}

	if resp, ok := s.validate(env, currentServerStep); !ok {
		s.responses[key] = resp
		return resp
	}

	if owner, exists := s.owners[env.RequestID]; exists && owner != env.ClientID {
		resp := s.reject(env.RequestID, currentServerStep, CodeRequestIDInUse, "requestId already in use by a different client")
		s.responses[key] = resp
		return resp
	}

	cmd, err := command.New(env.Command.Type, command.Priority(env.Command.Priority), env.Command.Timestamp, env.Command.Step, env.Command.Payload, env.Command.RequestID)
	if err != nil {
		resp := s.reject(env.RequestID, currentServerStep, CodeInvalidCommand, err.Error())
		s.responses[key] = resp
		return resp
	}

	enqueueResult := s.queue.Enqueue(cmd)
	var resp Response
	if !enqueueResult.Success {
		resp = s.reject(env.RequestID, currentServerStep, CodeCommandRejected, enqueueResult.Message)
	} else {
		s.owners[env.RequestID] = env.ClientID
		resp = Response{RequestID: env.RequestID, Status: StatusAccepted, ServerStep: currentServerStep}
	}
	s.responses[key] = resp
	s.outcomes = append(s.outcomes, resp)
	return resp
}

func (s *Server) reject(requestID string, step int64, code, message string) Response {
	return Response{RequestID: requestID, Status: StatusRejected, ServerStep: step, Error: &ResponseError{Code: code, Message: message}}
}

// validate runs the §4.H check table in order, returning (resp, false) on
// the first failure, or (zero, true) when env passes every check.
func (s *Server) validate(env Envelope, step int64) (Response, bool) {
	if code, ok := validIdentifier(env.RequestID); !ok {
		return s.reject(env.RequestID, step, code, "invalid requestId"), false
	}
	if code, ok := validIdentifier(env.ClientID); !ok {
		return s.reject(env.RequestID, step, code, "invalid clientId"), false
	}
	if !finite(env.SentAt) {
		return s.reject(env.RequestID, step, CodeInvalidSentAt, "sentAt must be finite"), false
	}
	if !env.Command.set {
		return s.reject(env.RequestID, step, CodeInvalidCommand, "command is required"), false
	}
	if trimSpace(env.Command.Type) == "" {
		return s.reject(env.RequestID, step, CodeInvalidCommandType, "command.type must be non-empty"), false
	}
	if !command.Priority(env.Command.Priority).Valid() {
		return s.reject(env.RequestID, step, CodeInvalidCommandPriority, "command.priority invalid"), false
	}
	if !finite(float64(env.Command.Timestamp)) {
		return s.reject(env.RequestID, step, CodeInvalidCommandTimestamp, "command.timestamp must be finite"), false
	}
	if env.Command.Step < 0 {
		return s.reject(env.RequestID, step, CodeInvalidCommandStep, "command.step must be >= 0"), false
	}
	if _, ok := validIdentifier(env.Command.RequestID); !ok {
		return s.reject(env.RequestID, step, CodeInvalidCommandRequestID, "invalid command.requestId"), false
	}
	if env.Command.RequestID != env.RequestID {
		return s.reject(env.RequestID, step, CodeRequestIDMismatch, "command.requestId must match envelope requestId"), false
	}
	if !command.IsJSONSafePayload(env.Command.Payload) {
		return s.reject(env.RequestID, step, CodeInvalidCommandPayload, "command.payload is not JSON-safe"), false
	}
	return Response{}, true
}

// DrainOutcomeResponses returns the responses of envelopes that reached the
// queue since the last call (accepted, or rejected with COMMAND_REJECTED),
// clearing the buffer. Envelopes rejected earlier (validation,
// REQUEST_ID_IN_USE, command construction) and duplicates are not buffered.
func (s *Server) DrainOutcomeResponses() []Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outcomes
	s.outcomes = nil
	return out
}
