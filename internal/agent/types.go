// Package agent implements the action-dispatch orchestration engine: the
// bounded, self-correcting plan-act loop that turns planner output into
// side effects and back into planner context, producing exactly one
// reply per request.
package agent

import (
	"github.com/google/uuid"

	"butler/internal/action"
)

// Envelope is one normalized inbound unit of work from any channel.
// Immutable once received.
type Envelope struct {
	// RequestID deduplicates deliveries of the same request.
	RequestID string

	// SessionID orders requests belonging to one conversation.
	SessionID string

	// Source names the channel the request arrived on.
	Source string

	// Text is the free-text payload.
	Text string

	// Audio is an optional raw audio payload; transcription happens
	// upstream of this core.
	Audio []byte

	// Meta carries arbitrary channel metadata.
	Meta map[string]any
}

// NewEnvelope builds an envelope with a fresh request id.
func NewEnvelope(sessionID, source, text string) Envelope {
	return Envelope{
		RequestID: uuid.NewString(),
		SessionID: sessionID,
		Source:    source,
		Text:      text,
	}
}

// AsyncTask describes work accepted for out-of-band completion.
type AsyncTask struct {
	ID          string
	Description string
}

// Response is the terminal output of one request.
type Response struct {
	Text      string
	ImagePath string
	Async     *AsyncTask
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

// PolicyChecker is the external security policy gate, consulted before
// every concrete (non-planner) action.
type PolicyChecker interface {
	Check(act action.Action) Decision
}

// PolicyFunc adapts a function to PolicyChecker.
type PolicyFunc func(act action.Action) Decision

// Check implements PolicyChecker.
func (f PolicyFunc) Check(act action.Action) Decision { return f(act) }

// AllowAll returns a policy that permits every action.
func AllowAll() PolicyChecker {
	return PolicyFunc(func(action.Action) Decision { return Decision{Allowed: true} })
}
