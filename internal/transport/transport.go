// Package transport delivers accumulated records to the remote cloud
// endpoint and surfaces session lifecycle events. Pushes are fire-and-forget:
// the result arrives later as a Completion carrying the caller's token.
package transport

import (
	"errors"

	"github.com/google/uuid"
)

// ErrBusy means the transport cannot accept a push right now (disconnected
// session or open circuit breaker). Treated as a transient failure by the
// delivery core.
var ErrBusy = errors.New("transport: busy")

// ErrRecordFull means the outgoing record cannot hold another value.
var ErrRecordFull = errors.New("transport: record full")

// ErrPayload means a value could not be encoded for the wire. Unlike
// transport failures this is permanent for the sample in question: the
// delivery core skips past it rather than retrying forever.
var ErrPayload = errors.New("transport: payload format error")

// Status is the outcome of an asynchronous push.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failed"
}

// Completion reports the outcome of a push identified by its token.
type Completion struct {
	Token  uuid.UUID
	Status Status
}

// SessionState reflects whether the remote session is usable.
type SessionState int

const (
	SessionStopped SessionState = iota
	SessionStarted
)

func (s SessionState) String() string {
	if s == SessionStarted {
		return "started"
	}
	return "stopped"
}

// Command is a cloud-to-device instruction forwarded verbatim to the
// actuator collaborator; it never touches the delivery state machine.
type Command struct {
	Name string `json:"name"`
	Arg  string `json:"arg,omitempty"`
}

// CommandHandler receives forwarded commands.
type CommandHandler func(Command)

// Pusher sends records to the cloud.
type Pusher interface {
	// Push hands a record to the transport. A nil return means the push
	// was accepted and a Completion will follow; ErrBusy means try again
	// on a later event; ErrPayload means the record can never be sent.
	Push(rec *Record, token uuid.UUID) error

	// Completions delivers push outcomes.
	Completions() <-chan Completion

	// SessionEvents delivers session up/down transitions.
	SessionEvents() <-chan SessionState

	// Close disconnects from the remote endpoint.
	Close() error
}
