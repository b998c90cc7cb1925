package transport

import (
	"github.com/google/uuid"
)

// PushedRecord captures one accepted push for test assertions.
type PushedRecord struct {
	Entries []Entry
	Token   uuid.UUID
}

// Fake records pushed records and lets tests drive completions and
// session events by hand.
type Fake struct {
	// Pushes contains all records accepted by Push, in order.
	Pushes []PushedRecord

	// PushError, if set, will be returned by Push.
	PushError error

	// Closed tracks if Close was called.
	Closed bool

	completions chan Completion
	sessions    chan SessionState
}

// NewFake creates a Fake for testing.
func NewFake() *Fake {
	return &Fake{
		completions: make(chan Completion, 64),
		sessions:    make(chan SessionState, 16),
	}
}

// Push records the entries and token. The payload is still encoded so
// ErrPayload surfaces exactly as it would with a real transport.
func (f *Fake) Push(rec *Record, token uuid.UUID) error {
	if f.PushError != nil {
		return f.PushError
	}
	if _, err := rec.Payload(); err != nil {
		return err
	}

	entries := make([]Entry, len(rec.Entries()))
	copy(entries, rec.Entries())
	f.Pushes = append(f.Pushes, PushedRecord{Entries: entries, Token: token})
	return nil
}

// Complete reports an outcome for a previously accepted push.
func (f *Fake) Complete(token uuid.UUID, status Status) {
	f.completions <- Completion{Token: token, Status: status}
}

// StartSession signals the session coming up.
func (f *Fake) StartSession() { f.sessions <- SessionStarted }

// StopSession signals the session going down.
func (f *Fake) StopSession() { f.sessions <- SessionStopped }

func (f *Fake) Completions() <-chan Completion { return f.completions }

func (f *Fake) SessionEvents() <-chan SessionState { return f.sessions }

// Close marks the pusher as closed.
func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded pushes.
func (f *Fake) Reset() {
	f.Pushes = nil
	f.PushError = nil
	f.Closed = false
}

// LastToken returns the token of the most recent push, or uuid.Nil if
// nothing has been pushed.
func (f *Fake) LastToken() uuid.UUID {
	if len(f.Pushes) == 0 {
		return uuid.Nil
	}
	return f.Pushes[len(f.Pushes)-1].Token
}
