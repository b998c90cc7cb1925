// Package store buffers historical samples per channel path and supports
// oldest-first range queries, so that samples missed while a push was in
// flight (or failed) can be recovered and redelivered in order.
//
// Two implementations are provided: an in-memory ring-buffer store, and a
// Badger-backed store for relays that must survive restarts.
package store

import (
	"errors"
	"time"

	"github.com/sweeney/sensor-relay/internal/channel"
)

// ErrNotFound means the buffer holds no sample newer than the requested
// timestamp. This is the expected terminal condition of a backlog drain, not
// a failure.
var ErrNotFound = errors.New("store: no sample found")

// DefaultDepth is the number of samples buffered per path when the
// observation does not specify one.
const DefaultDepth = 100

// Sample is one buffered reading.
type Sample struct {
	Time  time.Time
	Value channel.Value
}

// Observation configures buffering for one path.
type Observation struct {
	// Depth is the maximum number of samples retained; the oldest sample
	// is dropped when the buffer is full. Zero means DefaultDepth.
	Depth int

	// ChangeBy, when non-zero, filters scalar samples: a sample is only
	// accepted when it differs from the last accepted value by more than
	// this amount. Ignored for vector and position values.
	ChangeBy float64

	// OnDrop, when non-nil, is called once for each buffered sample
	// overwritten or pruned before delivery.
	OnDrop func()
}

// NotifyFunc is called synchronously for each accepted sample.
type NotifyFunc func(path string, s Sample)

// Store accumulates samples per path and serves backlog queries.
type Store interface {
	// Observe registers a buffered path. Must be called before Push or
	// QueryAfter for that path.
	Observe(path string, obs Observation) error

	// Push appends a sample to the path's buffer, subject to the
	// observation's change-by filter. Accepted samples are delivered to
	// the path's subscriber before Push returns.
	Push(path string, s Sample) error

	// QueryAfter returns the oldest buffered sample strictly newer than
	// after, or ErrNotFound when the buffer is exhausted.
	QueryAfter(path string, after time.Time) (Sample, error)

	// CountAfter reports how many buffered samples are strictly newer
	// than after.
	CountAfter(path string, after time.Time) (int, error)

	// Subscribe registers the notify callback for a path. At most one
	// subscriber per path.
	Subscribe(path string, fn NotifyFunc) error

	// Close releases store resources.
	Close() error
}

// changeByAccepts implements the scalar change-by filter shared by both
// store implementations.
func changeByAccepts(changeBy float64, last, next channel.Value) bool {
	if changeBy == 0 {
		return true
	}
	prev, ok := last.(channel.Scalar)
	if !ok {
		return true
	}
	curr, ok := next.(channel.Scalar)
	if !ok {
		return true
	}
	diff := float64(curr) - float64(prev)
	if diff < 0 {
		diff = -diff
	}
	return diff > changeBy
}
