// Package status provides a thread-safe status tracker for the relay
// daemon. It is written by the pipeline's event loop and read by HTTP
// handlers.
package status

import (
	"sync"
	"time"
)

// Config contains daemon configuration for display.
type Config struct {
	Mode         string
	TickMs       int64
	MinPublishMs int64
	MaxPublishMs int64
	StaleMs      int64
	Broker       string
	HTTPAddr     string
}

// ChannelStatus is the per-channel view of the delivery protocol.
type ChannelStatus struct {
	Name          string
	State         string
	LastRead      time.Time
	LastRecorded  time.Time
	LastDelivered time.Time
}

// Snapshot is a point-in-time view of daemon state. It is a value type,
// safe to use after the lock is released.
type Snapshot struct {
	Channels    []ChannelStatus
	SessionUp   bool
	LastPublish time.Time
	StartTime   time.Time
	Now         time.Time
	Config      Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateChannels replaces the per-channel view. Called from the event
// loop after every handled event.
func (t *Tracker) UpdateChannels(channels []ChannelStatus) {
	t.mu.Lock()
	t.snap.Channels = channels
	t.mu.Unlock()
}

// SetSession sets the remote session state.
func (t *Tracker) SetSession(up bool) {
	t.mu.Lock()
	t.snap.SessionUp = up
	t.mu.Unlock()
}

// SetLastPublish records the time of the most recent accepted publish.
func (t *Tracker) SetLastPublish(ts time.Time) {
	t.mu.Lock()
	t.snap.LastPublish = ts
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]ChannelStatus(nil), t.snap.Channels...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
