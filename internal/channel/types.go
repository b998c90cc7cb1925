// Package channel contains the pure core of the delivery pipeline: the value
// types produced by sensors, the per-channel delivery bookkeeping, and the
// significance thresholds that decide whether a fresh reading is worth
// recording. This package has NO external dependencies (no sensors, MQTT, OS,
// or time.Sleep). Time is always injectable via time.Time parameters.
package channel

import "time"

// Value is a single sensor reading. Exactly one of Scalar, Vector3 or
// Position implements it; the concrete type is fixed per channel.
type Value interface {
	isValue()
}

// Scalar is a plain numeric reading (light level, pressure, temperature).
type Scalar float64

func (Scalar) isValue() {}

// Vector3 is a three-axis reading (acceleration, angular velocity).
type Vector3 struct {
	X, Y, Z float64
}

func (Vector3) isValue() {}

// Position is a structured GPS fix.
type Position struct {
	Lat  float64 // degrees
	Lon  float64 // degrees
	HAcc float64 // horizontal accuracy, metres
	Alt  float64 // metres above sea level
	VAcc float64 // vertical accuracy, metres
}

func (Position) isValue() {}

// DeliveryState tracks where a channel is in the push/retry protocol.
type DeliveryState int

const (
	// Idle means there is no undelivered data for the channel.
	Idle DeliveryState = iota
	// Pushing means a push request is outstanding with the transport.
	Pushing
	// Backlogged means new data arrived while a push was outstanding; the
	// backlog must be drained when the push completes.
	Backlogged
	// Fault means the last push failed; recovery re-queries the buffered
	// store rather than trusting in-memory state.
	Fault
)

func (s DeliveryState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Pushing:
		return "PUSHING"
	case Backlogged:
		return "BACKLOGGED"
	case Fault:
		return "FAULT"
	}
	return "UNKNOWN"
}

// Reader reads a fresh value from a sensor. It must be safe to call at the
// configured tick rate.
type Reader func() (Value, error)

// Channel is one logical sensor signal tracked independently through the
// delivery pipeline. Created once at startup, mutated on every
// read/record/push cycle, never destroyed.
type Channel struct {
	// Name is a human readable sensor name for logs ("light level").
	Name string

	// RecordPath is the dotted value path used at the transport boundary
	// ("Sensors.Light.Level").
	RecordPath string

	// StorePath identifies the channel's buffer in the sample store
	// ("/obs/light").
	StorePath string

	// Read obtains a fresh value from the sensor.
	Read Reader

	// Threshold reports whether a fresh reading differs enough from the
	// last recorded value to warrant recording.
	Threshold ThresholdFunc

	// LastRead and LastRecorded are deliberately distinct slots: recording
	// must never alias the read buffer before the threshold comparison
	// against the previous recorded value has completed.
	LastRead     Value
	LastRecorded Value

	// LastTimeRead is when LastRead was obtained; zero until the first
	// successful read.
	LastTimeRead time.Time

	// LastTimeRecorded is when a value was last committed to an outgoing
	// record; zero until the first record, which is therefore
	// unconditional.
	LastTimeRecorded time.Time

	// LastDelivered is the timestamp of the newest sample confirmed
	// delivered to the cloud. It only moves forward.
	LastDelivered time.Time

	// PendingTime is the timestamp of the sample currently being pushed.
	PendingTime time.Time

	// State is the channel's position in the delivery protocol.
	State DeliveryState
}

// NeverRecorded reports whether the channel still needs its baseline
// recording.
func (c *Channel) NeverRecorded() bool {
	return c.LastTimeRecorded.IsZero()
}

// Registry is the static table of channels. It holds no behaviour beyond
// dispatch by identity.
type Registry struct {
	channels []*Channel
}

// NewRegistry builds a registry from the given channels.
func NewRegistry(channels ...*Channel) *Registry {
	return &Registry{channels: channels}
}

// All returns the channels in registration order.
func (r *Registry) All() []*Channel {
	return r.channels
}

// ByStorePath returns the channel buffering under the given store path, or
// nil if none is registered.
func (r *Registry) ByStorePath(path string) *Channel {
	for _, c := range r.channels {
		if c.StorePath == path {
			return c
		}
	}
	return nil
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	return len(r.channels)
}
