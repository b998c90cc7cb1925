package channel

import "math"

// ThresholdFunc reports whether curr differs enough from the last recorded
// value prev to warrant recording. prev is never nil when called through the
// scheduler: a channel with no prior recorded value is recorded
// unconditionally to establish a baseline.
type ThresholdFunc func(prev, curr Value) bool

// Default significance thresholds. Units match the sensor readers: light in
// raw ADC counts, pressure in kPa, temperature in degC, acceleration in
// m/s^2 (4.9 is half of a G), angular velocity in rad/s.
const (
	DefaultLightThreshold       = 200.0
	DefaultPressureThreshold    = 1.0
	DefaultTemperatureThreshold = 2.0
	DefaultAccelThreshold       = 4.9
	DefaultGyroThreshold        = math.Pi / 2.0
)

// ScalarDelta returns a threshold that fires when the absolute difference
// between two Scalar values exceeds delta.
func ScalarDelta(delta float64) ThresholdFunc {
	return func(prev, curr Value) bool {
		p, ok := prev.(Scalar)
		if !ok {
			return true
		}
		c, ok := curr.(Scalar)
		if !ok {
			return true
		}
		return math.Abs(float64(p)-float64(c)) > delta
	}
}

// VectorMagnitude returns a threshold that fires when the Euclidean norm of
// the component-wise delta between two Vector3 values exceeds magnitude.
func VectorMagnitude(magnitude float64) ThresholdFunc {
	return func(prev, curr Value) bool {
		p, ok := prev.(Vector3)
		if !ok {
			return true
		}
		c, ok := curr.(Vector3)
		if !ok {
			return true
		}
		dx := p.X - c.X
		dy := p.Y - c.Y
		dz := p.Z - c.Z
		return math.Sqrt(dx*dx+dy*dy+dz*dz) > magnitude
	}
}

// Always returns a threshold that records every reading. Used for channels
// without a meaningful change metric, such as position.
func Always() ThresholdFunc {
	return func(prev, curr Value) bool {
		return true
	}
}
