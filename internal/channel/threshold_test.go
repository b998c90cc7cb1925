package channel

import (
	"math"
	"testing"
)

func TestScalarDelta(t *testing.T) {
	tests := []struct {
		name  string
		delta float64
		prev  float64
		curr  float64
		want  bool
	}{
		{"light small change", 200, 100, 50, false},
		{"light exactly at threshold", 200, 100, 300, false},
		{"light large change", 200, 100, 400, true},
		{"pressure below threshold", 1.0, 100.0, 100.5, false},
		{"pressure above threshold", 1.0, 100.0, 101.5, true},
		{"temperature no change", 2.0, 21.0, 21.0, false},
		{"negative direction", 2.0, 21.0, 18.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := ScalarDelta(tt.delta)
			if got := th(Scalar(tt.prev), Scalar(tt.curr)); got != tt.want {
				t.Errorf("ScalarDelta(%v)(%v, %v) = %v, want %v",
					tt.delta, tt.prev, tt.curr, got, tt.want)
			}
		})
	}
}

func TestScalarDeltaWrongType(t *testing.T) {
	th := ScalarDelta(200)
	// A type mismatch should never suppress recording.
	if !th(Vector3{}, Scalar(5)) {
		t.Error("expected true for mismatched prev type")
	}
	if !th(Scalar(5), Vector3{}) {
		t.Error("expected true for mismatched curr type")
	}
}

func TestVectorMagnitude(t *testing.T) {
	th := VectorMagnitude(DefaultAccelThreshold)

	rest := Vector3{X: 0, Y: 0, Z: 9.81}
	if th(rest, rest) {
		t.Error("identical vectors should not exceed threshold")
	}

	// Delta of (3, 4, 0) has magnitude 5 > 4.9.
	moved := Vector3{X: 3, Y: 4, Z: 9.81}
	if !th(rest, moved) {
		t.Error("magnitude 5 delta should exceed 4.9 threshold")
	}

	// Delta of (3, 3, 0) has magnitude ~4.24 < 4.9.
	small := Vector3{X: 3, Y: 3, Z: 9.81}
	if th(rest, small) {
		t.Error("magnitude 4.24 delta should not exceed 4.9 threshold")
	}
}

func TestVectorMagnitudeGyroDefault(t *testing.T) {
	th := VectorMagnitude(DefaultGyroThreshold)

	prev := Vector3{}
	spin := Vector3{X: math.Pi, Y: 0, Z: 0}
	if !th(prev, spin) {
		t.Error("pi rad/s delta should exceed pi/2 threshold")
	}
	slow := Vector3{X: 1.0, Y: 0, Z: 0}
	if th(prev, slow) {
		t.Error("1 rad/s delta should not exceed pi/2 threshold")
	}
}

func TestAlways(t *testing.T) {
	th := Always()
	if !th(Position{Lat: 49.1}, Position{Lat: 49.1}) {
		t.Error("Always() should record identical values")
	}
}
