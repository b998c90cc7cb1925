package actuator

import "sync"

// FakeLED records LED state changes for test assertions.
type FakeLED struct {
	mu sync.Mutex

	// states holds every value passed to Set, in order.
	states []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeLED creates a FakeLED for testing.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records the requested state.
func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.states = append(f.states, on)
	return nil
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// States returns a copy of the recorded state changes.
func (f *FakeLED) States() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.states))
	copy(out, f.states)
	return out
}

// Last returns the most recent state, or false if none was set.
func (f *FakeLED) Last() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return false
	}
	return f.states[len(f.states)-1]
}
