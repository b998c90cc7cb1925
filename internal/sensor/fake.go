package sensor

import (
	"errors"

	"github.com/sweeney/sensor-relay/internal/channel"
)

// Fake is a test double that returns scripted sensor values.
type Fake struct {
	// Values contains scripted readings. Each call to Read consumes the
	// next one; when exhausted, the last value is returned repeatedly.
	Values []channel.Value

	// Errors, if non-nil at the current index, is returned instead of the
	// value at that index. May be shorter than Values.
	Errors []error

	// ReadError, if set, is returned by every Read.
	ReadError error

	// Reads counts Read calls.
	Reads int

	index int
}

// NewFake creates a Fake with the given scripted values.
func NewFake(values ...channel.Value) *Fake {
	return &Fake{Values: values}
}

// Read returns the next scripted value.
func (f *Fake) Read() (channel.Value, error) {
	f.Reads++

	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Values) == 0 {
		return nil, errors.New("no values configured")
	}

	i := f.index
	if f.index < len(f.Values)-1 {
		f.index++
	}
	if i < len(f.Errors) && f.Errors[i] != nil {
		return nil, f.Errors[i]
	}
	return f.Values[i], nil
}

// Reader adapts the fake to the channel.Reader type.
func (f *Fake) Reader() channel.Reader {
	return f.Read
}

// Reset rewinds the fake to the beginning of its script.
func (f *Fake) Reset() {
	f.index = 0
	f.Reads = 0
}
